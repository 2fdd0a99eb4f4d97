// Package auth contains authentication logic: password hashing, bearer token
// issuance and verification, the credential store, and the signup/login flows.
//
// Sessions are stateless. A token is valid when its HS256 signature checks out
// against the process-wide secret and it has not expired; nothing about issued
// tokens is stored server-side, and there is no revocation.
package auth

import "strings"

// NormalizeEmail trims and lower-cases an email so lookups and the unique
// index agree on what "the same email" means.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
