package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/user/storefront-go/config"
)

// PasswordHasher is a one-way salted hash with a matching verify.
type PasswordHasher interface {
	// Hash returns a salted digest of plaintext. Two calls with the same input
	// return different digests that both verify.
	Hash(plaintext string) (string, error)
	// Verify reports whether plaintext matches hashed. A malformed hashed value
	// is simply a mismatch.
	Verify(plaintext, hashed string) bool
}

// BcryptHasher implements PasswordHasher with bcrypt. The salt is embedded in
// the digest, and the cost is the tunable work factor.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher with the given cost, clamped to what bcrypt accepts.
func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{cost: config.ClampBcryptCost(cost)}
}

// Cost returns the effective work factor.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash implements PasswordHasher.
// Passwords longer than 72 bytes fail with bcrypt.ErrPasswordTooLong.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify implements PasswordHasher.
func (h *BcryptHasher) Verify(plaintext, hashed string) bool {
	if hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}

var _ PasswordHasher = (*BcryptHasher)(nil)
