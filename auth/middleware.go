package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/user/storefront-go/apperror"
)

// JWTMiddleware guards a route group with bearer token authentication.
//
// A missing or malformed Authorization header is an ordinary rejected request
// (401 Unauthenticated). A token with a bad signature, wrong issuer or past its
// expiry is rejected with 401 InvalidToken. In both cases the next handler is
// not called. On success the claims are attached to the request context.
func JWTMiddleware(verifier *TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, r, apperror.NewUnauthenticatedError("no token, authorization denied", nil))
				return
			}

			claims, err := verifier.Verify(tokenString)
			if err != nil {
				msg := "token is not valid"
				if errors.Is(err, ErrTokenExpired) {
					msg = "token has expired"
				}
				WriteError(w, r, apperror.NewInvalidTokenError(msg, err))
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContextWithClaims(r.Context(), claims)))
		})
	}
}

// BearerToken extracts the token from an `Authorization: Bearer <token>` header value.
// The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}
