package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/storefront-go/apperror"
)

func protectedHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		userID, _ := UserIDFromContext(r.Context())
		w.Write([]byte(userID))
	})
}

func TestJWTMiddleware(t *testing.T) {
	cfg := testAuthConfig()
	issuer := NewTokenIssuer(cfg)
	valid, _, err := issuer.Issue("user-42")
	require.NoError(t, err)

	expiredIssuer := NewTokenIssuer(cfg)
	expiredIssuer.now = fixedClock(time.Now().Add(-48 * time.Hour))
	expired, _, err := expiredIssuer.Issue("user-42")
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
		wantError  string
		wantCalled bool
	}{
		{"no header", "", http.StatusUnauthorized, "Unauthenticated", "no token, authorization denied", false},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "Unauthenticated", "no token, authorization denied", false},
		{"scheme only", "Bearer", http.StatusUnauthorized, "Unauthenticated", "no token, authorization denied", false},
		{"bad token", "Bearer abc.def.ghi", http.StatusUnauthorized, "InvalidToken", "token is not valid", false},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "InvalidToken", "token has expired", false},
		{"valid", "Bearer " + valid, http.StatusOK, "", "", true},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, "", "", true},
	}

	mw := JWTMiddleware(NewTokenVerifier(cfg))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			mw(protectedHandler(&called)).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, called)
			if tt.wantCalled {
				assert.Equal(t, "user-42", rec.Body.String())
				return
			}
			var body apperror.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantError, body.Error)
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"BEARER abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Bearer a b", "", false},
		{"Bearer ", "", false},
		{"Token abc", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, "header %q", tt.header)
		assert.Equal(t, tt.token, token, "header %q", tt.header)
	}
}
