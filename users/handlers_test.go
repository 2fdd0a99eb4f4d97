package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/storefront-go/apperror"
	"github.com/user/storefront-go/auth"
)

type failingStore struct{}

func (failingStore) FindByID(context.Context, string) (*auth.User, error) {
	return nil, errors.New("connection reset")
}

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	if userID == "" {
		return req
	}
	ctx := auth.NewContextWithClaims(req.Context(), &auth.Claims{UserID: userID})
	return req.WithContext(ctx)
}

func TestHandleGetUserProfile(t *testing.T) {
	store := auth.NewMemoryStore()
	user, err := store.Create(context.Background(), "A", "a@x.com", "$2a$04$hash")
	require.NoError(t, err)

	h := NewUserHandlers(NewUserService(store)).HandleGetUserProfile()

	t.Run("found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestAs(user.ID))

		require.Equal(t, http.StatusOK, rec.Code)
		var got auth.PublicUser
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, "a@x.com", got.Email)
		assert.NotContains(t, rec.Body.String(), "$2a$")
	})

	t.Run("deleted user", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestAs("gone"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("no claims", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestAs(""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetUserProfile_StoreFailure(t *testing.T) {
	_, err := NewUserService(failingStore{}).GetUserProfile(context.Background(), "u-1")
	assert.True(t, apperror.Is(err, apperror.StoreUnavailableError))
}
