package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		errType ErrorType
		status  int
		code    string
	}{
		{ValidationError, http.StatusBadRequest, "ValidationError"},
		{DuplicateEmailError, http.StatusBadRequest, "DuplicateEmail"},
		{InvalidCredentialsError, http.StatusBadRequest, "InvalidCredentials"},
		{UnauthenticatedError, http.StatusUnauthorized, "Unauthenticated"},
		{InvalidTokenError, http.StatusUnauthorized, "InvalidToken"},
		{StoreUnavailableError, http.StatusInternalServerError, "StoreUnavailable"},
		{NotFoundError, http.StatusNotFound, "NotFound"},
		{ForbiddenError, http.StatusForbidden, "Forbidden"},
		{ExternalServiceError, http.StatusBadGateway, "ExternalServiceError"},
		{InternalError, http.StatusInternalServerError, "InternalError"},
		{PayloadTooLargeError, http.StatusRequestEntityTooLarge, "PayloadTooLarge"},
		{TooManyRequestsError, http.StatusTooManyRequests, "TooManyRequests"},
		{UnknownError, http.StatusInternalServerError, "UnknownError"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			e := NewAppError(tt.errType, "msg", nil)
			assert.Equal(t, tt.status, e.StatusCode())
			assert.Equal(t, tt.code, e.Code())
		})
	}
}

func TestToResponse_HidesUnderlyingError(t *testing.T) {
	e := NewStoreUnavailableError("server error", errors.New("dial tcp 10.0.0.1:5432: connection refused"))

	resp := e.ToResponse()
	assert.Equal(t, "server error", resp.Error)
	assert.Equal(t, "StoreUnavailable", resp.Code)
	assert.Contains(t, e.Error(), "connection refused")
}

func TestFromError_FindsWrapped(t *testing.T) {
	inner := NewDuplicateEmailError("user already exists", nil)
	wrapped := fmt.Errorf("signup: %w", inner)

	got, ok := FromError(wrapped)
	require.True(t, ok)
	assert.Same(t, inner, got)

	_, ok = FromError(errors.New("plain"))
	assert.False(t, ok)

	_, ok = FromError(nil)
	assert.False(t, ok)
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewNotFoundError("missing", nil))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidationError(err))
	assert.True(t, IsValidationError(NewValidationError("bad", nil)))
}
