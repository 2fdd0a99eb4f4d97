// Package users serves the authenticated user's own profile.
// Accounts are created by the auth package and never changed here.
package users

import (
	"context"
	"errors"

	"github.com/user/storefront-go/apperror"
	"github.com/user/storefront-go/auth"
)

// ProfileStore looks users up by id. auth.PostgresStore and auth.MemoryStore
// both implement it.
type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*auth.User, error)
}

// UserService provides read access to user profiles.
type UserService struct {
	store ProfileStore
}

// NewUserService creates a new UserService.
func NewUserService(store ProfileStore) *UserService {
	return &UserService{store: store}
}

// GetUserProfile returns the public profile of the user with the given id.
// A valid token for a user that no longer exists yields NotFound.
func (s *UserService) GetUserProfile(ctx context.Context, userID string) (*auth.PublicUser, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return nil, apperror.NewNotFoundError("user not found", err)
		}
		return nil, apperror.NewStoreUnavailableError("server error", err)
	}
	profile := user.Public()
	return &profile, nil
}
