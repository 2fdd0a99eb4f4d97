package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a CredentialStore kept in process memory. It backs
// `serve --in-memory` for local development and the end-to-end tests.
// Uniqueness is enforced under the write lock, so concurrent signups with the
// same email produce exactly one user.
type MemoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]*User
	byID    map[string]*User
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byEmail: make(map[string]*User),
		byID:    make(map[string]*User),
		now:     time.Now,
	}
}

// FindByEmail implements CredentialStore.
func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// FindByID returns the user with the given id.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// Create implements CredentialStore.
func (s *MemoryStore) Create(ctx context.Context, name, email, passwordHash string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[email]; exists {
		return nil, ErrDuplicateKey
	}
	user := &User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}
	s.byEmail[email] = user
	s.byID[user.ID] = user
	clone := *user
	return &clone, nil
}

// Len returns the number of stored users.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var _ CredentialStore = (*MemoryStore)(nil)
