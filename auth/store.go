package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrUserNotFound is the "None" result of a lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateKey is returned by Create when the email is already taken.
	ErrDuplicateKey = errors.New("duplicate key")
)

// CredentialStore is the persistence boundary of the auth core.
// Implementations enforce email uniqueness themselves (unique index, lock) and
// report a violation as ErrDuplicateKey, which closes the race between the
// signup pre-check and the insert.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, name, email, passwordHash string) (*User, error)
}

// Querier is the part of pgxpool.Pool (and pgxmock) that PostgresStore needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	findUserByEmailSQL = `SELECT id::text, name, email, password_hash, created_at FROM users WHERE email = $1`
	findUserByIDSQL    = `SELECT id::text, name, email, password_hash, created_at FROM users WHERE id = $1::uuid`
	insertUserSQL      = `INSERT INTO users (name, email, password_hash) VALUES ($1, $2, $3) RETURNING id::text, created_at`
)

// PostgresStore implements CredentialStore on the `users` table.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore creates a store backed by a pgx pool (or anything that can QueryRow).
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindByEmail implements CredentialStore.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.db.QueryRow(ctx, findUserByEmailSQL, email))
}

// FindByID looks a user up by id. Ids that are not valid UUIDs cannot exist,
// so they are reported as not found instead of as a query error.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*User, error) {
	user, err := s.scanUser(s.db.QueryRow(ctx, findUserByIDSQL, id))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation {
		return nil, ErrUserNotFound
	}
	return user, err
}

// Create implements CredentialStore.
func (s *PostgresStore) Create(ctx context.Context, name, email, passwordHash string) (*User, error) {
	user := &User{Name: name, Email: email, PasswordHash: passwordHash}
	err := s.db.QueryRow(ctx, insertUserSQL, name, email, passwordHash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) scanUser(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

var _ CredentialStore = (*PostgresStore)(nil)
