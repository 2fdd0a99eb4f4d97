package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/user/storefront-go/apperror"
)

// Outcome labels reported to an OutcomeRecorder.
const (
	OutcomeSuccess            = "success"
	OutcomeDuplicateEmail     = "duplicate_email"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeError              = "error"
)

const invalidCredentialsMessage = "invalid email or password"

// OutcomeRecorder receives one observation per signup or login attempt.
type OutcomeRecorder interface {
	ObserveAuth(operation, outcome string)
}

// SignupHook runs after a successful signup. Hooks must not block; they are
// for fire-and-forget follow-ups such as a welcome email or a broadcast.
type SignupHook func(ctx context.Context, user PublicUser)

// AuthService orchestrates signup and login.
// All collaborators are injected; the service itself holds no per-request state.
type AuthService struct {
	store    CredentialStore
	hasher   PasswordHasher
	issuer   *TokenIssuer
	logger   *slog.Logger
	recorder OutcomeRecorder
	hooks    []SignupHook

	dummyOnce sync.Once
	dummyHash string
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithLogger sets the logger used for internal failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *AuthService) { s.logger = logger }
}

// WithOutcomeRecorder reports attempt outcomes, e.g. to metrics.
func WithOutcomeRecorder(r OutcomeRecorder) Option {
	return func(s *AuthService) { s.recorder = r }
}

// WithSignupHook adds a hook called after every successful signup.
func WithSignupHook(h SignupHook) Option {
	return func(s *AuthService) { s.hooks = append(s.hooks, h) }
}

// NewAuthService creates the service.
func NewAuthService(store CredentialStore, hasher PasswordHasher, issuer *TokenIssuer, opts ...Option) *AuthService {
	s := &AuthService{
		store:  store,
		hasher: hasher,
		issuer: issuer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup registers a new user and returns a token bound to it.
//
// The email is checked first; an existing account rejects the request without
// any write. Otherwise the password is hashed, the user persisted (the store's
// unique constraint is the final word on duplicates) and a token issued.
func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	name := strings.TrimSpace(req.Name)
	email := NormalizeEmail(req.Email)
	if name == "" {
		s.observe("signup", OutcomeInvalidInput)
		return nil, apperror.NewValidationError("name: is required", nil)
	}

	_, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		s.observe("signup", OutcomeDuplicateEmail)
		return nil, duplicateEmail(nil)
	case errors.Is(err, ErrUserNotFound):
	default:
		s.observe("signup", OutcomeError)
		return nil, apperror.NewStoreUnavailableError("server error", err)
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			s.observe("signup", OutcomeInvalidInput)
			return nil, apperror.NewValidationError("password: must be at most 72 bytes", err)
		}
		s.observe("signup", OutcomeError)
		return nil, apperror.NewInternalError("server error", err)
	}

	user, err := s.store.Create(ctx, name, email, passwordHash)
	if err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// Lost the race against a concurrent signup with the same email.
			s.observe("signup", OutcomeDuplicateEmail)
			return nil, duplicateEmail(err)
		}
		s.observe("signup", OutcomeError)
		return nil, apperror.NewStoreUnavailableError("server error", err)
	}

	resp, err := s.respond(user)
	if err != nil {
		s.observe("signup", OutcomeError)
		return nil, err
	}
	s.observe("signup", OutcomeSuccess)

	for _, hook := range s.hooks {
		hook(ctx, resp.User)
	}
	return resp, nil
}

// Login checks credentials and issues a fresh token.
// Unknown email and wrong password produce the same error, and the unknown
// email path still runs a bcrypt comparison so the two take similar time.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	email := NormalizeEmail(req.Email)

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.hasher.Verify(req.Password, s.dummyPasswordHash())
			s.observe("login", OutcomeInvalidCredentials)
			return nil, invalidCredentials()
		}
		s.observe("login", OutcomeError)
		return nil, apperror.NewStoreUnavailableError("server error", err)
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		s.observe("login", OutcomeInvalidCredentials)
		return nil, invalidCredentials()
	}

	resp, err := s.respond(user)
	if err != nil {
		s.observe("login", OutcomeError)
		return nil, err
	}
	s.observe("login", OutcomeSuccess)
	return resp, nil
}

func (s *AuthService) respond(user *User) (*AuthResponse, error) {
	token, expiresAt, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, apperror.NewInternalError("server error", err)
	}
	return &AuthResponse{Token: token, ExpiresAt: expiresAt, User: user.Public()}, nil
}

func (s *AuthService) observe(operation, outcome string) {
	if s.recorder != nil {
		s.recorder.ObserveAuth(operation, outcome)
	}
}

// dummyPasswordHash returns a valid digest at the hasher's cost, computed once.
func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hashed, err := s.hasher.Hash("not-a-real-password")
		if err != nil {
			s.logger.Warn("failed to prepare dummy password hash", slog.Any("error", err))
			return
		}
		s.dummyHash = hashed
	})
	return s.dummyHash
}

func duplicateEmail(err error) *apperror.AppError {
	return apperror.NewDuplicateEmailError("user already exists", err)
}

// invalidCredentials builds a fresh error each time; the message is the same
// for every failure reason.
func invalidCredentials() *apperror.AppError {
	return apperror.NewInvalidCredentialsError(invalidCredentialsMessage, nil)
}
