package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/storefront-go/apperror"
)

// fakeStore wraps a MemoryStore and counts writes. Errors can be injected per
// operation.
type fakeStore struct {
	*MemoryStore
	writes    int
	findErr   error
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: NewMemoryStore()}
}

func (s *fakeStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.MemoryStore.FindByEmail(ctx, email)
}

func (s *fakeStore) Create(ctx context.Context, name, email, passwordHash string) (*User, error) {
	s.writes++
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.MemoryStore.Create(ctx, name, email, passwordHash)
}

type recordedOutcome struct{ operation, outcome string }

type fakeRecorder struct {
	mu   sync.Mutex
	seen []recordedOutcome
}

func (r *fakeRecorder) ObserveAuth(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, recordedOutcome{operation, outcome})
}

func newTestService(t *testing.T, store CredentialStore, opts ...Option) *AuthService {
	t.Helper()
	cfg := testAuthConfig()
	return NewAuthService(store, NewBcryptHasher(cfg.BcryptCost), NewTokenIssuer(cfg), opts...)
}

func TestSignup_Success(t *testing.T) {
	store := newFakeStore()
	rec := &fakeRecorder{}
	var hooked []PublicUser
	svc := newTestService(t, store,
		WithOutcomeRecorder(rec),
		WithSignupHook(func(_ context.Context, u PublicUser) { hooked = append(hooked, u) }),
	)

	resp, err := svc.Signup(context.Background(), SignupRequest{Name: " A ", Email: " A@X.com", Password: "secret123"})
	require.NoError(t, err)

	assert.Equal(t, 1, store.writes)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "A", resp.User.Name)
	assert.Equal(t, "a@x.com", resp.User.Email)
	assert.NotEmpty(t, resp.User.ID)

	claims, err := NewTokenVerifier(testAuthConfig()).Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)

	stored, err := store.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.PasswordHash)

	require.Len(t, hooked, 1)
	assert.Equal(t, resp.User, hooked[0])
	assert.Equal(t, []recordedOutcome{{"signup", OutcomeSuccess}}, rec.seen)
}

func TestSignup_DuplicateEmailDoesNotWrite(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{Name: "A", Email: "a@x.com", Password: "secret123"})
	require.NoError(t, err)
	require.Equal(t, 1, store.writes)

	_, err = svc.Signup(ctx, SignupRequest{Name: "B", Email: "A@x.com", Password: "other-pass"})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.DuplicateEmailError))
	assert.Equal(t, 1, store.writes, "rejected signup must not write")
	assert.Equal(t, 1, store.Len())
}

func TestSignup_StoreUniqueViolationIsDuplicate(t *testing.T) {
	store := newFakeStore()
	store.createErr = ErrDuplicateKey
	svc := newTestService(t, store)

	_, err := svc.Signup(context.Background(), SignupRequest{Name: "A", Email: "a@x.com", Password: "secret123"})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.DuplicateEmailError))
}

func TestSignup_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.findErr = errors.New("connection refused")
	svc := newTestService(t, store)

	_, err := svc.Signup(context.Background(), SignupRequest{Name: "A", Email: "a@x.com", Password: "secret123"})
	require.Error(t, err)
	appErr, ok := apperror.FromError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.StoreUnavailableError, appErr.Type)
	assert.Equal(t, "server error", appErr.ToResponse().Error)
	assert.Equal(t, 0, store.writes)
}

func TestSignup_PasswordTooLong(t *testing.T) {
	store := newFakeStore()
	rec := &fakeRecorder{}
	svc := newTestService(t, store, WithOutcomeRecorder(rec))

	_, err := svc.Signup(context.Background(), SignupRequest{Name: "A", Email: "a@x.com", Password: strings.Repeat("é", 40)})
	require.Error(t, err)
	assert.True(t, apperror.IsValidationError(err))
	assert.Equal(t, 0, store.writes)
	assert.Equal(t, []recordedOutcome{{"signup", OutcomeInvalidInput}}, rec.seen)
}

func TestSignup_BlankNameRejected(t *testing.T) {
	store := newFakeStore()
	rec := &fakeRecorder{}
	svc := newTestService(t, store, WithOutcomeRecorder(rec))

	_, err := svc.Signup(context.Background(), SignupRequest{Name: " \t ", Email: "a@x.com", Password: "secret123"})
	require.Error(t, err)
	assert.True(t, apperror.IsValidationError(err))
	assert.Equal(t, "name: is required", err.(*apperror.AppError).Message)
	assert.Equal(t, 0, store.writes)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, []recordedOutcome{{"signup", OutcomeInvalidInput}}, rec.seen)
}

func TestLogin_Success(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	signup, err := svc.Signup(ctx, SignupRequest{Name: "A", Email: "a@x.com", Password: "secret123"})
	require.NoError(t, err)
	writes := store.writes

	resp, err := svc.Login(ctx, LoginRequest{Email: "A@X.COM", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, writes, store.writes, "login must not write")
	assert.Equal(t, signup.User, resp.User)

	claims, err := NewTokenVerifier(testAuthConfig()).Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, signup.User.ID, claims.UserID)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	store := newFakeStore()
	rec := &fakeRecorder{}
	svc := newTestService(t, store, WithOutcomeRecorder(rec))
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{Name: "A", Email: "a@x.com", Password: "secret123"})
	require.NoError(t, err)
	writes := store.writes

	_, wrongPassword := svc.Login(ctx, LoginRequest{Email: "a@x.com", Password: "wrong"})
	_, unknownEmail := svc.Login(ctx, LoginRequest{Email: "nobody@x.com", Password: "secret123"})

	wp, ok := apperror.FromError(wrongPassword)
	require.True(t, ok)
	ue, ok := apperror.FromError(unknownEmail)
	require.True(t, ok)

	assert.Equal(t, wp.ToResponse(), ue.ToResponse())
	assert.Equal(t, wp.StatusCode(), ue.StatusCode())
	assert.Equal(t, wp.Error(), ue.Error())
	assert.Equal(t, apperror.InvalidCredentialsError, wp.Type)
	assert.Equal(t, writes, store.writes)
	assert.Contains(t, rec.seen, recordedOutcome{"login", OutcomeInvalidCredentials})
}

func TestLogin_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.findErr = errors.New("timeout")
	svc := newTestService(t, store)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "a@x.com", Password: "secret123"})
	assert.True(t, apperror.Is(err, apperror.StoreUnavailableError))
}
