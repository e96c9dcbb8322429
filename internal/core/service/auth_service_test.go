package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
)

type stubCredentialStore struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	roles     map[string]*domain.Role
	createErr error
	findErr   error
}

func newStubCredentialStore() *stubCredentialStore {
	return &stubCredentialStore{
		users: make(map[string]*domain.User),
		roles: make(map[string]*domain.Role),
	}
}

func cloneUser(u *domain.User) *domain.User {
	clone := *u
	clone.Roles = append([]string(nil), u.Roles...)
	return &clone
}

func (s *stubCredentialStore) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, u := range s.users {
		if domain.NormalizeName(u.Username) == domain.NormalizeName(user.Username) {
			return domain.ErrUserExists
		}
		if domain.NormalizeName(u.Email) == domain.NormalizeName(user.Email) {
			return domain.ErrEmailExists
		}
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *stubCredentialStore) find(match func(*domain.User) bool) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *stubCredentialStore) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool {
		return domain.NormalizeName(u.Username) == domain.NormalizeName(username)
	})
}

func (s *stubCredentialStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool {
		return domain.NormalizeName(u.Email) == domain.NormalizeName(email)
	})
}

func (s *stubCredentialStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.ID == id })
}

func (s *stubCredentialStore) GetRoles(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return append([]string{}, u.Roles...), nil
}

func (s *stubCredentialStore) AddToRole(_ context.Context, userID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if u.HasRole(roleName) {
		return domain.ErrUserInRole
	}
	u.Roles = append(u.Roles, roleName)
	return nil
}

func (s *stubCredentialStore) CreateRole(_ context.Context, role *domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.NormalizeName(role.Name)
	if _, ok := s.roles[key]; ok {
		return domain.ErrRoleExists
	}
	clone := *role
	s.roles[key] = &clone
	return nil
}

func (s *stubCredentialStore) FindRole(_ context.Context, name string) (*domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[domain.NormalizeName(name)]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	clone := *r
	return &clone, nil
}

func (s *stubCredentialStore) deleteUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

type stubRefreshStore struct {
	mu       sync.Mutex
	rows     map[[2]string]domain.RefreshToken
	storeErr error
}

func newStubRefreshStore() *stubRefreshStore {
	return &stubRefreshStore{rows: make(map[[2]string]domain.RefreshToken)}
}

func (s *stubRefreshStore) Store(_ context.Context, userID, issuer, value string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return s.storeErr
	}
	s.rows[[2]string{userID, issuer}] = domain.RefreshToken{
		UserID: userID, Issuer: issuer, Name: domain.RefreshTokenName, Value: value, ExpiresAt: expiresAt,
	}
	return nil
}

func (s *stubRefreshStore) Lookup(_ context.Context, value string) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.Value == value {
			r := row
			return &r, nil
		}
	}
	return nil, domain.ErrRefreshTokenNotFound
}

func (s *stubRefreshStore) Rotate(_ context.Context, userID, issuer, current, next string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{userID, issuer}
	row, ok := s.rows[key]
	if !ok || row.Value != current {
		return domain.ErrRefreshTokenNotFound
	}
	row.Value = next
	row.ExpiresAt = expiresAt
	s.rows[key] = row
	return nil
}

func (s *stubRefreshStore) Revoke(_ context.Context, userID, issuer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, [2]string{userID, issuer})
	return nil
}

func (s *stubRefreshStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type authFixture struct {
	svc    *AuthService
	users  *stubCredentialStore
	tokens *stubRefreshStore
	issuer *JWTIssuer
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	users := newStubCredentialStore()
	tokens := newStubRefreshStore()
	iss := newTestIssuer(t)
	svc := NewAuthService(users, tokens, iss, NewBcryptHasher(bcrypt.MinCost), zerolog.Nop(),
		WithAuthClock(func() time.Time { return fixedNow }))
	return &authFixture{svc: svc, users: users, tokens: tokens, issuer: iss}
}

func (f *authFixture) signUpAlice(t *testing.T) *domain.User {
	t.Helper()
	user, err := f.svc.SignUp(context.Background(), "alice", "a@x.com", "P@ssw0rd!")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	return user
}

func TestAuthService_SignUp_Success(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signUpAlice(t)

	if user.ID == "" {
		t.Fatalf("expected generated id")
	}
	if user.PasswordHash == "P@ssw0rd!" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("P@ssw0rd!")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if len(f.users.users) != 1 {
		t.Fatalf("expected exactly one credential record, got %d", len(f.users.users))
	}
	if f.tokens.count() != 0 {
		t.Fatalf("sign-up must not issue tokens")
	}
}

func TestAuthService_SignUp_ReportsEveryReason(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.SignUp(context.Background(), "ab c", "bad", "abc")

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{
		"Username 'ab c' is invalid, can only contain letters or digits.",
		"Email 'bad' is invalid.",
		"Passwords must be at least 6 characters.",
		"Passwords must have at least one non alphanumeric character.",
		"Passwords must have at least one digit ('0'-'9').",
		"Passwords must have at least one uppercase ('A'-'Z').",
	}
	if !reflect.DeepEqual(ve.Reasons, want) {
		t.Fatalf("unexpected reasons:\n got %q\nwant %q", ve.Reasons, want)
	}
	if len(f.users.users) != 0 {
		t.Fatalf("no record may be created on validation failure")
	}
}

func TestAuthService_SignUp_Duplicates(t *testing.T) {
	f := newAuthFixture(t)
	f.signUpAlice(t)

	_, err := f.svc.SignUp(context.Background(), "ALICE", "A@X.COM", "P@ssw0rd!")

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{
		"Username 'ALICE' is already taken.",
		"Email 'A@X.COM' is already taken.",
	}
	if !reflect.DeepEqual(ve.Reasons, want) {
		t.Fatalf("unexpected reasons: %q", ve.Reasons)
	}
}

func TestAuthService_SignUp_CreateRace(t *testing.T) {
	f := newAuthFixture(t)
	f.users.createErr = domain.ErrUserExists

	_, err := f.svc.SignUp(context.Background(), "alice", "a@x.com", "P@ssw0rd!")

	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Reasons[0] != "Username 'alice' is already taken." {
		t.Fatalf("expected username taken, got %v", err)
	}
}

func TestAuthService_SignUp_StoreFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.users.findErr = errors.New("mongo down")

	_, err := f.svc.SignUp(context.Background(), "alice", "a@x.com", "P@ssw0rd!")
	if err == nil {
		t.Fatalf("expected error")
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		t.Fatalf("store failure must not look like validation: %v", err)
	}
}

func TestAuthService_SignIn_Success(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signUpAlice(t)
	if err := f.users.AddToRole(context.Background(), user.ID, "Editor"); err != nil {
		t.Fatalf("AddToRole: %v", err)
	}

	pair, err := f.svc.SignIn(context.Background(), "alice", "P@ssw0rd!")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	id, err := f.issuer.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("access token invalid: %v", err)
	}
	if id.UserID != user.ID || !id.HasRole("Editor") || len(id.Roles) != 1 {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if !pair.RefreshExpiresAt.Equal(fixedNow.Add(DefaultRefreshTokenTTL)) {
		t.Fatalf("expected 7 day refresh expiry, got %v", pair.RefreshExpiresAt)
	}

	stored, err := f.tokens.Lookup(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh token not stored: %v", err)
	}
	if stored.UserID != user.ID || stored.Issuer != "nerdwiki" || stored.Name != domain.RefreshTokenName {
		t.Fatalf("unexpected stored record: %+v", stored)
	}
}

func TestAuthService_SignIn_Unauthorized(t *testing.T) {
	f := newAuthFixture(t)
	f.signUpAlice(t)

	_, unknownErr := f.svc.SignIn(context.Background(), "ghost", "P@ssw0rd!")
	_, wrongErr := f.svc.SignIn(context.Background(), "alice", "wrong")

	if !errors.Is(unknownErr, domain.ErrUnauthorized) || !errors.Is(wrongErr, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for both, got %v / %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("errors must be indistinguishable: %q vs %q", unknownErr, wrongErr)
	}
	if f.tokens.count() != 0 {
		t.Fatalf("failed sign-in must not change state")
	}
}

func TestAuthService_SignIn_StoreFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.signUpAlice(t)
	f.tokens.storeErr = errors.New("redis down")

	_, err := f.svc.SignIn(context.Background(), "alice", "P@ssw0rd!")
	if err == nil || errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected a server error, got %v", err)
	}
}

func TestAuthService_Refresh_RotatesOnce(t *testing.T) {
	f := newAuthFixture(t)
	f.signUpAlice(t)
	ctx := context.Background()

	first, err := f.svc.SignIn(ctx, "alice", "P@ssw0rd!")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	second, err := f.svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("refresh must rotate the token")
	}

	stored, err := f.tokens.Lookup(ctx, second.RefreshToken)
	if err != nil || stored.Value != second.RefreshToken {
		t.Fatalf("the new token must be the persisted one: %v", err)
	}

	if _, err := f.svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stale token must fail, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("current token must succeed: %v", err)
	}
}

func TestAuthService_Refresh_AfterSignOut(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signUpAlice(t)
	ctx := context.Background()

	pair, _ := f.svc.SignIn(ctx, "alice", "P@ssw0rd!")
	if err := f.svc.SignOut(ctx, user.ID); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after sign-out, got %v", err)
	}
}

func TestAuthService_Refresh_IssuerMismatch(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signUpAlice(t)
	ctx := context.Background()

	if err := f.tokens.Store(ctx, user.ID, "legacy-issuer", "tok", fixedNow.Add(time.Hour)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, "tok"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for foreign issuer, got %v", err)
	}
}

func TestAuthService_Refresh_UserGone(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signUpAlice(t)
	ctx := context.Background()

	pair, _ := f.svc.SignIn(ctx, "alice", "P@ssw0rd!")
	f.users.deleteUser(user.ID)

	if _, err := f.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthService_Refresh_MissingOrUnknown(t *testing.T) {
	f := newAuthFixture(t)
	for _, tok := range []string{"", "never-issued"} {
		if _, err := f.svc.Refresh(context.Background(), tok); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("token %q: expected ErrUnauthorized, got %v", tok, err)
		}
	}
}

func TestAuthService_Refresh_ConcurrentSingleWinner(t *testing.T) {
	f := newAuthFixture(t)
	f.signUpAlice(t)
	ctx := context.Background()
	pair, _ := f.svc.SignIn(ctx, "alice", "P@ssw0rd!")

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Refresh(ctx, pair.RefreshToken); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", successes)
	}
}

func TestAuthService_SignOut_Idempotent(t *testing.T) {
	f := newAuthFixture(t)
	user := f.signUpAlice(t)
	ctx := context.Background()

	if err := f.svc.SignOut(ctx, user.ID); err != nil {
		t.Fatalf("SignOut without token: %v", err)
	}
	if err := f.svc.SignOut(ctx, ""); err != nil {
		t.Fatalf("anonymous SignOut: %v", err)
	}
}
