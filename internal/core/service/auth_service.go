package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
	"github.com/nerdwiki/nerdwiki-api/internal/core/ports"
)

const DefaultRefreshTokenTTL = 7 * 24 * time.Hour

// AuthService runs sign-up, sign-in, sign-out and refresh-token rotation.
type AuthService struct {
	users      ports.CredentialStore
	tokens     ports.RefreshTokenStore
	issuer     ports.TokenIssuer
	hasher     ports.PasswordHasher
	policy     *CredentialPolicy
	refreshTTL time.Duration
	now        func() time.Time
	log        zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

type AuthOption func(*AuthService)

// WithRefreshTTL sets how long an issued refresh token stays valid.
func WithRefreshTTL(d time.Duration) AuthOption {
	return func(s *AuthService) {
		if d > 0 {
			s.refreshTTL = d
		}
	}
}

func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(
	users ports.CredentialStore,
	tokens ports.RefreshTokenStore,
	issuer ports.TokenIssuer,
	hasher ports.PasswordHasher,
	log zerolog.Logger,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		users:      users,
		tokens:     tokens,
		issuer:     issuer,
		hasher:     hasher,
		policy:     NewCredentialPolicy(),
		refreshTTL: DefaultRefreshTokenTTL,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUp validates the input and creates the account. Every rejected rule is
// reported through a *domain.ValidationError. No token is issued.
func (s *AuthService) SignUp(ctx context.Context, username, email, password string) (*domain.User, error) {
	var reasons []string

	if msg := s.policy.CheckUsername(username); msg != "" {
		reasons = append(reasons, msg)
	} else {
		taken, err := s.taken(ctx, s.users.FindByUsername, username)
		if err != nil {
			return nil, fmt.Errorf("sign up: %w", err)
		}
		if taken {
			reasons = append(reasons, usernameTaken(username))
		}
	}

	if msg := s.policy.CheckEmail(email); msg != "" {
		reasons = append(reasons, msg)
	} else {
		taken, err := s.taken(ctx, s.users.FindByEmail, email)
		if err != nil {
			return nil, fmt.Errorf("sign up: %w", err)
		}
		if taken {
			reasons = append(reasons, emailTaken(email))
		}
	}

	reasons = append(reasons, s.policy.CheckPassword(password)...)
	if len(reasons) > 0 {
		return nil, domain.NewValidationError(reasons...)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Roles:        []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// A concurrent sign-up can still win the unique index.
	if err := s.users.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, domain.ErrUserExists):
			return nil, domain.NewValidationError(usernameTaken(username))
		case errors.Is(err, domain.ErrEmailExists):
			return nil, domain.NewValidationError(emailTaken(email))
		}
		return nil, fmt.Errorf("sign up: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("user signed up")
	return user, nil
}

func (s *AuthService) taken(ctx context.Context, find func(context.Context, string) (*domain.User, error), key string) (bool, error) {
	_, err := find(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrUserNotFound):
		return false, nil
	default:
		return false, err
	}
}

// SignIn checks the credentials and issues a fresh token pair. Unknown users
// and wrong passwords both return domain.ErrUnauthorized.
func (s *AuthService) SignIn(ctx context.Context, username, password string) (*domain.TokenPair, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// Spend the same bcrypt work as a real check.
			s.hasher.Verify(s.dummyPasswordHash(), password)
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("sign in: %w", err)
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, domain.ErrUnauthorized
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	if err := s.tokens.Store(ctx, user.ID, s.issuer.Issuer(), pair.RefreshToken, pair.RefreshExpiresAt); err != nil {
		return nil, fmt.Errorf("sign in: store refresh token: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("user signed in")
	return pair, nil
}

// SignOut revokes the caller's refresh token. It is idempotent and an empty
// userID is a no-op.
func (s *AuthService) SignOut(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := s.tokens.Revoke(ctx, userID, s.issuer.Issuer()); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	s.log.Info().Str("user_id", userID).Msg("user signed out")
	return nil
}

// Refresh exchanges a live refresh token for a new pair. The presented value
// is single use: it is swapped for the new one only if it is still current.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, domain.ErrUnauthorized
	}

	record, err := s.tokens.Lookup(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrRefreshTokenNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}

	if record.Issuer != s.issuer.Issuer() ||
		record.Name != domain.RefreshTokenName ||
		subtle.ConstantTimeCompare([]byte(record.Value), []byte(refreshToken)) != 1 {
		s.log.Warn().Str("user_id", record.UserID).Msg("refresh token rejected")
		return nil, domain.ErrUnauthorized
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	err = s.tokens.Rotate(ctx, user.ID, s.issuer.Issuer(), refreshToken, pair.RefreshToken, pair.RefreshExpiresAt)
	if err != nil {
		if errors.Is(err, domain.ErrRefreshTokenNotFound) {
			s.log.Warn().Str("user_id", user.ID).Msg("refresh token already rotated")
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("refresh: rotate: %w", err)
	}

	return pair, nil
}

func (s *AuthService) issuePair(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	roles, err := s.users.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	subject := *user
	subject.Roles = roles

	access, err := s.issuer.IssueAccessToken(&subject)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.IssueRefreshToken()
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: s.now().UTC().Add(s.refreshTTL),
	}, nil
}

func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.log.Error().Err(err).Msg("build dummy password hash")
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
