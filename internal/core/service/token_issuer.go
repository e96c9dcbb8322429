package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
)

const (
	DefaultAccessTokenTTL = 10 * time.Minute
	refreshTokenBytes     = 32
)

// TokenConfig holds the signing settings for access tokens.
type TokenConfig struct {
	Key       string
	Issuer    string
	Audience  string
	AccessTTL time.Duration
}

// AccessClaims is the payload of an access token. Roles serialise under
// "role", one entry per membership.
type AccessClaims struct {
	Roles []string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTIssuer signs HS256 access tokens and mints opaque refresh tokens.
type JWTIssuer struct {
	key       []byte
	issuer    string
	audience  string
	accessTTL time.Duration
	now       func() time.Time
	random    io.Reader
	parser    *jwt.Parser
}

type IssuerOption func(*JWTIssuer)

// WithClock overrides the time source used for iat/exp and validation.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *JWTIssuer) { i.now = now }
}

// WithRandom overrides the entropy source used for jti and refresh tokens.
func WithRandom(r io.Reader) IssuerOption {
	return func(i *JWTIssuer) { i.random = r }
}

// NewTokenIssuer validates cfg and returns a ready issuer. A missing key,
// issuer or audience yields domain.ErrMissingTokenConfig.
func NewTokenIssuer(cfg TokenConfig, opts ...IssuerOption) (*JWTIssuer, error) {
	var missing []string
	if cfg.Key == "" {
		missing = append(missing, "key")
	}
	if cfg.Issuer == "" {
		missing = append(missing, "issuer")
	}
	if cfg.Audience == "" {
		missing = append(missing, "audience")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrMissingTokenConfig, strings.Join(missing, ", "))
	}

	ttl := cfg.AccessTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	i := &JWTIssuer{
		key:       []byte(cfg.Key),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		accessTTL: ttl,
		now:       time.Now,
		random:    rand.Reader,
	}
	for _, opt := range opts {
		opt(i)
	}

	i.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	return i, nil
}

// Issuer returns the configured issuer, which also keys stored refresh tokens.
func (i *JWTIssuer) Issuer() string {
	return i.issuer
}

func (i *JWTIssuer) IssueAccessToken(user *domain.User) (string, error) {
	jti, err := uuid.NewRandomFromReader(i.random)
	if err != nil {
		return "", fmt.Errorf("generate jti: %w", err)
	}

	now := i.now().UTC()
	claims := AccessClaims{
		Roles: user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        jti.String(),
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken returns 256 random bits, base64 encoded.
func (i *JWTIssuer) IssueRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := io.ReadFull(i.random, buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// ParseAccessToken checks algorithm, signature, expiry, issuer and audience.
// Any failure is reported as domain.ErrUnauthorized.
func (i *JWTIssuer) ParseAccessToken(token string) (*domain.Identity, error) {
	var claims AccessClaims
	if _, err := i.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}

	return &domain.Identity{
		UserID:  claims.Subject,
		TokenID: claims.ID,
		Roles:   claims.Roles,
	}, nil
}
