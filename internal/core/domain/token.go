package domain

import "time"

// RefreshTokenName is the fixed name refresh tokens are stored under.
const RefreshTokenName = "refresh_token"

// RefreshToken is the single live refresh token of a user for one issuer.
type RefreshToken struct {
	UserID    string
	Issuer    string
	Name      string
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the token is no longer usable at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// TokenPair is the result of a successful sign-in or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Identity is the caller resolved from a verified access token.
type Identity struct {
	UserID  string
	TokenID string
	Roles   []string
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if NormalizeName(r) == NormalizeName(role) {
			return true
		}
	}
	return false
}
