package ports

import (
	"context"
	"time"

	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
)

// RefreshTokenStore keeps at most one live refresh token per (user, issuer).
type RefreshTokenStore interface {
	// Store upserts the token row for (userID, issuer), replacing any prior value.
	Store(ctx context.Context, userID, issuer, value string, expiresAt time.Time) error
	// Lookup returns the record whose value equals value exactly.
	// Missing or expired records yield domain.ErrRefreshTokenNotFound.
	Lookup(ctx context.Context, value string) (*domain.RefreshToken, error)
	// Rotate replaces current with next only if current is still the stored
	// value; otherwise it returns domain.ErrRefreshTokenNotFound.
	Rotate(ctx context.Context, userID, issuer, current, next string, expiresAt time.Time) error
	// Revoke deletes the row. Revoking nothing is not an error.
	Revoke(ctx context.Context, userID, issuer string) error
}
