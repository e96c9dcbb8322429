package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
)

type ownerKey struct {
	userID string
	issuer string
}

// RefreshTokenStore keeps one token per (user, issuer) plus a reverse index
// by value.
type RefreshTokenStore struct {
	mu      sync.Mutex
	owners  map[ownerKey]domain.RefreshToken
	byValue map[string]ownerKey
	now     func() time.Time
}

func NewRefreshTokenStore() *RefreshTokenStore {
	return &RefreshTokenStore{
		owners:  make(map[ownerKey]domain.RefreshToken),
		byValue: make(map[string]ownerKey),
		now:     time.Now,
	}
}

func (s *RefreshTokenStore) Store(_ context.Context, userID, issuer, value string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(ownerKey{userID, issuer}, value, expiresAt)
	return nil
}

// put expects s.mu to be held.
func (s *RefreshTokenStore) put(key ownerKey, value string, expiresAt time.Time) {
	if prev, ok := s.owners[key]; ok {
		delete(s.byValue, prev.Value)
	}
	s.owners[key] = domain.RefreshToken{
		UserID:    key.userID,
		Issuer:    key.issuer,
		Name:      domain.RefreshTokenName,
		Value:     value,
		ExpiresAt: expiresAt,
	}
	s.byValue[value] = key
}

func (s *RefreshTokenStore) Lookup(_ context.Context, value string) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byValue[value]
	if !ok {
		return nil, domain.ErrRefreshTokenNotFound
	}
	tok := s.owners[key]
	if tok.Value != value || tok.Expired(s.now()) {
		return nil, domain.ErrRefreshTokenNotFound
	}
	return &tok, nil
}

func (s *RefreshTokenStore) Rotate(_ context.Context, userID, issuer, current, next string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey{userID, issuer}
	tok, ok := s.owners[key]
	if !ok || tok.Value != current || tok.Expired(s.now()) {
		return domain.ErrRefreshTokenNotFound
	}
	s.put(key, next, expiresAt)
	return nil
}

func (s *RefreshTokenStore) Revoke(_ context.Context, userID, issuer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey{userID, issuer}
	if tok, ok := s.owners[key]; ok {
		delete(s.byValue, tok.Value)
		delete(s.owners, key)
	}
	return nil
}

func (s *RefreshTokenStore) Ping(context.Context) error { return nil }
