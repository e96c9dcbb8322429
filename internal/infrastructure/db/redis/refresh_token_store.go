package redis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
)

// All keys carry the {refresh} hash tag so every script touches a single
// cluster slot. Owner components are query-escaped and cannot contain ':'.
//
//	{refresh}:owner:<user>:<issuer>:refresh_token -> current value
//	{refresh}:value:<value>                       -> hash{user_id, issuer, name, expires_at}
//
// Both keys share the token's TTL.
const (
	ownerPrefix = "{refresh}:owner:"
	valuePrefix = "{refresh}:value:"

	maxWriteAttempts = 5
)

var errOwnerChanged = errors.New("owner key changed concurrently")

// KEYS: owner, new value, value the caller read from owner.
// ARGV[1] is that read value ("" when absent); the write only applies while
// owner still holds it.
const storeScript = `
local cur = redis.call("GET", KEYS[1])
if (cur or "") ~= ARGV[1] then
  return 0
end
if cur then
  redis.call("DEL", KEYS[3])
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[6])
redis.call("DEL", KEYS[2])
redis.call("HSET", KEYS[2], "user_id", ARGV[3], "issuer", ARGV[4], "name", ARGV[5], "expires_at", ARGV[7])
redis.call("PEXPIRE", KEYS[2], ARGV[6])
return 1
`

// KEYS: owner, current value, next value.
const rotateScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[2])
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[6])
redis.call("HSET", KEYS[3], "user_id", ARGV[3], "issuer", ARGV[4], "name", ARGV[5], "expires_at", ARGV[7])
redis.call("PEXPIRE", KEYS[3], ARGV[6])
return 1
`

// KEYS: owner, value the caller read from owner.
const revokeScript = `
local cur = redis.call("GET", KEYS[1])
if (cur or "") ~= ARGV[1] then
  return 0
end
if cur then
  redis.call("DEL", KEYS[2])
end
redis.call("DEL", KEYS[1])
return 1
`

var (
	storeLua  = redis.NewScript(storeScript)
	rotateLua = redis.NewScript(rotateScript)
	revokeLua = redis.NewScript(revokeScript)
)

// RefreshTokenStore keeps refresh tokens in Redis. Every write is a single
// Lua script so the owner key and the reverse index never diverge.
type RefreshTokenStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRefreshTokenStore(client redis.UniversalClient) *RefreshTokenStore {
	return &RefreshTokenStore{client: client, now: time.Now}
}

func ownerKey(userID, issuer string) string {
	return ownerPrefix + url.QueryEscape(userID) + ":" + url.QueryEscape(issuer) + ":" + domain.RefreshTokenName
}

func valueKey(value string) string {
	return valuePrefix + value
}

// currentValue returns the value owner points at, or "" when there is none.
func (s *RefreshTokenStore) currentValue(ctx context.Context, owner string) (string, error) {
	v, err := s.client.Get(ctx, owner).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// swapOwner reads owner and runs script against what it read, retrying when a
// concurrent writer moved owner in between.
func (s *RefreshTokenStore) swapOwner(ctx context.Context, script *redis.Script, owner string, keys func(prev string) []string, args func(prev string) []any) error {
	for range maxWriteAttempts {
		prev, err := s.currentValue(ctx, owner)
		if err != nil {
			return err
		}
		applied, err := script.Run(ctx, s.client, keys(prev), args(prev)...).Int()
		if err != nil {
			return err
		}
		if applied == 1 {
			return nil
		}
	}
	return errOwnerChanged
}

func (s *RefreshTokenStore) ttl(expiresAt time.Time) (int64, error) {
	ttl := expiresAt.Sub(s.now()).Milliseconds()
	if ttl <= 0 {
		return 0, fmt.Errorf("refresh token expiry %s is in the past", expiresAt.Format(time.RFC3339))
	}
	return ttl, nil
}

func (s *RefreshTokenStore) Store(ctx context.Context, userID, issuer, value string, expiresAt time.Time) error {
	ttl, err := s.ttl(expiresAt)
	if err != nil {
		return err
	}

	owner := ownerKey(userID, issuer)
	err = s.swapOwner(ctx, storeLua, owner,
		func(prev string) []string { return []string{owner, valueKey(value), valueKey(prev)} },
		func(prev string) []any {
			return []any{prev, value, userID, issuer, domain.RefreshTokenName, ttl, expiresAt.UnixMilli()}
		},
	)
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) Lookup(ctx context.Context, value string) (*domain.RefreshToken, error) {
	fields, err := s.client.HGetAll(ctx, valueKey(value)).Result()
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrRefreshTokenNotFound
	}

	tok := &domain.RefreshToken{
		UserID: fields["user_id"],
		Issuer: fields["issuer"],
		Name:   fields["name"],
		Value:  value,
	}
	if ms, err := strconv.ParseInt(fields["expires_at"], 10, 64); err == nil {
		tok.ExpiresAt = time.UnixMilli(ms).UTC()
	}
	if tok.Expired(s.now()) {
		return nil, domain.ErrRefreshTokenNotFound
	}

	current, err := s.client.Get(ctx, ownerKey(tok.UserID, tok.Issuer)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("lookup refresh token owner: %w", err)
	}
	if current != value {
		return nil, domain.ErrRefreshTokenNotFound
	}
	return tok, nil
}

func (s *RefreshTokenStore) Rotate(ctx context.Context, userID, issuer, current, next string, expiresAt time.Time) error {
	ttl, err := s.ttl(expiresAt)
	if err != nil {
		return err
	}

	swapped, err := rotateLua.Run(ctx, s.client,
		[]string{ownerKey(userID, issuer), valueKey(current), valueKey(next)},
		current, next, userID, issuer, domain.RefreshTokenName, ttl, expiresAt.UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if swapped == 0 {
		return domain.ErrRefreshTokenNotFound
	}
	return nil
}

func (s *RefreshTokenStore) Revoke(ctx context.Context, userID, issuer string) error {
	owner := ownerKey(userID, issuer)
	err := s.swapOwner(ctx, revokeLua, owner,
		func(prev string) []string { return []string{owner, valueKey(prev)} },
		func(prev string) []any { return []any{prev} },
	)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}
