package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
)

const collectionUserTokens = "user_tokens"

// RefreshTokenStore keeps refresh tokens in user_tokens, one document per
// (user_id, login_provider, name). login_provider holds the token issuer.
type RefreshTokenStore struct {
	col *mongo.Collection
	now func() time.Time
}

func NewRefreshTokenStore(db *mongo.Database) *RefreshTokenStore {
	return &RefreshTokenStore{col: db.Collection(collectionUserTokens), now: time.Now}
}

type tokenDocument struct {
	UserID        string    `bson:"user_id"`
	LoginProvider string    `bson:"login_provider"`
	Name          string    `bson:"name"`
	Value         string    `bson:"value"`
	ExpiresAt     time.Time `bson:"expires_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func ownerFilter(userID, issuer string) bson.M {
	return bson.M{
		"user_id":        userID,
		"login_provider": issuer,
		"name":           domain.RefreshTokenName,
	}
}

// Store upserts the owner's document in a single statement.
func (s *RefreshTokenStore) Store(ctx context.Context, userID, issuer, value string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"value":      value,
		"expires_at": expiresAt.UTC(),
		"updated_at": s.now().UTC(),
	}}
	if _, err := s.col.UpdateOne(ctx, ownerFilter(userID, issuer), update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) Lookup(ctx context.Context, value string) (*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"value":      value,
		"expires_at": bson.M{"$gt": s.now().UTC()},
	}

	var doc tokenDocument
	if err := s.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	return &domain.RefreshToken{
		UserID:    doc.UserID,
		Issuer:    doc.LoginProvider,
		Name:      doc.Name,
		Value:     doc.Value,
		ExpiresAt: doc.ExpiresAt.UTC(),
	}, nil
}

// Rotate is a conditional update on the current value. Zero matches means
// another request rotated or revoked the token first.
func (s *RefreshTokenStore) Rotate(ctx context.Context, userID, issuer, current, next string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := s.now().UTC()
	filter := ownerFilter(userID, issuer)
	filter["value"] = current
	filter["expires_at"] = bson.M{"$gt": now}

	update := bson.M{"$set": bson.M{
		"value":      next,
		"expires_at": expiresAt.UTC(),
		"updated_at": now,
	}}

	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrRefreshTokenNotFound
	}
	return nil
}

func (s *RefreshTokenStore) Revoke(ctx context.Context, userID, issuer string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := s.col.DeleteOne(ctx, ownerFilter(userID, issuer)); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// EnsureIndexes creates the owner unique index, the value lookup index and a
// TTL index that purges expired tokens.
func (s *RefreshTokenStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "login_provider", Value: 1},
				{Key: "name", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("owner_unique"),
		},
		{
			Keys:    bson.D{{Key: "value", Value: 1}},
			Options: options.Index().SetName("value"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
		},
	})
	if err != nil {
		return fmt.Errorf("user_tokens indexes: %w", err)
	}
	return nil
}
