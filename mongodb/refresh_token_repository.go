package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/openauthd/oauthd/domain"
)

// RefreshTokenRepository implements domain.RefreshTokenStore on a MongoDB
// collection.
type RefreshTokenRepository struct {
	coll  *mongo.Collection
	clock domain.Clock
}

func NewRefreshTokenRepository(db *mongo.Database, clock domain.Clock) *RefreshTokenRepository {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &RefreshTokenRepository{
		coll:  db.Collection(RefreshTokensCollection),
		clock: clock,
	}
}

func (r *RefreshTokenRepository) Find(ctx context.Context, id string) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &token, nil
}

func (r *RefreshTokenRepository) Save(ctx context.Context, token *domain.RefreshToken) error {
	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"_id": token.ID}, token,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) Consume(ctx context.Context, id string) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "revoked": false},
		bson.M{"$set": bson.M{"revoked": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		existing, findErr := r.Find(ctx, id)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, nil
		}
		return nil, domain.ErrAlreadyRevoked
	}
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	return &token, nil
}

func (r *RefreshTokenRepository) ClearExpired(ctx context.Context) (int, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expiry": bson.M{"$lt": r.clock.Now()}})
	if err != nil {
		return 0, fmt.Errorf("clear expired refresh tokens: %w", err)
	}
	return int(res.DeletedCount), nil
}

func (r *RefreshTokenRepository) ClearRevoked(ctx context.Context) (int, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"revoked": true})
	if err != nil {
		return 0, fmt.Errorf("clear revoked refresh tokens: %w", err)
	}
	return int(res.DeletedCount), nil
}

var _ domain.RefreshTokenStore = (*RefreshTokenRepository)(nil)
