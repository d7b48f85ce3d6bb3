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

// AccessTokenRepository implements domain.AccessTokenStore on a MongoDB
// collection.
type AccessTokenRepository struct {
	coll  *mongo.Collection
	clock domain.Clock
}

func NewAccessTokenRepository(db *mongo.Database, clock domain.Clock) *AccessTokenRepository {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &AccessTokenRepository{
		coll:  db.Collection(AccessTokensCollection),
		clock: clock,
	}
}

func (r *AccessTokenRepository) Find(ctx context.Context, id string) (*domain.AccessToken, error) {
	var token domain.AccessToken
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find access token: %w", err)
	}
	return &token, nil
}

func (r *AccessTokenRepository) Save(ctx context.Context, token *domain.AccessToken) error {
	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"_id": token.ID}, token,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save access token: %w", err)
	}
	return nil
}

func (r *AccessTokenRepository) Consume(ctx context.Context, id string) (*domain.AccessToken, error) {
	var token domain.AccessToken
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "revoked": false},
		bson.M{"$set": bson.M{"revoked": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Either absent or already revoked; tell them apart for the caller.
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
		return nil, fmt.Errorf("consume access token: %w", err)
	}
	return &token, nil
}

func (r *AccessTokenRepository) ClearExpired(ctx context.Context) (int, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expiry": bson.M{"$lt": r.clock.Now()}})
	if err != nil {
		return 0, fmt.Errorf("clear expired access tokens: %w", err)
	}
	return int(res.DeletedCount), nil
}

func (r *AccessTokenRepository) ClearRevoked(ctx context.Context) (int, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"revoked": true})
	if err != nil {
		return 0, fmt.Errorf("clear revoked access tokens: %w", err)
	}
	return int(res.DeletedCount), nil
}

var _ domain.AccessTokenStore = (*AccessTokenRepository)(nil)
