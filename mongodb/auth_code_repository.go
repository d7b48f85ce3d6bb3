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

// AuthCodeRepository implements domain.AuthorizationCodeStore on a MongoDB
// collection.
type AuthCodeRepository struct {
	coll  *mongo.Collection
	clock domain.Clock
}

func NewAuthCodeRepository(db *mongo.Database, clock domain.Clock) *AuthCodeRepository {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &AuthCodeRepository{
		coll:  db.Collection(AuthCodesCollection),
		clock: clock,
	}
}

func (r *AuthCodeRepository) Find(ctx context.Context, id string) (*domain.AuthorizationCode, error) {
	var code domain.AuthorizationCode
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&code)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find authorization code: %w", err)
	}
	return &code, nil
}

func (r *AuthCodeRepository) Save(ctx context.Context, code *domain.AuthorizationCode) error {
	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"_id": code.ID}, code,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save authorization code: %w", err)
	}
	return nil
}

func (r *AuthCodeRepository) Consume(ctx context.Context, id string) (*domain.AuthorizationCode, error) {
	var code domain.AuthorizationCode
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "revoked": false},
		bson.M{"$set": bson.M{"revoked": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&code)
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
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}
	return &code, nil
}

func (r *AuthCodeRepository) ClearExpired(ctx context.Context) (int, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expiry": bson.M{"$lt": r.clock.Now()}})
	if err != nil {
		return 0, fmt.Errorf("clear expired authorization codes: %w", err)
	}
	return int(res.DeletedCount), nil
}

func (r *AuthCodeRepository) ClearRevoked(ctx context.Context) (int, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"revoked": true})
	if err != nil {
		return 0, fmt.Errorf("clear revoked authorization codes: %w", err)
	}
	return int(res.DeletedCount), nil
}

var _ domain.AuthorizationCodeStore = (*AuthCodeRepository)(nil)
