package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/openauthd/oauthd/domain"
)

// ClientRepository is the read-only client lookup backed by MongoDB. Client
// administration writes to the collection outside this core.
type ClientRepository struct {
	coll *mongo.Collection
}

func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{coll: db.Collection(ClientsCollection)}
}

func (r *ClientRepository) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	var client domain.Client
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&client)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find client: %w", err)
	}
	return &client, nil
}

// ScopeRepository is the read-only scope registry backed by MongoDB.
type ScopeRepository struct {
	coll *mongo.Collection
}

func NewScopeRepository(db *mongo.Database) *ScopeRepository {
	return &ScopeRepository{coll: db.Collection(ScopesCollection)}
}

func (r *ScopeRepository) Exists(ctx context.Context, scope string) (bool, error) {
	err := r.coll.FindOne(ctx, bson.M{"_id": scope}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find scope: %w", err)
	}
	return true, nil
}

var (
	_ domain.ClientStore = (*ClientRepository)(nil)
	_ domain.ScopeStore  = (*ScopeRepository)(nil)
)
