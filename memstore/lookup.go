package memstore

import (
	"context"
	"sync"

	"github.com/openauthd/oauthd/domain"
)

// ClientStore is a read-only in-memory client lookup.
type ClientStore struct {
	mu      sync.RWMutex
	clients map[string]*domain.Client
}

// NewClientStore creates a ClientStore preloaded with the given clients.
func NewClientStore(clients ...*domain.Client) *ClientStore {
	s := &ClientStore{clients: make(map[string]*domain.Client, len(clients))}
	for _, c := range clients {
		s.clients[c.ID] = c
	}
	return s
}

func (s *ClientStore) GetClient(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	cp := *client
	return &cp, nil
}

// ScopeStore is a read-only in-memory scope registry.
type ScopeStore struct {
	scopes map[string]struct{}
}

// NewScopeStore creates a ScopeStore with the given scope identifiers.
func NewScopeStore(scopes ...string) *ScopeStore {
	s := &ScopeStore{scopes: make(map[string]struct{}, len(scopes))}
	for _, sc := range scopes {
		s.scopes[sc] = struct{}{}
	}
	return s
}

func (s *ScopeStore) Exists(_ context.Context, scope string) (bool, error) {
	_, ok := s.scopes[scope]
	return ok, nil
}

var (
	_ domain.ClientStore = (*ClientStore)(nil)
	_ domain.ScopeStore  = (*ScopeStore)(nil)
)
