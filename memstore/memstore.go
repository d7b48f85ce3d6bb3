// Package memstore holds map-backed implementations of the entity stores
// and the client/scope lookups: the reference backend for tests and small
// single-process deployments. All operations take the store mutex, which is
// what makes Consume an atomic revoke-if-live.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/openauthd/oauthd/domain"
)

// entity constrains the token kinds a Store can hold.
type entity[T any] interface {
	Identifier() string
	ExpiresAt() time.Time
	IsRevoked() bool
	Revoke()
	Clone() T
}

// Store is an in-memory entity store keyed by identifier. Entities are
// cloned on the way in and out, so callers never share memory with the
// backing map.
type Store[T entity[T]] struct {
	mu    sync.RWMutex
	clock domain.Clock
	items map[string]T
}

func newStore[T entity[T]](clock domain.Clock) *Store[T] {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Store[T]{
		clock: clock,
		items: make(map[string]T),
	}
}

// NewAccessTokenStore creates an in-memory AccessTokenStore.
func NewAccessTokenStore(clock domain.Clock) *Store[*domain.AccessToken] {
	return newStore[*domain.AccessToken](clock)
}

// NewRefreshTokenStore creates an in-memory RefreshTokenStore.
func NewRefreshTokenStore(clock domain.Clock) *Store[*domain.RefreshToken] {
	return newStore[*domain.RefreshToken](clock)
}

// NewAuthorizationCodeStore creates an in-memory AuthorizationCodeStore.
func NewAuthorizationCodeStore(clock domain.Clock) *Store[*domain.AuthorizationCode] {
	return newStore[*domain.AuthorizationCode](clock)
}

// Find returns the entity with the given identifier, or (nil, nil).
func (s *Store[T]) Find(_ context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero T
	item, ok := s.items[id]
	if !ok {
		return zero, nil
	}
	return item.Clone(), nil
}

// Save upserts the entity by identifier.
func (s *Store[T]) Save(_ context.Context, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[item.Identifier()] = item.Clone()
	return nil
}

// Consume atomically revokes a live entity and returns it. A second Consume
// of the same identifier sees domain.ErrAlreadyRevoked; a miss is (nil, nil).
func (s *Store[T]) Consume(_ context.Context, id string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	item, ok := s.items[id]
	if !ok {
		return zero, nil
	}
	if item.IsRevoked() {
		return zero, domain.ErrAlreadyRevoked
	}
	item.Revoke()
	return item.Clone(), nil
}

// ClearExpired removes entities whose expiry is strictly before the clock's
// now. An entity expiring exactly now survives.
func (s *Store[T]) ClearExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for id, item := range s.items {
		if item.ExpiresAt().Before(now) {
			delete(s.items, id)
			removed++
		}
	}
	return removed, nil
}

// ClearRevoked removes revoked entities regardless of expiry.
func (s *Store[T]) ClearRevoked(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, item := range s.items {
		if item.IsRevoked() {
			delete(s.items, id)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored entities.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

var (
	_ domain.AccessTokenStore       = (*Store[*domain.AccessToken])(nil)
	_ domain.RefreshTokenStore      = (*Store[*domain.RefreshToken])(nil)
	_ domain.AuthorizationCodeStore = (*Store[*domain.AuthorizationCode])(nil)
)
