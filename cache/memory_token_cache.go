package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryTokenCache implements TokenCache on ttlcache, expiring each entry at
// its token's expiry.
type MemoryTokenCache struct {
	cache *ttlcache.Cache[string, *Entry]
}

// NewMemoryTokenCache creates an in-memory token cache with automatic
// cleanup. Call Close to stop the cleanup goroutine.
func NewMemoryTokenCache() *MemoryTokenCache {
	c := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *Entry](),
	)
	go c.Start()

	return &MemoryTokenCache{cache: c}
}

func (c *MemoryTokenCache) Get(_ context.Context, tokenHash string) (*Entry, error) {
	item := c.cache.Get(tokenHash)
	if item == nil {
		return nil, nil
	}
	return item.Value(), nil
}

func (c *MemoryTokenCache) Set(_ context.Context, tokenHash string, entry *Entry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	c.cache.Set(tokenHash, entry, ttl)
	return nil
}

func (c *MemoryTokenCache) Delete(_ context.Context, tokenHash string) error {
	c.cache.Delete(tokenHash)
	return nil
}

// Close stops the cleanup goroutine.
func (c *MemoryTokenCache) Close() error {
	c.cache.Stop()
	return nil
}

var _ TokenCache = (*MemoryTokenCache)(nil)
