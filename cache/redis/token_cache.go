// Package redis implements the token cache on Redis, for deployments where
// resource authentication is spread over several instances.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openauthd/oauthd/cache"
)

const keyPrefix = "oauthd:token:"

// TokenCache implements cache.TokenCache on a Redis client. Entries carry a
// Redis TTL matching the token expiry, so stale entries age out server-side.
type TokenCache struct {
	client *redis.Client
}

// NewTokenCache creates a Redis-backed token cache.
func NewTokenCache(client *redis.Client) *TokenCache {
	return &TokenCache{client: client}
}

func (c *TokenCache) Get(ctx context.Context, tokenHash string) (*cache.Entry, error) {
	data, err := c.client.Get(ctx, keyPrefix+tokenHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis token cache get: %w", err)
	}

	var entry cache.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("redis token cache decode: %w", err)
	}
	return &entry, nil
}

func (c *TokenCache) Set(ctx context.Context, tokenHash string, entry *cache.Entry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis token cache encode: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+tokenHash, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis token cache set: %w", err)
	}
	return nil
}

func (c *TokenCache) Delete(ctx context.Context, tokenHash string) error {
	if err := c.client.Del(ctx, keyPrefix+tokenHash).Err(); err != nil {
		return fmt.Errorf("redis token cache delete: %w", err)
	}
	return nil
}

var _ cache.TokenCache = (*TokenCache)(nil)
