package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// PickCodeCache caches file pick codes keyed by share code and full path,
// so later lookups (e.g. building download links for an already indexed
// share) do not need to re-crawl the tree.
type PickCodeCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewPickCodeCache initializes a Redis-backed pick code cache.
func NewPickCodeCache(addr, prefix string, ttl time.Duration) *PickCodeCache {
	return &PickCodeCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Close closes the Redis client.
func (c *PickCodeCache) Close() error {
	return c.client.Close()
}

func (c *PickCodeCache) key(shareCode, path string) string {
	return c.prefix + shareCode + ":" + path
}

// Set stores the pick code for a file path within a share.
func (c *PickCodeCache) Set(ctx context.Context, shareCode, path, pickCode string) error {
	return c.client.Set(ctx, c.key(shareCode, path), pickCode, c.ttl).Err()
}

// Get returns the cached pick code for a file path within a share.
func (c *PickCodeCache) Get(ctx context.Context, shareCode, path string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.key(shareCode, path)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}
