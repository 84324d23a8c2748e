package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// IDPathCache maintains the two-way mapping between a directory's id and its
// share-relative path, so path lookups against an already indexed share can
// resolve the directory to list without walking down from the root again.
type IDPathCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewIDPathCache initializes a Redis-backed directory id/path cache.
func NewIDPathCache(addr, prefix string, ttl time.Duration) *IDPathCache {
	return &IDPathCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Close closes the Redis client.
func (c *IDPathCache) Close() error {
	return c.client.Close()
}

func (c *IDPathCache) idKey(shareCode, dirID string) string {
	return c.prefix + shareCode + ":id:" + dirID
}

func (c *IDPathCache) pathKey(shareCode, path string) string {
	return c.prefix + shareCode + ":path:" + path
}

// SetPath stores both directions of the mapping for a directory.
func (c *IDPathCache) SetPath(ctx context.Context, shareCode, dirID, path string) error {
	if err := c.client.Set(ctx, c.idKey(shareCode, dirID), path, c.ttl).Err(); err != nil {
		return err
	}
	return c.client.Set(ctx, c.pathKey(shareCode, path), dirID, c.ttl).Err()
}

// GetPath returns the cached path for a directory id within a share.
func (c *IDPathCache) GetPath(ctx context.Context, shareCode, dirID string) (string, bool, error) {
	return c.lookup(ctx, c.idKey(shareCode, dirID))
}

// GetID returns the cached directory id for a path within a share.
func (c *IDPathCache) GetID(ctx context.Context, shareCode, path string) (string, bool, error) {
	return c.lookup(ctx, c.pathKey(shareCode, path))
}

func (c *IDPathCache) lookup(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}
