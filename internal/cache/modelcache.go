package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agscout/trapsync/internal/reconcile"
)

// ModelCache stores pest-name resolutions in Redis so repeated runs do
// not re-issue ModelCard lookups for the same free-text names.
type ModelCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewModelCache creates a cache with the given entry TTL.
func NewModelCache(redisClient *redis.Client, ttl time.Duration) *ModelCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ModelCache{redis: redisClient, ttl: ttl}
}

func cacheKey(pestName string) string {
	return fmt.Sprintf("pest_model:%s", pestName)
}

// Get retrieves a cached resolution. Returns nil on a miss.
func (c *ModelCache) Get(ctx context.Context, pestName string) (*reconcile.Resolution, error) {
	data, err := c.redis.Get(ctx, cacheKey(pestName)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resolution from Redis: %w", err)
	}

	var res reconcile.Resolution
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resolution: %w", err)
	}

	return &res, nil
}

// Put stores a resolution outcome, matched or not, with the TTL so
// stale entries age out after ModelCard changes.
func (c *ModelCache) Put(ctx context.Context, pestName string, res reconcile.Resolution) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal resolution: %w", err)
	}

	if err := c.redis.Set(ctx, cacheKey(pestName), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set resolution in Redis: %w", err)
	}

	return nil
}
