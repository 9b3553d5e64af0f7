package aggregation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"finserv-applications/internal/models"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "dashboard:summary:"

// Cache stores computed summaries per caller scope.
type Cache interface {
	Get(ctx context.Context, key string) (*Summary, bool, error)
	Set(ctx context.Context, key string, summary *Summary) error
}

// CacheKey scopes cached summaries so a user can never be served another
// user's totals. Admins all share one entry.
func CacheKey(caller models.Caller) string {
	if caller.IsAdmin {
		return cacheKeyPrefix + "admin"
	}
	return cacheKeyPrefix + "user:" + caller.ID
}

// RedisCache keeps JSON-encoded summaries with a TTL. Writes to the store do
// not invalidate it; the TTL bounds staleness.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Summary, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, false, fmt.Errorf("decode cached summary %s: %w", key, err)
	}
	return &summary, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, summary *Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
