// README: Read-through Redis cache for catalog routes.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"metro/internal/types"
)

const routeKeyPrefix = "catalog:route:%s"

type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewCache(redis *redis.Client, ttl time.Duration) *Cache {
	return &Cache{redis: redis, ttl: ttl}
}

// Get returns the cached route and whether it was present.
func (c *Cache) Get(ctx context.Context, id types.ID) (*Route, bool, error) {
	val, err := c.redis.Get(ctx, routeKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var r Route
	if err := json.Unmarshal(val, &r); err != nil {
		return nil, false, fmt.Errorf("decode cached route %s: %w", id, err)
	}
	return &r, true, nil
}

func (c *Cache) Set(ctx context.Context, r *Route) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, routeKey(r.ID), payload, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, id types.ID) error {
	return c.redis.Del(ctx, routeKey(id)).Err()
}

func routeKey(id types.ID) string {
	return fmt.Sprintf(routeKeyPrefix, string(id))
}
