package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the read-through cache the pricing resolver uses for catalog and discount
// lookups. It is constructed per process and injected, never a package-level singleton.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	err = json.Unmarshal(data, dest)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// NoopCache satisfies Cache without storing anything. Used when Redis is not
// configured and by tests that want resolver calls to always hit the repositories.
type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, key string, dest any) (bool, error) { return false, nil }

func (NoopCache) Set(ctx context.Context, key string, value any) error { return nil }

func (NoopCache) Delete(ctx context.Context, key string) error { return nil }
