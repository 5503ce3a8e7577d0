package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suPer8Hu/agentk/internal/store"
)

// Cache holds the sorted model list between writes. A miss is (nil, false, nil).
type Cache interface {
	Load(ctx context.Context) ([]store.Model, bool, error)
	Save(ctx context.Context, models []store.Model) error
	Invalidate(ctx context.Context) error
}

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RedisCache struct {
	client  redisKV
	key     string
	ttl     time.Duration
	timeout time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return newRedisCache(client, ttl)
}

func newRedisCache(client redisKV, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{
		client:  client,
		key:     "agentk:catalog:models",
		ttl:     ttl,
		timeout: 500 * time.Millisecond,
	}
}

func (c *RedisCache) Load(ctx context.Context) ([]store.Model, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var models []store.Model
	if err := json.Unmarshal(raw, &models); err != nil {
		return nil, false, err
	}
	return models, true, nil
}

func (c *RedisCache) Save(ctx context.Context, models []store.Model) error {
	b, err := json.Marshal(models)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Set(ctx, c.key, b, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Del(ctx, c.key).Err()
}
