package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

const keyPrefix = "ckg:result:"

// RedisCache implements Cache on a shared Redis instance, letting several
// engine processes share one result cache. TTL expiry is delegated to
// Redis key expiration. Concurrency safety comes from the Redis client.
type RedisCache struct {
	client *redis.Client
}

// RedisOptions configures the Redis-backed cache.
type RedisOptions struct {
	Addr         string `yaml:"addr" mapstructure:"addr"`
	Password     string `yaml:"password" mapstructure:"password"`
	DB           int    `yaml:"db" mapstructure:"db"`
	PoolSize     int    `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// NewRedisCache creates a RedisCache and verifies connectivity with a
// bounded ping.
func NewRedisCache(opts RedisOptions) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, types.WrapError(types.CACHE_UNAVAILABLE, "failed to connect to redis at "+opts.Addr, err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a cached payload. A missing or expired key is a miss, as
// is any transport error: the cache degrades to a read-through.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) || err != nil {
		return nil, false
	}
	return data, true
}

// Set stores a payload under the key with Redis-side TTL expiry.
// Write failures are swallowed; the cache is best-effort.
func (c *RedisCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	_ = c.client.Set(ctx, keyPrefix+key, payload, ttl).Err()
}

// Clear removes all cached results under the cache prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	keys, err := c.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return types.NewRetryableError(types.CACHE_UNAVAILABLE, "failed to scan cache keys: "+err.Error())
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return types.NewRetryableError(types.CACHE_UNAVAILABLE, "failed to delete cache keys: "+err.Error())
	}
	return nil
}

// Health pings the Redis instance.
func (c *RedisCache) Health(ctx context.Context) types.HealthStatus {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.client.Ping(pingCtx).Err(); err != nil {
		return types.Unhealthy(fmt.Sprintf("redis ping failed: %v", err))
	}
	return types.Healthy("connected to Redis")
}

// Close closes the Redis client connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
