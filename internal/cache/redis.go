package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"civicapp/internal/config"
	"civicapp/internal/models"
	"civicapp/internal/observability"
	contextutils "civicapp/internal/utils"

	"github.com/redis/go-redis/v9"
)

// RedisCache is an AggregateCache backed by redis; entries expire server-side
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to redisURL and verifies the connection
func NewRedisCache(ctx context.Context, redisURL, prefix string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeInvalidFormat, contextutils.SeverityError, "Invalid redis url", err.Error(), err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, config.DependencyPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeCacheUnavailable, contextutils.SeverityError, "Failed to connect to redis", err.Error(), err)
	}

	return NewRedisCacheWithClient(client, prefix), nil
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(key string) string {
	return c.prefix + key
}

// Get returns the snapshot stored under key; a missing key is a miss, not an error
func (c *RedisCache) Get(ctx context.Context, key string) (result *models.DashboardStats, found bool, err error) {
	ctx, span := observability.TraceCacheFunction(ctx, "redis_get", observability.AttributeCacheKey(key))
	defer observability.FinishSpan(span, &err)

	payload, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cacheUnavailable("redis get failed", err)
	}

	var stats models.DashboardStats
	if err := json.Unmarshal(payload, &stats); err != nil {
		// A corrupt entry behaves like a miss and is overwritten by the next Put
		return nil, false, nil
	}
	return &stats, true, nil
}

// Put stores stats under key with ttl; a non-positive ttl removes the key instead
func (c *RedisCache) Put(ctx context.Context, key string, stats *models.DashboardStats, ttl time.Duration) (err error) {
	ctx, span := observability.TraceCacheFunction(ctx, "redis_put", observability.AttributeCacheKey(key))
	defer observability.FinishSpan(span, &err)

	if ttl <= 0 || stats == nil {
		return c.Invalidate(ctx, key)
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return contextutils.WrapError(err, "failed to encode dashboard stats")
	}
	if err := c.client.Set(ctx, c.key(key), payload, ttl).Err(); err != nil {
		return cacheUnavailable("redis set failed", err)
	}
	return nil
}

// Invalidate deletes key; deleting an absent key succeeds
func (c *RedisCache) Invalidate(ctx context.Context, key string) (err error) {
	ctx, span := observability.TraceCacheFunction(ctx, "redis_invalidate", observability.AttributeCacheKey(key))
	defer observability.FinishSpan(span, &err)

	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return cacheUnavailable("redis del failed", err)
	}
	return nil
}

// Ping checks connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return cacheUnavailable("redis ping failed", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func cacheUnavailable(message string, cause error) error {
	return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeCacheUnavailable, contextutils.SeverityWarn, message, cause.Error(), cause)
}
