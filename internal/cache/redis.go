package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"fundscope/internal/analyzer"
	"fundscope/internal/config"
	apperrors "fundscope/internal/errors"
)

// RedisCache implements Cacher on a Redis backend.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeCacheConnection, "connect to redis")
	}
	return &RedisCache{client: client}, nil
}

// SetAnalysis stores the record as JSON under its (symbol, period) key.
func (c *RedisCache) SetAnalysis(ctx context.Context, record *analyzer.Record, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeCacheOperation, "marshal record")
	}
	if err := c.client.Set(ctx, record.Key(), data, ttl).Err(); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeCacheOperation, "set record")
	}
	return nil
}

// GetAnalysis fetches and decodes the cached record for (symbol, period).
func (c *RedisCache) GetAnalysis(ctx context.Context, symbol string, period time.Time) (*analyzer.Record, error) {
	data, err := c.client.Get(ctx, Key(symbol, period)).Bytes()
	if err == redis.Nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeNotFound, "analysis not cached", nil).
			WithContext("key", Key(symbol, period))
	}
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeCacheOperation, "get record")
	}

	var record analyzer.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeCacheOperation, "unmarshal record")
	}
	return &record, nil
}

// HealthCheck pings the Redis backend.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeCacheConnection, "ping redis")
	}
	return nil
}

// Close closes the underlying Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
