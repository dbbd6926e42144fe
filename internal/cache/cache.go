package cache

import (
	"context"
	"fmt"
	"time"

	"fundscope/internal/analyzer"
	"fundscope/internal/config"
)

// Cacher is the fast-lookup layer in front of the persistent store. Keys are
// "SYMBOL:RFC3339 period"; values are serialized analysis records with a TTL.
type Cacher interface {
	// SetAnalysis stores a record under its (symbol, period) key
	SetAnalysis(ctx context.Context, record *analyzer.Record, ttl time.Duration) error

	// GetAnalysis returns the cached record for (symbol, period), or a
	// NOT_FOUND error when absent or expired
	GetAnalysis(ctx context.Context, symbol string, period time.Time) (*analyzer.Record, error)

	// HealthCheck verifies the cache backend is reachable
	HealthCheck(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// Key builds the cache key for a (symbol, period) pair.
func Key(symbol string, period time.Time) string {
	return fmt.Sprintf("%s:%s", symbol, period.UTC().Format(time.RFC3339))
}

// NewCacher returns a Redis-backed cache when Redis is enabled in the
// configuration, and an in-process cache otherwise.
func NewCacher(cfg config.RedisConfig) (Cacher, error) {
	if cfg.Enabled {
		return NewRedisCache(cfg)
	}
	return NewMemoryCache(), nil
}
