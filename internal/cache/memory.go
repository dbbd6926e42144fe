package cache

import (
	"context"
	"sync"
	"time"

	"fundscope/internal/analyzer"
	apperrors "fundscope/internal/errors"
)

type memoryEntry struct {
	record    *analyzer.Record
	expiresAt time.Time
}

// MemoryCache is an in-process Cacher used when Redis is disabled. Entries
// expire lazily on read and are swept by a background janitor.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	done    chan struct{}
	once    sync.Once
}

// NewMemoryCache creates an in-process cache and starts its janitor.
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
	go c.janitor()
	return c
}

// SetAnalysis stores the record under its key. A non-positive ttl means the
// entry never expires.
func (c *MemoryCache) SetAnalysis(ctx context.Context, record *analyzer.Record, ttl time.Duration) error {
	entry := memoryEntry{record: record}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[record.Key()] = entry
	c.mu.Unlock()
	return nil
}

// GetAnalysis returns the cached record or a NOT_FOUND error.
func (c *MemoryCache) GetAnalysis(ctx context.Context, symbol string, period time.Time) (*analyzer.Record, error) {
	key := Key(symbol, period)
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		ok = false
	}
	if !ok {
		return nil, apperrors.NewAppError(apperrors.ErrCodeNotFound, "analysis not cached", nil).
			WithContext("key", key)
	}
	return entry.record, nil
}

// HealthCheck always succeeds for the in-process cache.
func (c *MemoryCache) HealthCheck(ctx context.Context) error {
	return nil
}

// Close stops the janitor.
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *MemoryCache) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, entry := range c.entries {
				if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
