package sink

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"fundscope/internal/analyzer"
	"fundscope/internal/cache"
)

// CachedSink layers the fast-lookup cache over a durable Sink. Cache writes
// are best effort: a cache failure is logged but never fails the store,
// since the durable write already succeeded.
type CachedSink struct {
	inner Sink
	cache cache.Cacher
	ttl   time.Duration
	log   *logrus.Logger
}

// NewCachedSink wraps inner with the given cache and TTL.
func NewCachedSink(inner Sink, cacher cache.Cacher, ttl time.Duration, log *logrus.Logger) *CachedSink {
	return &CachedSink{
		inner: inner,
		cache: cacher,
		ttl:   ttl,
		log:   log,
	}
}

// Store writes through to the durable sink, then refreshes the cache when
// the record was stored or already present with equal value.
func (s *CachedSink) Store(ctx context.Context, record *analyzer.Record) (Outcome, error) {
	outcome, err := s.inner.Store(ctx, record)
	if err != nil {
		return outcome, err
	}
	if outcome == OutcomeStored || outcome == OutcomeDuplicate {
		if cacheErr := s.cache.SetAnalysis(ctx, record, s.ttl); cacheErr != nil {
			s.log.WithError(cacheErr).WithField("key", record.Key()).
				Warn("Cache write failed after durable store")
		}
	}
	return outcome, nil
}

// Get serves from the cache when possible and falls back to the durable
// sink, repopulating the cache on a hit.
func (s *CachedSink) Get(ctx context.Context, symbol string, period time.Time) (*analyzer.Record, error) {
	if record, err := s.cache.GetAnalysis(ctx, symbol, period); err == nil {
		return record, nil
	}
	record, err := s.inner.Get(ctx, symbol, period)
	if err != nil {
		return nil, err
	}
	if cacheErr := s.cache.SetAnalysis(ctx, record, s.ttl); cacheErr != nil {
		s.log.WithError(cacheErr).WithField("key", record.Key()).
			Warn("Cache repopulation failed")
	}
	return record, nil
}

// Latest always reads the durable sink; the latest period for a symbol is
// not knowable from the cache.
func (s *CachedSink) Latest(ctx context.Context, symbol string) (*analyzer.Record, error) {
	return s.inner.Latest(ctx, symbol)
}
