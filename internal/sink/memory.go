package sink

import (
	"context"
	"sync"
	"time"

	"fundscope/internal/analyzer"
	apperrors "fundscope/internal/errors"
)

// MemorySink is an in-process Sink with the same first-write-wins semantics
// as the PostgreSQL sink. Used in tests and single-process setups.
type MemorySink struct {
	mu      sync.Mutex
	records map[string]*analyzer.Record
}

// NewMemorySink creates an empty in-process sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string]*analyzer.Record)}
}

// Store keeps the first record written for a key and classifies re-writes.
func (s *MemorySink) Store(ctx context.Context, record *analyzer.Record) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[record.Key()]
	if !ok {
		s.records[record.Key()] = record
		return OutcomeStored, nil
	}
	if existing.Equal(record) {
		return OutcomeDuplicate, nil
	}
	return OutcomeConflict, nil
}

// Get returns the record stored under (symbol, period).
func (s *MemorySink) Get(ctx context.Context, symbol string, period time.Time) (*analyzer.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.Symbol() == symbol && record.Period.Equal(period) {
			return record, nil
		}
	}
	return nil, apperrors.NewAppError(apperrors.ErrCodeNotFound, "analysis not found", nil).
		WithContext("symbol", symbol).
		WithContext("period", period.UTC().Format(time.RFC3339))
}

// Latest returns the most recent record for a symbol.
func (s *MemorySink) Latest(ctx context.Context, symbol string) (*analyzer.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *analyzer.Record
	for _, record := range s.records {
		if record.Symbol() != symbol {
			continue
		}
		if latest == nil || record.Period.After(latest.Period) {
			latest = record
		}
	}
	if latest == nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeNotFound, "no analysis for symbol", nil).
			WithContext("symbol", symbol)
	}
	return latest, nil
}
