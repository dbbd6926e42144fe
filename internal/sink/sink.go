package sink

import (
	"context"
	"time"

	"fundscope/internal/analyzer"
)

// Outcome classifies the result of an idempotent store attempt.
type Outcome string

const (
	// OutcomeStored means the record was written for the first time
	OutcomeStored Outcome = "stored"
	// OutcomeDuplicate means a value-equal record already existed; the
	// write was a no-op
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeConflict means a different record already exists under the
	// same (symbol, period) key; the existing record is kept
	OutcomeConflict Outcome = "conflict"
)

// Sink persists completed analysis records keyed by (symbol, period).
// Store never overwrites: the first write for a key wins, and concurrent
// writers racing on the same key observe exactly one OutcomeStored.
type Sink interface {
	Store(ctx context.Context, record *analyzer.Record) (Outcome, error)
	Get(ctx context.Context, symbol string, period time.Time) (*analyzer.Record, error)
	Latest(ctx context.Context, symbol string) (*analyzer.Record, error)
}
