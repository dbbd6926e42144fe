package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"fundscope/internal/analyzer"
	"fundscope/internal/database"
	apperrors "fundscope/internal/errors"
)

// PostgresSink stores records in the fluctuation_analysis table. Idempotence
// is enforced by the unique (symbol, period) constraint: the insert uses
// ON CONFLICT DO NOTHING, so concurrent writers on the same key race safely
// and exactly one observes OutcomeStored.
type PostgresSink struct {
	db *database.DB
}

// NewPostgresSink creates a sink over the given database pool.
func NewPostgresSink(db *database.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Store writes the record unless one already exists for its key. When a row
// is already present, the stored payload is compared structurally to decide
// between OutcomeDuplicate and OutcomeConflict.
func (s *PostgresSink) Store(ctx context.Context, record *analyzer.Record) (Outcome, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrCodeInternal, "marshal record")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO fluctuation_analysis (symbol, period, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol, period) DO NOTHING`,
		record.Symbol(), record.Period.UTC(), payload)
	if err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrCodeDBQuery, "insert record")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrCodeDBQuery, "rows affected")
	}
	if rows == 1 {
		return OutcomeStored, nil
	}

	// Jsonb comparison is structural, so key order and float formatting
	// differences do not produce false conflicts.
	var equal bool
	err = s.db.QueryRowContext(ctx, `
		SELECT payload = $3::jsonb
		FROM fluctuation_analysis
		WHERE symbol = $1 AND period = $2`,
		record.Symbol(), record.Period.UTC(), payload).Scan(&equal)
	if err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrCodeDBQuery, "compare record")
	}
	if equal {
		return OutcomeDuplicate, nil
	}
	return OutcomeConflict, nil
}

// Get returns the record stored under (symbol, period).
func (s *PostgresSink) Get(ctx context.Context, symbol string, period time.Time) (*analyzer.Record, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM fluctuation_analysis
		WHERE symbol = $1 AND period = $2`,
		symbol, period.UTC()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewAppError(apperrors.ErrCodeNotFound, "analysis not found", nil).
			WithContext("symbol", symbol).
			WithContext("period", period.UTC().Format(time.RFC3339))
	}
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeDBQuery, "select record")
	}
	return decodeRecord(payload)
}

// Latest returns the most recent record for a symbol.
func (s *PostgresSink) Latest(ctx context.Context, symbol string) (*analyzer.Record, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM fluctuation_analysis
		WHERE symbol = $1
		ORDER BY period DESC
		LIMIT 1`,
		symbol).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewAppError(apperrors.ErrCodeNotFound, "no analysis for symbol", nil).
			WithContext("symbol", symbol)
	}
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeDBQuery, "select latest record")
	}
	return decodeRecord(payload)
}

func decodeRecord(payload []byte) (*analyzer.Record, error) {
	var record analyzer.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInternal, "unmarshal record")
	}
	return &record, nil
}
