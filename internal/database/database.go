package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"fundscope/internal/config"
	apperrors "fundscope/internal/errors"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	*sql.DB
}

// New opens a PostgreSQL connection pool and verifies connectivity.
func New(cfg config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeDBConnection, "open database")
	}

	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.WrapError(err, apperrors.ErrCodeDBConnection, "ping database")
	}
	return &DB{DB: db}, nil
}

// HealthCheck verifies the pool can reach the database.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeDBConnection, "ping database")
	}
	return nil
}
