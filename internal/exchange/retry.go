package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	apperrors "fundscope/internal/errors"
)

// RetryConfig represents a bounded retry policy with exponential backoff.
// The same policy drives exchange calls and scheduler run retries.
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Factor      float64
	Jitter      float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Factor:      2.0,
		Jitter:      0.1,
	}
}

// NextWait returns the backoff duration following the given wait, applying
// the growth factor and jitter and clamping at MaxWait.
func (c *RetryConfig) NextWait(wait time.Duration) time.Duration {
	jitter := 1.0 + (c.Jitter * (2*rand.Float64() - 1))
	next := time.Duration(float64(wait) * c.Factor * jitter)
	if next > c.MaxWait {
		next = c.MaxWait
	}
	return next
}

// WithRetry runs fn, retrying errors classified retryable by the error
// taxonomy until the attempt ceiling is reached.
func WithRetry(ctx context.Context, fn func(ctx context.Context) error, config *RetryConfig) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var err error
	wait := config.InitialWait

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		if !apperrors.IsRetryable(err) {
			return err
		}

		if attempt == config.MaxRetries {
			return fmt.Errorf("max retries exceeded: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = config.NextWait(wait)
	}

	return err
}

// RetryWithResult is WithRetry for functions that return a value
func RetryWithResult[T any](ctx context.Context, fn func(ctx context.Context) (T, error), config *RetryConfig) (T, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var (
		result T
		err    error
		wait   = config.InitialWait
	)

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}

		if !apperrors.IsRetryable(err) {
			return result, err
		}

		if attempt == config.MaxRetries {
			return result, fmt.Errorf("max retries exceeded: %w", err)
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
		}
		wait = config.NextWait(wait)
	}

	return result, err
}
