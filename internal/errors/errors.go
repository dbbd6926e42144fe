package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode identifies a class of failure in the pipeline
type ErrorCode string

const (
	// Generic errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"

	// Exchange errors
	ErrCodeTransientNetwork ErrorCode = "TRANSIENT_NETWORK_ERROR"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"
	ErrCodeDataUnavailable  ErrorCode = "DATA_UNAVAILABLE"
	ErrCodeExchangeAPI      ErrorCode = "EXCHANGE_API_ERROR"

	// Collector errors
	ErrCodeNoData ErrorCode = "NO_DATA"

	// Analyzer errors
	ErrCodeInsufficientHistory ErrorCode = "INSUFFICIENT_HISTORY"
	ErrCodeMalformedCandle     ErrorCode = "MALFORMED_CANDLE"

	// Result sink errors
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Scheduler errors
	ErrCodeSchedulerOverrun ErrorCode = "SCHEDULER_OVERRUN"

	// Infrastructure errors
	ErrCodeDBConnection    ErrorCode = "DB_CONNECTION_ERROR"
	ErrCodeDBQuery         ErrorCode = "DB_QUERY_ERROR"
	ErrCodeCacheConnection ErrorCode = "CACHE_CONNECTION_ERROR"
	ErrCodeCacheOperation  ErrorCode = "CACHE_OPERATION_ERROR"
)

// ErrorSeverity classifies how loudly an error should be surfaced
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// AppError is the application error carried across component boundaries
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Severity  ErrorSeverity          `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to an HTTP status code
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeNotFound, ErrCodeDataUnavailable, ErrCodeNoData:
		return http.StatusNotFound
	case ErrCodeInvalidInput, ErrCodeMalformedCandle:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeSchedulerOverrun:
		return http.StatusConflict
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeInsufficientHistory:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  getSeverityByCode(code),
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// NewAppErrorWithDetails creates a new application error with detail text
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	err := NewAppError(code, message, cause)
	err.Details = details
	return err
}

// WithContext attaches a key/value pair to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// getSeverityByCode determines severity from the error code
func getSeverityByCode(code ErrorCode) ErrorSeverity {
	switch code {
	case ErrCodeInternal, ErrCodeDBConnection, ErrCodeConflict:
		return SeverityCritical
	case ErrCodeDBQuery, ErrCodeNoData, ErrCodeTimeout:
		return SeverityHigh
	case ErrCodeTransientNetwork, ErrCodeRateLimited, ErrCodeExchangeAPI,
		ErrCodeCacheConnection, ErrCodeCacheOperation, ErrCodeInsufficientHistory:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// IsRetryable reports whether an operation failing with this error may be retried
func (e *AppError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeTransientNetwork, ErrCodeRateLimited, ErrCodeTimeout,
		ErrCodeNoData, ErrCodeDBConnection, ErrCodeCacheConnection:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err (or any error it wraps) is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.IsRetryable()
	}
	return false
}

// IsCode reports whether err carries the given error code
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// WrapError wraps a standard error into an AppError, passing AppErrors through
func WrapError(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(code, message, err)
}

// GetAppError extracts an AppError from err, or nil
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
