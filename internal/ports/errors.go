package ports

import (
	"errors"
	"fmt"
	"time"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrUnknownSymbol        = errors.New("symbol not listed on the exchange")

	// Download Specific Errors
	ErrRetryExhausted = errors.New("rate limit backoff budget exhausted")
	ErrPoolClosed     = errors.New("worker pool is shutting down")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)

// BackoffTier selects how aggressively a worker backs off after being rate limited.
type BackoffTier int

const (
	TierThrottled BackoffTier = iota + 1 // HTTP 429, request weight exceeded
	TierBanned                           // HTTP 418, IP auto-banned
)

// Multiplier scales the base backoff delay for the tier.
func (t BackoffTier) Multiplier() float64 {
	switch t {
	case TierBanned:
		return 4
	default:
		return 1
	}
}

func (t BackoffTier) String() string {
	switch t {
	case TierThrottled:
		return "throttled"
	case TierBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// RateLimitError reports that the exchange refused a request because of
// request weight. It is retryable after a backoff.
type RateLimitError struct {
	Tier       BackoffTier
	StatusCode int           // HTTP status, 0 if unknown
	Code       int64         // Exchange error code, 0 if none
	RetryAfter time.Duration // Server supplied wait, 0 if none
	Err        error
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("rate limited (%s, status %d, code %d)", e.Tier, e.StatusCode, e.Code)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %s", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RateLimitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRateLimited}
	}
	return []error{ErrRateLimited, e.Err}
}

// FatalError is any exchange failure that must not be retried.
type FatalError struct {
	Op   string
	Code int64 // Exchange error code, 0 if none
	Err  error // Wraps one of the sentinels above
}

func (e *FatalError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s failed (code %d): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// SinkError reports a persistence failure of a named sink.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a retryable rate limit error and returns it.
func IsRateLimited(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
