package channel

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is a hard rate-limit signal from the channel: further sends
// must pause for at least RetryAfter. Distinct from TransientError; a rate
// limit is not a task failure.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// TransientError marks a failure worth retrying (network-class, 5xx).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient send failure: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that must never be retried
// (forbidden, chat not found, payload rejected, retries exhausted).
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return "permanent send failure: " + e.Reason + ": " + e.Err.Error()
	}
	return "permanent send failure: " + e.Reason
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as non-retryable. Returns nil for nil.
func Permanent(reason string, err error) error {
	if err == nil && reason == "" {
		return nil
	}
	return &PermanentError{Reason: reason, Err: err}
}

// IsRateLimit reports whether err carries a hard rate-limit signal and, if
// so, its retry-after duration.
func IsRateLimit(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// IsPermanent reports whether err must never be retried.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
