package courier

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Not found errors.
	ErrJobNotFound   = errors.New("courier: job not found")
	ErrQueueNotFound = errors.New("courier: queue not found")
	ErrDLQNotFound   = errors.New("courier: dlq entry not found")
	ErrAlertNotFound = errors.New("courier: alert not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("courier: job already exists")

	// State errors.
	ErrInvalidState  = errors.New("courier: invalid state transition")
	ErrQueuePaused   = errors.New("courier: queue is paused")
	ErrServiceClosed = errors.New("courier: queue service closed")

	// Provider errors.
	ErrNoProvider = errors.New("courier: no provider configured")
)

// ValidationError marks a job as malformed. Validation failures are
// terminal: the job is failed immediately, is never retried, and never
// reaches the rate limiter or the provider.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("courier: invalid job: %s: %s", e.Field, e.Reason)
}

// RateLimitError reports that a send was rejected by the warm-up rate
// limiter or the reputation circuit breaker. RetryAfter is a hint for
// when the violated window rolls over; the queue uses it in place of
// the standard backoff schedule when scheduling the retry.
type RateLimitError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("courier: rate limited: %s (retry after %s)", e.Reason, e.RetryAfter)
}

// ProviderError wraps a failure reported by the mail provider.
// Permanent errors (rejected recipient, invalid credentials) skip the
// remaining retry budget and dead-letter immediately; transient errors
// go through the standard backoff schedule.
type ProviderError struct {
	Permanent bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("courier: provider: permanent: %v", e.Err)
	}
	return fmt.Sprintf("courier: provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsPermanent reports whether err carries a permanent, non-retryable
// provider failure.
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Permanent
}
