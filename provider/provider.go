// Package provider defines the mail transport abstraction consumed by
// the processor, together with a simulated reference implementation for
// testing and development. Concrete transports (SMTP relays, ESP APIs)
// live outside the core and implement the same interface.
package provider

import (
	"context"
	"time"

	"github.com/sendloop/courier/job"
)

// Receipt is the provider's acknowledgement of an accepted message.
type Receipt struct {
	MessageID string `json:"message_id"`
	Response  string `json:"response"`
}

// Health is a point-in-time assessment of the provider.
type Health struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Message string        `json:"message,omitempty"`
}

// Provider delivers emails. Send may return a courier.ProviderError
// tagged Permanent for non-retryable failures; any other error is
// treated as transient and retried through the queue's backoff.
type Provider interface {
	// Send delivers the email and returns a receipt on success.
	Send(ctx context.Context, email *job.Email) (*Receipt, error)

	// Validate checks the provider's configuration and credentials.
	Validate(ctx context.Context) error

	// Health reports the provider's current availability and latency.
	Health(ctx context.Context) Health
}
