package provider

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sendloop/courier"
	"github.com/sendloop/courier/job"
)

// Simulated is the in-process reference provider. It accepts every
// message after a fixed latency, failing a configurable fraction of
// sends, and counts calls so tests can verify what reached it.
type Simulated struct {
	failureRate float64
	latency     time.Duration
	failWith    error
	rng         func() float64

	sends    atomic.Int64
	failures atomic.Int64
}

// SimulatedOption configures a Simulated provider.
type SimulatedOption func(*Simulated)

// WithFailureRate sets the fraction of sends, in [0, 1], that fail
// with a transient error.
func WithFailureRate(rate float64) SimulatedOption {
	return func(s *Simulated) { s.failureRate = rate }
}

// WithLatency sets the fixed per-send latency.
func WithLatency(d time.Duration) SimulatedOption {
	return func(s *Simulated) { s.latency = d }
}

// WithFailWith overrides the error returned on simulated failures.
// Wrap it in a permanent courier.ProviderError to exercise the
// non-retryable path.
func WithFailWith(err error) SimulatedOption {
	return func(s *Simulated) { s.failWith = err }
}

// WithRand overrides the random source. Tests inject a deterministic
// function to script failures.
func WithRand(f func() float64) SimulatedOption {
	return func(s *Simulated) { s.rng = f }
}

// NewSimulated creates a Simulated provider. By default every send
// succeeds after 10ms.
func NewSimulated(opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		latency: 10 * time.Millisecond,
		rng:     rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send simulates a delivery attempt.
func (s *Simulated) Send(ctx context.Context, email *job.Email) (*Receipt, error) {
	s.sends.Add(1)

	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return nil, &courier.ProviderError{Err: ctx.Err()}
		}
	}

	if s.failureRate > 0 && s.rng() < s.failureRate {
		s.failures.Add(1)
		if s.failWith != nil {
			return nil, s.failWith
		}
		return nil, &courier.ProviderError{Err: fmt.Errorf("simulated delivery failure to %s", email.Recipient)}
	}

	return &Receipt{
		MessageID: "sim-" + uuid.NewString(),
		Response:  "250 accepted",
	}, nil
}

// Validate always succeeds; the simulated provider has no credentials.
func (s *Simulated) Validate(_ context.Context) error { return nil }

// Health reports healthy with the configured latency.
func (s *Simulated) Health(_ context.Context) Health {
	return Health{Healthy: true, Latency: s.latency}
}

// SendCalls returns how many times Send was invoked.
func (s *Simulated) SendCalls() int64 { return s.sends.Load() }

// FailureCount returns how many sends failed.
func (s *Simulated) FailureCount() int64 { return s.failures.Load() }
