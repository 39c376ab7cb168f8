// Package processor implements the delivery pipeline for a single
// email job: validate the payload, check the warm-up rate limits for
// the sender's domain and account, then hand the email to the
// provider. Outcomes feed back into the limiter's reputation tracking.
//
// The order matters: malformed jobs fail before they consume rate
// limit capacity or reach the provider, and rate-limited jobs never
// reach the provider.
package processor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/sendloop/courier"
	"github.com/sendloop/courier/job"
	"github.com/sendloop/courier/provider"
	"github.com/sendloop/courier/ratelimit"
)

// ErrPaused is returned for attempts made while the processor is
// paused. It is transient: the queue retries the job on its backoff
// schedule.
var ErrPaused = errors.New("courier: processor paused")

// Stats is a point-in-time snapshot of processing counters.
type Stats struct {
	Processed   int64   `json:"processed"`
	Succeeded   int64   `json:"succeeded"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
	Running     bool    `json:"running"`
}

// Processor runs the validate → rate check → send pipeline.
type Processor struct {
	provider provider.Provider
	limiter  *ratelimit.Limiter
	logger   *slog.Logger

	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	paused    atomic.Bool
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Processor sending through the given provider under the
// given warm-up limiter.
func New(prov provider.Provider, limiter *ratelimit.Limiter, opts ...Option) *Processor {
	p := &Processor{
		provider: prov,
		limiter:  limiter,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process executes the delivery pipeline for one record. It satisfies
// the queue's ProcessFunc contract.
func (p *Processor) Process(ctx context.Context, r *job.Record) error {
	p.processed.Add(1)

	if err := p.process(ctx, r); err != nil {
		p.failed.Add(1)
		return err
	}
	p.succeeded.Add(1)
	return nil
}

func (p *Processor) process(ctx context.Context, r *job.Record) error {
	if p.paused.Load() {
		return ErrPaused
	}

	email := r.Email
	if err := Validate(email); err != nil {
		return err
	}

	if p.provider == nil {
		return courier.ErrNoProvider
	}

	domain := email.SenderDomain()

	decision := p.limiter.CheckLimit(domain, email.AccountID, email.AccountAgeDays)
	if !decision.Allowed {
		return &courier.RateLimitError{
			Reason:     decision.Reason,
			RetryAfter: decision.RetryAfter,
		}
	}

	receipt, err := p.provider.Send(ctx, email)
	if err != nil {
		p.limiter.RecordFailure(domain, email.AccountID)
		return err
	}

	p.limiter.RecordSuccess(domain, email.AccountID)

	p.logger.Debug("email delivered",
		slog.String("job_id", r.ID.String()),
		slog.String("message_id", receipt.MessageID),
		slog.String("domain", domain),
	)
	return nil
}

// Pause stops processing. Attempts made while paused fail with a
// transient error and retry on the backoff schedule.
func (p *Processor) Pause() { p.paused.Store(true) }

// Resume restarts processing.
func (p *Processor) Resume() { p.paused.Store(false) }

// IsRunning reports whether the processor is accepting work.
func (p *Processor) IsRunning() bool { return !p.paused.Load() }

// Stats returns a snapshot of the processing counters.
func (p *Processor) Stats() Stats {
	processed := p.processed.Load()
	succeeded := p.succeeded.Load()

	rate := 0.0
	if processed > 0 {
		rate = float64(succeeded) / float64(processed)
	}
	return Stats{
		Processed:   processed,
		Succeeded:   succeeded,
		Failed:      p.failed.Load(),
		SuccessRate: rate,
		Running:     !p.paused.Load(),
	}
}

// ValidateProvider forwards to the provider's credential check.
func (p *Processor) ValidateProvider(ctx context.Context) error {
	if p.provider == nil {
		return courier.ErrNoProvider
	}
	return p.provider.Validate(ctx)
}

// ProviderHealth forwards to the provider's health probe.
func (p *Processor) ProviderHealth(ctx context.Context) provider.Health {
	if p.provider == nil {
		return provider.Health{Healthy: false, Message: courier.ErrNoProvider.Error()}
	}
	return p.provider.Health(ctx)
}
