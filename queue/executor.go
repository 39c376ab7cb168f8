package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sendloop/courier"
	"github.com/sendloop/courier/backoff"
	"github.com/sendloop/courier/dlq"
	"github.com/sendloop/courier/hook"
	"github.com/sendloop/courier/id"
	"github.com/sendloop/courier/job"
	"github.com/sendloop/courier/middleware"
)

// ProcessFunc executes the delivery attempt for a single record. The
// processor package supplies the production implementation.
type ProcessFunc func(ctx context.Context, r *job.Record) error

// executor runs a claimed record through middleware and the process
// function, then decides the outcome: completion, retry with backoff,
// terminal failure, or dead-letter.
type executor struct {
	process ProcessFunc
	store   Store
	dlq     *dlq.Service
	hooks   *hook.Registry
	backoff backoff.Strategy
	mw      middleware.Middleware
	logger  *slog.Logger

	// onDelay notifies the delay scheduler when a record enters the
	// delayed set.
	onDelay func(jobID id.JobID, due time.Time)
}

// Execute runs a record through the middleware chain and process
// function.
//
// Outcomes:
//   - success: completed, JobCompleted emitted
//   - validation error: failed terminally, no retry, no dead-letter
//   - permanent provider error: dead-lettered immediately
//   - transient error with retries remaining: delayed with backoff
//     (a rate-limit RetryAfter hint overrides the schedule)
//   - transient error with retries exhausted: dead-lettered
func (e *executor) Execute(ctx context.Context, r *job.Record) error {
	start := time.Now()

	terminal := func(ctx context.Context) error {
		return e.process(ctx, r)
	}

	err := e.mw(ctx, r, terminal)
	elapsed := time.Since(start)

	now := time.Now().UTC()
	r.UpdatedAt = now

	if err != nil {
		return e.handleFailure(ctx, r, err, now)
	}

	return e.handleSuccess(ctx, r, now, elapsed)
}

// handleSuccess marks the record as completed and emits the lifecycle event.
func (e *executor) handleSuccess(ctx context.Context, r *job.Record, now time.Time, elapsed time.Duration) error {
	r.State = job.StateCompleted
	r.CompletedAt = &now

	if updateErr := e.store.UpdateJob(ctx, r); updateErr != nil {
		e.logger.Error("failed to update job after success",
			slog.String("job_id", r.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.hooks.EmitJobCompleted(ctx, r, elapsed)
	return nil
}

// handleFailure classifies the error and routes the record accordingly.
func (e *executor) handleFailure(ctx context.Context, r *job.Record, jobErr error, now time.Time) error {
	// Malformed jobs fail terminally. They never consumed provider or
	// rate-limit capacity, and retrying cannot fix them.
	var vErr *courier.ValidationError
	if errors.As(jobErr, &vErr) {
		return e.failTerminally(ctx, r, jobErr)
	}

	// Permanent provider rejections skip the remaining retry budget.
	if courier.IsPermanent(jobErr) {
		return e.sendToDLQ(ctx, r, jobErr)
	}

	r.Attempts++
	r.FailedReason = jobErr.Error()

	if r.Attempts <= r.MaxRetries {
		return e.scheduleRetry(ctx, r, jobErr, now)
	}

	return e.sendToDLQ(ctx, r, jobErr)
}

// failTerminally marks the record failed without retry or dead-letter.
func (e *executor) failTerminally(ctx context.Context, r *job.Record, jobErr error) error {
	r.State = job.StateFailed
	r.FailedReason = jobErr.Error()

	if updateErr := e.store.UpdateJob(ctx, r); updateErr != nil {
		e.logger.Error("failed to update job as failed",
			slog.String("job_id", r.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.hooks.EmitJobFailed(ctx, r, jobErr)

	e.logger.Warn("job failed validation",
		slog.String("job_id", r.ID.String()),
		slog.String("queue", r.Queue),
		slog.String("error", jobErr.Error()),
	)

	return jobErr
}

// scheduleRetry moves the record to the delayed set with a backoff
// delay. A RateLimitError carrying a RetryAfter hint overrides the
// backoff schedule, so the retry lands when capacity actually frees up.
func (e *executor) scheduleRetry(ctx context.Context, r *job.Record, jobErr error, now time.Time) error {
	delay := e.backoff.Delay(r.Attempts)

	var rlErr *courier.RateLimitError
	if errors.As(jobErr, &rlErr) && rlErr.RetryAfter > 0 {
		delay = rlErr.RetryAfter
	}

	until := now.Add(delay)
	r.State = job.StateDelayed
	r.DelayUntil = &until

	if updateErr := e.store.UpdateJob(ctx, r); updateErr != nil {
		e.logger.Error("failed to update job for retry",
			slog.String("job_id", r.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	if e.onDelay != nil {
		e.onDelay(r.ID, until)
	}

	e.hooks.EmitJobRetrying(ctx, r, r.Attempts, until)
	e.hooks.EmitJobDelayed(ctx, r, until)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", r.ID.String()),
		slog.String("queue", r.Queue),
		slog.Int("attempt", r.Attempts),
		slog.Int("max_retries", r.MaxRetries),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("job %s retry %d/%d: %w", r.ID, r.Attempts, r.MaxRetries, jobErr)
}

// sendToDLQ preserves the record in the dead-letter queue and removes
// it from its origin queue.
func (e *executor) sendToDLQ(ctx context.Context, r *job.Record, jobErr error) error {
	r.State = job.StateFailed
	r.FailedReason = jobErr.Error()

	if e.dlq != nil {
		if dlqErr := e.dlq.Push(ctx, r, jobErr); dlqErr != nil {
			e.logger.Error("failed to push job to DLQ",
				slog.String("job_id", r.ID.String()),
				slog.String("error", dlqErr.Error()),
			)
		}
	}

	// Dead-lettered records live in the DLQ only; drop the original so
	// the origin queue no longer carries it.
	if deleteErr := e.store.DeleteJob(ctx, r.ID); deleteErr != nil {
		e.logger.Error("failed to remove dead-lettered job",
			slog.String("job_id", r.ID.String()),
			slog.String("error", deleteErr.Error()),
		)
	}

	e.hooks.EmitJobFailed(ctx, r, jobErr)
	e.hooks.EmitJobDLQ(ctx, r, jobErr)

	e.logger.Warn("job moved to DLQ",
		slog.String("job_id", r.ID.String()),
		slog.String("queue", r.Queue),
		slog.Int("attempts", r.Attempts),
		slog.String("error", jobErr.Error()),
	)

	return jobErr
}
