// Package hook defines the lifecycle hook system for the delivery
// pipeline. Hooks are notified of queue events (job added, completed,
// failed, dead-lettered, queue paused, drained, etc.) and can react to
// them, for logging, metrics, or alerting.
//
// Each lifecycle event is a separate interface so hooks opt in only to
// the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/sendloop/courier/job"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobAdded is called after a job is successfully enqueued.
type JobAdded interface {
	OnJobAdded(ctx context.Context, r *job.Record) error
}

// JobStarted is called when a queue begins processing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, r *job.Record) error
}

// JobCompleted is called after a job is delivered successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, r *job.Record, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, r *job.Record, err error) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, r *job.Record, attempt int, nextRunAt time.Time) error
}

// JobDelayed is called when a job enters the delayed set, either for a
// scheduled send or for retry backoff.
type JobDelayed interface {
	OnJobDelayed(ctx context.Context, r *job.Record, until time.Time) error
}

// JobRemoved is called when a waiting or delayed job is removed.
type JobRemoved interface {
	OnJobRemoved(ctx context.Context, r *job.Record) error
}

// JobDLQ is called when a job is moved to the dead-letter queue.
type JobDLQ interface {
	OnJobDLQ(ctx context.Context, r *job.Record, err error) error
}

// ──────────────────────────────────────────────────
// Queue lifecycle hooks
// ──────────────────────────────────────────────────

// QueuePaused is called when a queue (or all queues) is paused.
type QueuePaused interface {
	OnQueuePaused(ctx context.Context, queue string) error
}

// QueueResumed is called when a paused queue resumes.
type QueueResumed interface {
	OnQueueResumed(ctx context.Context, queue string) error
}

// QueueDrained is called when a queue's waiting list empties with no
// jobs active.
type QueueDrained interface {
	OnQueueDrained(ctx context.Context, queue string) error
}
