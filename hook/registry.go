package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/sendloop/courier/job"
)

// Named entry types pair a hook implementation with the hook name
// captured at registration time. This avoids type-asserting back to
// Hook inside the emit methods.
type jobAddedEntry struct {
	name string
	hook JobAdded
}

type jobStartedEntry struct {
	name string
	hook JobStarted
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type jobRetryingEntry struct {
	name string
	hook JobRetrying
}

type jobDelayedEntry struct {
	name string
	hook JobDelayed
}

type jobRemovedEntry struct {
	name string
	hook JobRemoved
}

type jobDLQEntry struct {
	name string
	hook JobDLQ
}

type queuePausedEntry struct {
	name string
	hook QueuePaused
}

type queueResumedEntry struct {
	name string
	hook QueueResumed
}

type queueDrainedEntry struct {
	name string
	hook QueueDrained
}

// Registry holds registered hooks and dispatches lifecycle events to
// them. It type-caches hooks at registration time so emit calls
// iterate only over hooks that implement the relevant event.
type Registry struct {
	hooks  []Hook
	logger *slog.Logger

	// Type-cached slices for each lifecycle event.
	jobAdded     []jobAddedEntry
	jobStarted   []jobStartedEntry
	jobCompleted []jobCompletedEntry
	jobFailed    []jobFailedEntry
	jobRetrying  []jobRetryingEntry
	jobDelayed   []jobDelayedEntry
	jobRemoved   []jobRemovedEntry
	jobDLQ       []jobDLQEntry
	queuePaused  []queuePausedEntry
	queueResumed []queueResumedEntry
	queueDrained []queueDrainedEntry
}

// NewRegistry creates a hook registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a hook and type-asserts it into all applicable event
// caches. Hooks are notified in registration order.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
	name := h.Name()

	if v, ok := h.(JobAdded); ok {
		r.jobAdded = append(r.jobAdded, jobAddedEntry{name, v})
	}
	if v, ok := h.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, v})
	}
	if v, ok := h.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, v})
	}
	if v, ok := h.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, v})
	}
	if v, ok := h.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, jobRetryingEntry{name, v})
	}
	if v, ok := h.(JobDelayed); ok {
		r.jobDelayed = append(r.jobDelayed, jobDelayedEntry{name, v})
	}
	if v, ok := h.(JobRemoved); ok {
		r.jobRemoved = append(r.jobRemoved, jobRemovedEntry{name, v})
	}
	if v, ok := h.(JobDLQ); ok {
		r.jobDLQ = append(r.jobDLQ, jobDLQEntry{name, v})
	}
	if v, ok := h.(QueuePaused); ok {
		r.queuePaused = append(r.queuePaused, queuePausedEntry{name, v})
	}
	if v, ok := h.(QueueResumed); ok {
		r.queueResumed = append(r.queueResumed, queueResumedEntry{name, v})
	}
	if v, ok := h.(QueueDrained); ok {
		r.queueDrained = append(r.queueDrained, queueDrainedEntry{name, v})
	}
}

// Hooks returns all registered hooks in registration order.
func (r *Registry) Hooks() []Hook { return r.hooks }

// logHookErr logs a hook failure without propagating it; lifecycle
// notification never affects job processing.
func (r *Registry) logHookErr(event, name string, err error) {
	r.logger.Warn("hook failed",
		slog.String("event", event),
		slog.String("hook", name),
		slog.String("error", err.Error()),
	)
}

// EmitJobAdded notifies all JobAdded hooks.
func (r *Registry) EmitJobAdded(ctx context.Context, rec *job.Record) {
	for _, e := range r.jobAdded {
		if err := e.hook.OnJobAdded(ctx, rec); err != nil {
			r.logHookErr("job_added", e.name, err)
		}
	}
}

// EmitJobStarted notifies all JobStarted hooks.
func (r *Registry) EmitJobStarted(ctx context.Context, rec *job.Record) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, rec); err != nil {
			r.logHookErr("job_started", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all JobCompleted hooks.
func (r *Registry) EmitJobCompleted(ctx context.Context, rec *job.Record, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, rec, elapsed); err != nil {
			r.logHookErr("job_completed", e.name, err)
		}
	}
}

// EmitJobFailed notifies all JobFailed hooks.
func (r *Registry) EmitJobFailed(ctx context.Context, rec *job.Record, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, rec, jobErr); err != nil {
			r.logHookErr("job_failed", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all JobRetrying hooks.
func (r *Registry) EmitJobRetrying(ctx context.Context, rec *job.Record, attempt int, nextRunAt time.Time) {
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, rec, attempt, nextRunAt); err != nil {
			r.logHookErr("job_retrying", e.name, err)
		}
	}
}

// EmitJobDelayed notifies all JobDelayed hooks.
func (r *Registry) EmitJobDelayed(ctx context.Context, rec *job.Record, until time.Time) {
	for _, e := range r.jobDelayed {
		if err := e.hook.OnJobDelayed(ctx, rec, until); err != nil {
			r.logHookErr("job_delayed", e.name, err)
		}
	}
}

// EmitJobRemoved notifies all JobRemoved hooks.
func (r *Registry) EmitJobRemoved(ctx context.Context, rec *job.Record) {
	for _, e := range r.jobRemoved {
		if err := e.hook.OnJobRemoved(ctx, rec); err != nil {
			r.logHookErr("job_removed", e.name, err)
		}
	}
}

// EmitJobDLQ notifies all JobDLQ hooks.
func (r *Registry) EmitJobDLQ(ctx context.Context, rec *job.Record, jobErr error) {
	for _, e := range r.jobDLQ {
		if err := e.hook.OnJobDLQ(ctx, rec, jobErr); err != nil {
			r.logHookErr("job_dlq", e.name, err)
		}
	}
}

// EmitQueuePaused notifies all QueuePaused hooks.
func (r *Registry) EmitQueuePaused(ctx context.Context, queue string) {
	for _, e := range r.queuePaused {
		if err := e.hook.OnQueuePaused(ctx, queue); err != nil {
			r.logHookErr("queue_paused", e.name, err)
		}
	}
}

// EmitQueueResumed notifies all QueueResumed hooks.
func (r *Registry) EmitQueueResumed(ctx context.Context, queue string) {
	for _, e := range r.queueResumed {
		if err := e.hook.OnQueueResumed(ctx, queue); err != nil {
			r.logHookErr("queue_resumed", e.name, err)
		}
	}
}

// EmitQueueDrained notifies all QueueDrained hooks.
func (r *Registry) EmitQueueDrained(ctx context.Context, queue string) {
	for _, e := range r.queueDrained {
		if err := e.hook.OnQueueDrained(ctx, queue); err != nil {
			r.logHookErr("queue_drained", e.name, err)
		}
	}
}
