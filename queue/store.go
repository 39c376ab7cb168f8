package queue

import (
	"context"

	"github.com/sendloop/courier/id"
	"github.com/sendloop/courier/job"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of records to return. Zero means no limit.
	Limit int
	// Offset is the number of records to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
}

// CountOpts filters job counting.
type CountOpts struct {
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// State filters by job state. Empty means all states.
	State job.State
}

// Counts is a per-state breakdown of the records in a queue.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// Total returns the sum across all states.
func (c Counts) Total() int64 {
	return c.Waiting + c.Active + c.Completed + c.Failed + c.Delayed
}

// Backlog returns the count of records still owed work.
func (c Counts) Backlog() int64 {
	return c.Waiting + c.Active + c.Delayed
}

// Store defines the persistence contract for queued email jobs. The
// core ships an in-memory implementation; a durable backend can
// implement the same contract without semantic changes.
type Store interface {
	// EnqueueJob persists a new record and assigns its FIFO sequence
	// number. Returns ErrJobAlreadyExists on ID collision.
	EnqueueJob(ctx context.Context, r *job.Record) error

	// DequeueJobs atomically claims up to limit waiting records from
	// the given queues, sets them active, and returns them. Records are
	// claimed in descending score order, FIFO within a score.
	DequeueJobs(ctx context.Context, queues []string, limit int) ([]*job.Record, error)

	// GetJob retrieves a record by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error)

	// UpdateJob persists changes to an existing record. State changes
	// must be legal per job.CanTransition; ErrInvalidState otherwise.
	UpdateJob(ctx context.Context, r *job.Record) error

	// DeleteJob removes a record by ID.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// PromoteJob moves a delayed record back to waiting with a fresh
	// sequence number, so it re-enters at the back of its score
	// bracket. Returns ErrInvalidState if the record is not delayed.
	PromoteJob(ctx context.Context, jobID id.JobID) (*job.Record, error)

	// ListJobsByState returns records matching the given state.
	ListJobsByState(ctx context.Context, state job.State, opts ListOpts) ([]*job.Record, error)

	// CountJobs returns the number of records matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// PurgeQueue removes every record in the given queue regardless of
	// state. Returns the number of records removed.
	PurgeQueue(ctx context.Context, queue string) (int64, error)
}
