// Package dlq provides the dead-letter queue for email jobs that have
// exhausted their retry budget. It supports inspection, replay, and
// purging. A dead-lettered job re-enters the active queues only through
// an explicit Replay call.
package dlq

import (
	"context"
	"time"

	"github.com/sendloop/courier/id"
	"github.com/sendloop/courier/job"
)

// Enqueuer re-admits a replayed record into the active queues. The
// queue service implements it; the indirection keeps dlq free of a
// dependency on the queue package.
type Enqueuer interface {
	EnqueueRecord(ctx context.Context, r *job.Record) error
}

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store    Store
	enqueuer Enqueuer
}

// NewService creates a DLQ service. The enqueuer may be set later via
// SetEnqueuer to break construction-order cycles.
func NewService(store Store, enqueuer Enqueuer) *Service {
	return &Service{store: store, enqueuer: enqueuer}
}

// SetEnqueuer wires the replay target after construction.
func (s *Service) SetEnqueuer(e Enqueuer) { s.enqueuer = e }

// Push builds a DLQ Entry from a terminally failed record and persists
// it. The email payload and failure reason are captured verbatim.
func (s *Service) Push(ctx context.Context, r *job.Record, jobErr error) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:         id.NewDLQID(),
		JobID:      r.ID,
		Queue:      r.Queue,
		Email:      r.Email,
		Error:      jobErr.Error(),
		Attempts:   r.Attempts,
		MaxRetries: r.MaxRetries,
		FailedAt:   now,
		CreatedAt:  now,
	}
	return s.store.PushDLQ(ctx, entry)
}

// Replay re-enqueues a DLQ entry as a fresh waiting record (new job
// ID, zero attempts, routed to the queue mapped from the email's
// priority) and marks the entry as replayed.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Record, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	r := job.NewRecord(entry.Email, entry.MaxRetries)
	if err := s.enqueuer.EnqueueRecord(ctx, r); err != nil {
		return nil, err
	}

	if err := s.store.MarkReplayed(ctx, entryID); err != nil {
		// The record is already enqueued; surface the bookkeeping
		// failure without undoing the replay.
		return r, err
	}

	return r, nil
}

// Store returns the underlying DLQ store for direct access to List,
// Get, Purge, and Count operations.
func (s *Service) Store() Store { return s.store }
