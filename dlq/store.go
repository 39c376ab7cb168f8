package dlq

import (
	"context"
	"time"

	"github.com/sendloop/courier/id"
)

// ListOpts controls pagination and filtering for DLQ list queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// Queue filters by origin queue name. Empty means all queues.
	Queue string
}

// Store defines the persistence contract for the dead-letter queue.
// The core ships an in-memory implementation; a durable backend can
// implement the same contract without semantic changes.
type Store interface {
	// PushDLQ adds a failed job entry to the dead-letter queue.
	PushDLQ(ctx context.Context, entry *Entry) error

	// ListDLQ returns DLQ entries matching the given options, ordered
	// by failure time.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ retrieves a DLQ entry by ID.
	GetDLQ(ctx context.Context, entryID id.DLQID) (*Entry, error)

	// MarkReplayed stamps a DLQ entry as replayed. The re-enqueue
	// itself is handled at the service layer.
	MarkReplayed(ctx context.Context, entryID id.DLQID) error

	// PurgeDLQ removes entries with FailedAt before the given time.
	// Returns the number of entries removed.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the number of entries that have not been
	// replayed. Replayed entries live on as a new job, so counting
	// them as dead-lettered would double-book the failure.
	CountDLQ(ctx context.Context) (int64, error)
}
