package dlq

import (
	"time"

	"github.com/sendloop/courier/id"
	"github.com/sendloop/courier/job"
)

// Entry represents an email job that exhausted its retry budget and was
// moved to the dead-letter queue for inspection or replay. The full
// email payload and failure reason are preserved.
type Entry struct {
	ID         id.DLQID   `json:"id"`
	JobID      id.JobID   `json:"job_id"`
	Queue      string     `json:"queue"`
	Email      *job.Email `json:"email"`
	Error      string     `json:"error"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"max_retries"`
	FailedAt   time.Time  `json:"failed_at"`
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
