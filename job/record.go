package job

import (
	"time"

	"github.com/sendloop/courier"
	"github.com/sendloop/courier/id"
)

// State represents the lifecycle state of a queued job.
type State string

const (
	// StateWaiting means the job is eligible and waiting to be picked up.
	StateWaiting State = "waiting"
	// StateActive means the job is currently being processed.
	StateActive State = "active"
	// StateCompleted means the job was delivered successfully.
	StateCompleted State = "completed"
	// StateFailed means the job failed terminally and will not be retried.
	StateFailed State = "failed"
	// StateDelayed means the job is waiting out a scheduled-send or
	// retry-backoff delay before becoming eligible again.
	StateDelayed State = "delayed"
)

// terminal reports whether a state permits no further transitions.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether the from → to state change is legal.
// Transitions are monotonic: terminal states are immutable, and a job
// that is already active cannot be claimed again.
func CanTransition(from, to State) bool {
	if from.terminal() {
		return false
	}
	switch from {
	case StateWaiting:
		return to == StateActive || to == StateDelayed || to == StateFailed
	case StateActive:
		return to == StateCompleted || to == StateWaiting || to == StateDelayed || to == StateFailed
	case StateDelayed:
		return to == StateWaiting || to == StateFailed
	default:
		return false
	}
}

// Record wraps an Email with queue bookkeeping. Records are owned
// exclusively by the queue service; once a record reaches a terminal
// state it is never mutated again.
type Record struct {
	courier.Entity

	ID           id.JobID   `json:"id"`
	Queue        string     `json:"queue"`
	Email        *Email     `json:"email"`
	State        State      `json:"state"`
	Score        int        `json:"score"`
	Attempts     int        `json:"attempts"`
	MaxRetries   int        `json:"max_retries"`
	FailedReason string     `json:"failed_reason,omitempty"`
	DelayUntil   *time.Time `json:"delay_until,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	seq          uint64
}

// NewRecord builds a waiting Record for the given email, routed to the
// queue mapped from its priority. MaxRetries falls back to the given
// default when the email does not set one.
func NewRecord(email *Email, defaultMaxRetries int) *Record {
	maxRetries := email.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Record{
		Entity:     courier.NewEntity(),
		ID:         id.NewJobID(),
		Queue:      email.Priority.QueueName(),
		Email:      email,
		State:      StateWaiting,
		Score:      email.Priority.Score(),
		MaxRetries: maxRetries,
	}
}

// Seq returns the FIFO sequence number assigned at enqueue time.
// Records with equal scores dequeue in ascending sequence order.
func (r *Record) Seq() uint64 { return r.seq }

// SetSeq assigns the FIFO sequence number. Called by the queue service
// on insert and on re-insert after a delay, so a delayed job re-enters
// at the back of its score bracket.
func (r *Record) SetSeq(seq uint64) { r.seq = seq }
