package job

import (
	"encoding/json"
	"strings"
	"time"
)

// MaxSize is the maximum serialized size of an Email, 10 MiB.
const MaxSize = 10 << 20

// Priority classifies how urgently an email should be delivered.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Score maps a priority to its numeric dequeue score. Higher scores
// dequeue first.
func (p Priority) Score() int {
	switch p {
	case PriorityCritical:
		return 100
	case PriorityHigh:
		return 75
	case PriorityLow:
		return 25
	default:
		return 50
	}
}

// QueueName maps a priority to the named queue it is routed to:
// critical and high share the priority queue, low goes to bulk, and
// everything else to normal.
func (p Priority) QueueName() string {
	switch p {
	case PriorityCritical, PriorityHigh:
		return QueuePriority
	case PriorityLow:
		return QueueBulk
	default:
		return QueueNormal
	}
}

// Named queues. Every non-dead-letter queue overflows into the
// dead-letter queue when a job exhausts its retry budget.
const (
	QueuePriority   = "priority"
	QueueNormal     = "normal"
	QueueBulk       = "bulk"
	QueueDeadLetter = "dead-letter"
)

// Email is the immutable input describing a single message to deliver.
// At least one of HTML and Text must be set; the serialized size must
// not exceed MaxSize.
type Email struct {
	Recipient      string            `json:"recipient"`
	Sender         string            `json:"sender"`
	Subject        string            `json:"subject"`
	HTML           string            `json:"html,omitempty"`
	Text           string            `json:"text,omitempty"`
	AccountID      string            `json:"account_id"`
	AccountAgeDays int               `json:"account_age_days"`
	CampaignID     string            `json:"campaign_id,omitempty"`
	SequenceID     string            `json:"sequence_id,omitempty"`
	Priority       Priority          `json:"priority,omitempty"`
	MaxRetries     int               `json:"max_retries,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	ScheduledAt    *time.Time        `json:"scheduled_at,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// SenderDomain returns the domain part of the sender address, lowercased.
// Returns an empty string if the address has no "@".
func (e *Email) SenderDomain() string {
	at := strings.LastIndex(e.Sender, "@")
	if at < 0 || at == len(e.Sender)-1 {
		return ""
	}
	return strings.ToLower(e.Sender[at+1:])
}

// Size returns the serialized size of the email in bytes.
func (e *Email) Size() int {
	data, err := json.Marshal(e)
	if err != nil {
		return 0
	}
	return len(data)
}
