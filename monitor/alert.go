package monitor

import (
	"time"

	"github.com/sendloop/courier/id"
)

// Severity ranks how urgent an alert is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rule identifiers. Alerts deduplicate on the stable (component, rule)
// pair, so rewording a message never creates duplicate alerts.
const (
	RuleQueueDepth = "queue_depth"
	RuleErrorRate  = "error_rate"
	RuleStalled    = "stalled"
)

// Alert is a single alerting event. Alerts are never reopened: a new
// occurrence after resolution creates a new Alert.
type Alert struct {
	ID         id.AlertID        `json:"id"`
	Severity   Severity          `json:"severity"`
	Component  string            `json:"component"`
	Rule       string            `json:"rule"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}

// Resolved reports whether the alert has been resolved.
func (a *Alert) Resolved() bool { return a.ResolvedAt != nil }

// dedupKey identifies the condition an alert reports, independent of
// its message wording.
type dedupKey struct {
	component string
	rule      string
}
