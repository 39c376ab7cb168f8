package monitor

import (
	"sort"
	"strings"
	"time"

	"github.com/sendloop/courier/queue"
	"github.com/sendloop/courier/ratelimit"
)

// QueueSnapshot pairs a queue name with its per-state counts.
type QueueSnapshot struct {
	Name string `json:"name"`
	queue.Counts
}

// Snapshot is the JSON export of the monitor's latest sample.
type Snapshot struct {
	Timestamp     time.Time               `json:"timestamp"`
	Queues        []QueueSnapshot         `json:"queues"`
	DeadLettered  int64                   `json:"dead_lettered"`
	Rates         Rates                   `json:"rates"`
	ActiveAlerts  []*Alert                `json:"active_alerts"`
	Health        HealthReport            `json:"health"`
	DomainMetrics []ratelimit.DomainUsage `json:"domain_metrics"`
}

// Snapshot returns the latest sample as a JSON-serializable struct.
// Returns nil if the monitor has not sampled yet.
func (m *Monitor) Snapshot() *Snapshot {
	m.mu.Lock()
	if !m.sampled {
		m.mu.Unlock()
		return nil
	}

	queues := make([]QueueSnapshot, 0, len(m.lastCounts))
	for name, c := range m.lastCounts {
		queues = append(queues, QueueSnapshot{Name: name, Counts: c})
	}
	sort.Slice(queues, func(i, k int) bool { return queues[i].Name < queues[k].Name })

	snap := &Snapshot{
		Timestamp:     m.lastAt,
		Queues:        queues,
		DeadLettered:  m.lastDLQ,
		Rates:         m.lastRates,
		DomainMetrics: append([]ratelimit.DomainUsage(nil), m.lastDomains...),
	}
	m.mu.Unlock()

	// GetAlerts and Health take the lock themselves.
	snap.ActiveAlerts = m.GetAlerts()
	snap.Health = m.Health()
	return snap
}

// healthValue maps a health state to its exported gauge value.
func healthValue(s HealthState) float64 {
	switch s {
	case HealthHealthy:
		return 1
	case HealthDegraded:
		return 0.5
	default:
		return 0
	}
}

// PrometheusLines renders the latest sample in the line format
// name{label="value"} <number> <unixtime_ms>, one metric per line.
// Returns an empty string if the monitor has not sampled yet.
func (m *Monitor) PrometheusLines() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sampled {
		return ""
	}

	at := m.lastAt
	var lines []string

	queueNames := make([]string, 0, len(m.lastCounts))
	for name := range m.lastCounts {
		queueNames = append(queueNames, name)
	}
	sort.Strings(queueNames)

	for _, name := range queueNames {
		c := m.lastCounts[name]
		labels := map[string]string{"queue": name}
		lines = append(lines,
			formatLine("courier_queue_depth", labels, float64(c.Waiting), at),
			formatLine("courier_queue_active", labels, float64(c.Active), at),
			formatLine("courier_queue_failed", labels, float64(c.Failed), at),
		)
	}

	lines = append(lines,
		formatLine("courier_dead_lettered", nil, float64(m.lastDLQ), at),
		formatLine("courier_throughput_per_min", nil, m.lastRates.ThroughputPerMin, at),
		formatLine("courier_error_rate", nil, m.lastRates.ErrorRate, at),
		formatLine("courier_success_rate", nil, m.lastRates.SuccessRate, at),
	)

	for _, d := range m.lastDomains {
		labels := map[string]string{"domain": d.Domain, "account": d.AccountID}
		lines = append(lines,
			formatLine("courier_domain_sent_today", labels, float64(d.Usage.SentToday), at),
			formatLine("courier_domain_utilization", labels, d.Utilization, at),
		)
	}

	components := make([]string, 0, len(m.health))
	for name := range m.health {
		components = append(components, name)
	}
	sort.Strings(components)
	for _, name := range components {
		lines = append(lines, formatLine("courier_component_health",
			map[string]string{"component": name}, healthValue(m.health[name]), at))
	}

	return strings.Join(lines, "\n") + "\n"
}

// PruneSeries drops series whose newest point has aged out of the
// retention window and returns how many were removed. The maintenance
// scheduler calls this periodically; appends prune incrementally on
// their own.
func (m *Monitor) PruneSeries() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.retention)
	var removed int
	for key, s := range m.series {
		if len(s.points) == 0 || s.points[len(s.points)-1].Time.Before(cutoff) {
			delete(m.series, key)
			removed++
		}
	}
	return removed
}
