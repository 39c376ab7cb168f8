// Package monitor watches the delivery pipeline: it samples queue
// counts, processor stats, and rate-limiter usage on an interval,
// derives throughput and error rates, raises deduplicated alerts,
// aggregates component health, and exports metrics as time series, a
// Prometheus-style line format, and a JSON snapshot.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sendloop/courier"
	"github.com/sendloop/courier/id"
	"github.com/sendloop/courier/processor"
	"github.com/sendloop/courier/queue"
	"github.com/sendloop/courier/ratelimit"
)

// Health components.
const (
	ComponentQueue     = "queue-service"
	ComponentLimiter   = "rate-limiter"
	ComponentProcessor = "processor"
)

// HealthState classifies one component's condition.
type HealthState string

const (
	HealthUnknown  HealthState = "unknown"
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthCritical HealthState = "critical"
)

// HealthReport is the aggregated health view.
type HealthReport struct {
	Overall    HealthState            `json:"overall"`
	Components map[string]HealthState `json:"components"`
}

// QueueSource supplies per-queue counts.
type QueueSource interface {
	CountsAll(ctx context.Context) (map[string]queue.Counts, error)
}

// ProcessorSource supplies processing counters.
type ProcessorSource interface {
	Stats() processor.Stats
}

// LimiterSource supplies per-domain usage.
type LimiterSource interface {
	Snapshot() []ratelimit.DomainUsage
}

// DLQSource supplies the dead-letter backlog size.
type DLQSource interface {
	CountDLQ(ctx context.Context) (int64, error)
}

// Rates are the derived throughput numbers from the latest sample.
type Rates struct {
	// ThroughputPerMin is completed jobs per minute since the previous
	// sample.
	ThroughputPerMin float64 `json:"throughput_per_min"`
	// ErrorRate is the failed-jobs delta relative to throughput.
	ErrorRate float64 `json:"error_rate"`
	// SuccessRate is the processor's lifetime success ratio.
	SuccessRate float64 `json:"success_rate"`
}

// Monitor samples the pipeline and serves alerts, health, and metrics.
// It is safe for concurrent use.
type Monitor struct {
	queues  QueueSource
	proc    ProcessorSource
	limiter LimiterSource
	dlq     DLQSource
	logger  *slog.Logger
	now     func() time.Time

	interval           time.Duration
	queueDepthWarning  int64
	errorRateThreshold float64
	retention          time.Duration
	maxSamples         int

	mu     sync.Mutex
	series map[string]*series
	alerts []*Alert
	active map[dedupKey]*Alert
	subs   []func(Alert)
	health map[string]HealthState

	sampled     bool
	lastAt      time.Time
	lastCounts  map[string]queue.Counts
	lastDomains []ratelimit.DomainUsage
	lastRates   Rates
	lastDLQ     int64

	prevCompleted int64
	prevFailed    int64
	prevWaiting   map[string]int64
	waitEstimate  map[string]float64

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSampleInterval sets how often the monitor samples the pipeline.
func WithSampleInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithQueueDepthWarning sets the waiting-count threshold for the
// queue-depth alert.
func WithQueueDepthWarning(n int64) Option {
	return func(m *Monitor) { m.queueDepthWarning = n }
}

// WithErrorRateThreshold sets the error-rate alert threshold.
func WithErrorRateThreshold(v float64) Option {
	return func(m *Monitor) { m.errorRateThreshold = v }
}

// WithRetention bounds how long metric series are kept.
func WithRetention(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a Monitor over the given pipeline components.
func New(queues QueueSource, proc ProcessorSource, limiter LimiterSource, dlqSrc DLQSource, opts ...Option) *Monitor {
	cfg := courier.DefaultConfig()
	m := &Monitor{
		queues:             queues,
		proc:               proc,
		limiter:            limiter,
		dlq:                dlqSrc,
		logger:             slog.Default(),
		now:                time.Now,
		interval:           cfg.SampleInterval,
		queueDepthWarning:  cfg.QueueDepthWarning,
		errorRateThreshold: cfg.ErrorRateThreshold,
		retention:          cfg.MetricRetention,
		series:             make(map[string]*series),
		active:             make(map[dedupKey]*Alert),
		health:             make(map[string]HealthState),
		prevWaiting:        make(map[string]int64),
		waitEstimate:       make(map[string]float64),
		stopCh:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	// One sample per interval over the full retention window.
	m.maxSamples = int(m.retention / m.interval)
	if m.maxSamples < 1 {
		m.maxSamples = 1
	}
	for _, c := range []string{ComponentQueue, ComponentLimiter, ComponentProcessor} {
		m.health[c] = HealthUnknown
	}
	return m
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start launches the sampling loop. It returns immediately.
func (m *Monitor) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	m.running = true

	m.logger.Info("monitor starting", slog.Duration("interval", m.interval))

	m.wg.Add(1)
	go m.sampleLoop()
	return nil
}

// Stop halts the sampling loop.
func (m *Monitor) Stop(_ context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
	return nil
}

func (m *Monitor) sampleLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if err := m.Sample(context.Background()); err != nil {
				m.logger.Error("sample failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ──────────────────────────────────────────────────
// Sampling
// ──────────────────────────────────────────────────

// Sample performs one sampling pass: collect counts and stats, derive
// rates, record series, evaluate alert rules, and refresh health.
// The loop calls it on the configured interval; tests and maintenance
// may force a pass directly.
func (m *Monitor) Sample(ctx context.Context) error {
	counts, err := m.queues.CountsAll(ctx)
	if err != nil {
		return fmt.Errorf("monitor: queue counts: %w", err)
	}
	dlqCount, err := m.dlq.CountDLQ(ctx)
	if err != nil {
		return fmt.Errorf("monitor: dlq count: %w", err)
	}
	stats := m.proc.Stats()
	domains := m.limiter.Snapshot()

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var completed, failed, waiting int64
	for _, c := range counts {
		completed += c.Completed
		failed += c.Failed
		waiting += c.Waiting
	}
	// Dead-lettered jobs leave their origin queue; they still count as
	// failures.
	failed += dlqCount

	rates := Rates{SuccessRate: stats.SuccessRate}
	if m.sampled {
		elapsedMin := now.Sub(m.lastAt).Minutes()
		if elapsedMin > 0 {
			completedDelta := float64(completed - m.prevCompleted)
			failedDelta := float64(failed - m.prevFailed)
			rates.ThroughputPerMin = completedDelta / elapsedMin
			if rates.ThroughputPerMin > 0 {
				rates.ErrorRate = failedDelta / rates.ThroughputPerMin
			}
		}
	}

	m.recordSeries(now, counts, rates, domains)
	m.estimateWaits(now, counts)
	m.evaluateRules(now, counts, rates, waiting)
	m.refreshHealth(domains)

	m.sampled = true
	m.lastAt = now
	m.lastCounts = counts
	m.lastDomains = domains
	m.lastRates = rates
	m.lastDLQ = dlqCount
	m.prevCompleted = completed
	m.prevFailed = failed
	for name, c := range counts {
		m.prevWaiting[name] = c.Waiting
	}
	return nil
}

// recordSeries appends this sample's values to the retained series.
func (m *Monitor) recordSeries(now time.Time, counts map[string]queue.Counts, rates Rates, domains []ratelimit.DomainUsage) {
	for name, c := range counts {
		labels := map[string]string{"queue": name}
		m.record("courier_queue_depth", labels, float64(c.Waiting), now)
		m.record("courier_queue_active", labels, float64(c.Active), now)
		m.record("courier_queue_failed", labels, float64(c.Failed), now)
	}
	m.record("courier_throughput_per_min", nil, rates.ThroughputPerMin, now)
	m.record("courier_error_rate", nil, rates.ErrorRate, now)
	m.record("courier_success_rate", nil, rates.SuccessRate, now)

	for _, d := range domains {
		labels := map[string]string{"domain": d.Domain, "account": d.AccountID}
		m.record("courier_domain_sent_today", labels, float64(d.Usage.SentToday), now)
		m.record("courier_domain_utilization", labels, d.Utilization, now)
	}
}

func (m *Monitor) record(name string, labels map[string]string, value float64, now time.Time) {
	key := seriesKey(name, labels)
	s, ok := m.series[key]
	if !ok {
		s = &series{name: name, labels: labels}
		m.series[key] = s
	}
	s.append(Point{Time: now, Value: value}, m.retention, m.maxSamples)
}

// estimateWaits derives a rough per-queue wait time from depth
// decreases between samples: if the queue drained n jobs over the
// interval, the current backlog waits backlog/rate.
func (m *Monitor) estimateWaits(now time.Time, counts map[string]queue.Counts) {
	if !m.sampled {
		return
	}
	elapsed := now.Sub(m.lastAt).Seconds()
	if elapsed <= 0 {
		return
	}
	for name, c := range counts {
		drained := m.prevWaiting[name] - c.Waiting
		if drained <= 0 {
			continue
		}
		rate := float64(drained) / elapsed
		wait := float64(c.Waiting) / rate
		m.waitEstimate[name] = wait
		m.record("courier_queue_wait_seconds", map[string]string{"queue": name}, wait, now)
	}
}

// evaluateRules runs the alert rules against this sample.
func (m *Monitor) evaluateRules(now time.Time, counts map[string]queue.Counts, rates Rates, totalWaiting int64) {
	for name, c := range counts {
		if c.Waiting > m.queueDepthWarning {
			m.raise(now, SeverityWarning, "queue", RuleQueueDepth,
				fmt.Sprintf("queue %s depth %d exceeds warning threshold %d", name, c.Waiting, m.queueDepthWarning),
				map[string]string{"queue": name},
			)
		}
	}

	if m.sampled {
		if rates.ErrorRate > m.errorRateThreshold {
			m.raise(now, SeverityError, "processor", RuleErrorRate,
				fmt.Sprintf("error rate %.2f exceeds threshold %.2f", rates.ErrorRate, m.errorRateThreshold),
				nil,
			)
		}
		if rates.ThroughputPerMin == 0 && totalWaiting > 0 {
			m.raise(now, SeverityCritical, "processor", RuleStalled,
				fmt.Sprintf("no jobs completing while %d wait", totalWaiting),
				nil,
			)
		}
	}
}

// raise creates an alert unless an unresolved alert already covers the
// same (component, rule) condition. Subscribers are notified
// synchronously at creation.
func (m *Monitor) raise(now time.Time, severity Severity, component, rule, message string, metadata map[string]string) {
	key := dedupKey{component: component, rule: rule}
	if existing, ok := m.active[key]; ok && !existing.Resolved() {
		return
	}

	alert := &Alert{
		ID:        id.NewAlertID(),
		Severity:  severity,
		Component: component,
		Rule:      rule,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: now,
	}
	m.alerts = append(m.alerts, alert)
	m.active[key] = alert

	m.logger.Warn("alert raised",
		slog.String("alert_id", alert.ID.String()),
		slog.String("severity", string(severity)),
		slog.String("component", component),
		slog.String("rule", rule),
		slog.String("message", message),
	)

	for _, fn := range m.subs {
		fn(*alert)
	}
}

// refreshHealth recomputes component health from active alerts and
// limiter state.
func (m *Monitor) refreshHealth(domains []ratelimit.DomainUsage) {
	queueHealth := HealthHealthy
	if a, ok := m.active[dedupKey{"queue", RuleQueueDepth}]; ok && !a.Resolved() {
		queueHealth = HealthDegraded
	}
	m.health[ComponentQueue] = queueHealth

	procHealth := HealthHealthy
	if a, ok := m.active[dedupKey{"processor", RuleErrorRate}]; ok && !a.Resolved() {
		procHealth = HealthDegraded
	}
	if a, ok := m.active[dedupKey{"processor", RuleStalled}]; ok && !a.Resolved() {
		procHealth = HealthCritical
	}
	m.health[ComponentProcessor] = procHealth

	limiterHealth := HealthHealthy
	for _, d := range domains {
		if d.ConsecutiveFailures >= ratelimit.BreakerThreshold {
			limiterHealth = HealthDegraded
			break
		}
	}
	m.health[ComponentLimiter] = limiterHealth
}

// ──────────────────────────────────────────────────
// Alerts
// ──────────────────────────────────────────────────

// GetAlerts returns the unresolved alerts, oldest first.
func (m *Monitor) GetAlerts() []*Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if a.Resolved() {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}

// ResolveAlert marks an alert resolved, removing it from GetAlerts. A
// later occurrence of the same condition creates a new alert.
func (m *Monitor) ResolveAlert(alertID id.AlertID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.alerts {
		if a.ID == alertID {
			if a.Resolved() {
				return nil
			}
			now := m.now()
			a.ResolvedAt = &now
			delete(m.active, dedupKey{a.Component, a.Rule})
			return nil
		}
	}
	return courier.ErrAlertNotFound
}

// OnAlert registers a subscriber invoked synchronously when an alert
// is created. The subscriber receives a copy and must not block.
func (m *Monitor) OnAlert(fn func(Alert)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// ──────────────────────────────────────────────────
// Health and series queries
// ──────────────────────────────────────────────────

// Health returns the aggregated health report. Overall is critical if
// any component is critical, degraded if any is degraded, healthy only
// when every component is healthy, and unknown otherwise.
func (m *Monitor) Health() HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	components := make(map[string]HealthState, len(m.health))
	var anyCritical, anyDegraded, anyUnknown bool
	for name, state := range m.health {
		components[name] = state
		switch state {
		case HealthCritical:
			anyCritical = true
		case HealthDegraded:
			anyDegraded = true
		case HealthUnknown:
			anyUnknown = true
		}
	}

	overall := HealthHealthy
	switch {
	case anyCritical:
		overall = HealthCritical
	case anyDegraded:
		overall = HealthDegraded
	case anyUnknown:
		overall = HealthUnknown
	}
	return HealthReport{Overall: overall, Components: components}
}

// Series returns the points recorded for a metric within the window.
func (m *Monitor) Series(name string, labels map[string]string, window time.Duration) []Point {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.series[seriesKey(name, labels)]
	if !ok {
		return nil
	}
	return s.window(m.now(), window)
}
