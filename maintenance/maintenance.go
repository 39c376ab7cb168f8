// Package maintenance runs the pipeline's recurring housekeeping on a
// cron schedule: pruning aged-out metric series, purging old
// dead-letter entries, and auto-resolving alerts nobody acted on.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/sendloop/courier/dlq"
	"github.com/sendloop/courier/id"
	"github.com/sendloop/courier/monitor"
)

// Default schedules and retention windows.
const (
	metricsSchedule = "@every 1h"
	dlqSchedule     = "@daily"
	alertsSchedule  = "@every 10m"

	// DefaultDLQRetention is how long dead-letter entries are kept
	// before purging.
	DefaultDLQRetention = 7 * 24 * time.Hour

	// DefaultAlertStaleAfter is how long an alert may stay unresolved
	// before it is auto-resolved.
	DefaultAlertStaleAfter = 24 * time.Hour
)

// MetricsPruner drops metric series that aged out of retention.
// *monitor.Monitor satisfies it.
type MetricsPruner interface {
	PruneSeries() int
}

// AlertSource lists and resolves alerts. *monitor.Monitor satisfies it.
type AlertSource interface {
	GetAlerts() []*monitor.Alert
	ResolveAlert(alertID id.AlertID) error
}

// Maintenance owns the cron runner and the housekeeping tasks.
type Maintenance struct {
	cron     *cronlib.Cron
	metrics  MetricsPruner
	alerts   AlertSource
	dlqStore dlq.Store
	logger   *slog.Logger
	now      func() time.Time

	dlqRetention    time.Duration
	alertStaleAfter time.Duration
}

// Option configures a Maintenance.
type Option func(*Maintenance)

// WithLogger sets the maintenance logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Maintenance) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDLQRetention sets how long dead-letter entries are kept.
func WithDLQRetention(d time.Duration) Option {
	return func(m *Maintenance) {
		if d > 0 {
			m.dlqRetention = d
		}
	}
}

// WithAlertStaleAfter sets how long alerts may stay unresolved before
// auto-resolution.
func WithAlertStaleAfter(d time.Duration) Option {
	return func(m *Maintenance) {
		if d > 0 {
			m.alertStaleAfter = d
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Maintenance) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a Maintenance over the given monitor and DLQ store.
func New(metrics MetricsPruner, alerts AlertSource, dlqStore dlq.Store, opts ...Option) *Maintenance {
	m := &Maintenance{
		cron:            cronlib.New(),
		metrics:         metrics,
		alerts:          alerts,
		dlqStore:        dlqStore,
		logger:          slog.Default(),
		now:             time.Now,
		dlqRetention:    DefaultDLQRetention,
		alertStaleAfter: DefaultAlertStaleAfter,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start registers the housekeeping jobs and launches the cron runner.
func (m *Maintenance) Start(_ context.Context) error {
	jobs := []struct {
		schedule string
		run      func()
	}{
		{metricsSchedule, m.runPruneMetrics},
		{dlqSchedule, m.runPurgeDLQ},
		{alertsSchedule, m.runResolveStaleAlerts},
	}
	for _, j := range jobs {
		if _, err := m.cron.AddFunc(j.schedule, j.run); err != nil {
			return err
		}
	}
	m.cron.Start()
	m.logger.Info("maintenance started",
		slog.Duration("dlq_retention", m.dlqRetention),
		slog.Duration("alert_stale_after", m.alertStaleAfter),
	)
	return nil
}

// Stop halts the cron runner, waiting for any running task.
func (m *Maintenance) Stop(ctx context.Context) error {
	stopped := m.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (m *Maintenance) runPruneMetrics() {
	if n := m.PruneMetrics(); n > 0 {
		m.logger.Info("pruned metric series", slog.Int("removed", n))
	}
}

func (m *Maintenance) runPurgeDLQ() {
	n, err := m.PurgeDLQ(context.Background())
	if err != nil {
		m.logger.Error("dlq purge failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		m.logger.Info("purged dead-letter entries", slog.Int64("removed", n))
	}
}

func (m *Maintenance) runResolveStaleAlerts() {
	if n := m.ResolveStaleAlerts(); n > 0 {
		m.logger.Info("auto-resolved stale alerts", slog.Int("resolved", n))
	}
}

// PruneMetrics drops metric series that aged out of retention.
func (m *Maintenance) PruneMetrics() int {
	return m.metrics.PruneSeries()
}

// PurgeDLQ removes dead-letter entries older than the retention window.
func (m *Maintenance) PurgeDLQ(ctx context.Context) (int64, error) {
	cutoff := m.now().Add(-m.dlqRetention)
	return m.dlqStore.PurgeDLQ(ctx, cutoff)
}

// ResolveStaleAlerts resolves alerts that have been open longer than
// the stale threshold and returns how many were resolved.
func (m *Maintenance) ResolveStaleAlerts() int {
	cutoff := m.now().Add(-m.alertStaleAfter)
	var resolved int
	for _, a := range m.alerts.GetAlerts() {
		if a.CreatedAt.Before(cutoff) {
			if err := m.alerts.ResolveAlert(a.ID); err != nil {
				m.logger.Warn("failed to resolve stale alert",
					slog.String("alert_id", a.ID.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			resolved++
		}
	}
	return resolved
}
