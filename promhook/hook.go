// Package promhook exposes delivery lifecycle counts as Prometheus
// metrics. Register the hook with the queue service to automatically
// track enqueue rates, completions, failures, retries, dead-letter
// entries, and queue pause state.
package promhook

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sendloop/courier/hook"
	"github.com/sendloop/courier/job"
)

// Compile-time interface checks.
var (
	_ hook.Hook         = (*Hook)(nil)
	_ hook.JobAdded     = (*Hook)(nil)
	_ hook.JobCompleted = (*Hook)(nil)
	_ hook.JobFailed    = (*Hook)(nil)
	_ hook.JobRetrying  = (*Hook)(nil)
	_ hook.JobDLQ       = (*Hook)(nil)
	_ hook.QueuePaused  = (*Hook)(nil)
	_ hook.QueueResumed = (*Hook)(nil)
)

// Hook records lifecycle metrics into a Prometheus registry.
type Hook struct {
	jobsAdded     *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsFailed    *prometheus.CounterVec
	jobsRetried   *prometheus.CounterVec
	jobsDLQ       *prometheus.CounterVec
	deliveryTime  *prometheus.HistogramVec
	queuePaused   *prometheus.GaugeVec
}

// New creates a Hook registered against the default Prometheus
// registerer.
func New() (*Hook, error) {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a Hook registered against the given
// registerer. Use a fresh prometheus.NewRegistry in tests.
func NewWithRegisterer(reg prometheus.Registerer) (*Hook, error) {
	h := &Hook{
		jobsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_jobs_added_total",
			Help: "Total number of jobs enqueued",
		}, []string{"queue"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_jobs_completed_total",
			Help: "Total number of jobs delivered successfully",
		}, []string{"queue"}),
		jobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_jobs_failed_total",
			Help: "Total number of jobs that failed terminally",
		}, []string{"queue"}),
		jobsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_jobs_retried_total",
			Help: "Total number of retry attempts scheduled",
		}, []string{"queue"}),
		jobsDLQ: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_jobs_dead_lettered_total",
			Help: "Total number of jobs moved to the dead-letter queue",
		}, []string{"queue"}),
		deliveryTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courier_delivery_duration_seconds",
			Help:    "Time from dequeue to successful delivery",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),
		queuePaused: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courier_queue_paused",
			Help: "Whether a queue is paused (1) or accepting work (0)",
		}, []string{"queue"}),
	}

	for _, c := range []prometheus.Collector{
		h.jobsAdded,
		h.jobsCompleted,
		h.jobsFailed,
		h.jobsRetried,
		h.jobsDLQ,
		h.deliveryTime,
		h.queuePaused,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Name implements hook.Hook.
func (h *Hook) Name() string { return "prometheus-metrics" }

// OnJobAdded implements hook.JobAdded.
func (h *Hook) OnJobAdded(_ context.Context, r *job.Record) error {
	h.jobsAdded.WithLabelValues(r.Queue).Inc()
	return nil
}

// OnJobCompleted implements hook.JobCompleted.
func (h *Hook) OnJobCompleted(_ context.Context, r *job.Record, elapsed time.Duration) error {
	h.jobsCompleted.WithLabelValues(r.Queue).Inc()
	h.deliveryTime.WithLabelValues(r.Queue).Observe(elapsed.Seconds())
	return nil
}

// OnJobFailed implements hook.JobFailed.
func (h *Hook) OnJobFailed(_ context.Context, r *job.Record, _ error) error {
	h.jobsFailed.WithLabelValues(r.Queue).Inc()
	return nil
}

// OnJobRetrying implements hook.JobRetrying.
func (h *Hook) OnJobRetrying(_ context.Context, r *job.Record, _ int, _ time.Time) error {
	h.jobsRetried.WithLabelValues(r.Queue).Inc()
	return nil
}

// OnJobDLQ implements hook.JobDLQ.
func (h *Hook) OnJobDLQ(_ context.Context, r *job.Record, _ error) error {
	h.jobsDLQ.WithLabelValues(r.Queue).Inc()
	return nil
}

// OnQueuePaused implements hook.QueuePaused.
func (h *Hook) OnQueuePaused(_ context.Context, queue string) error {
	h.queuePaused.WithLabelValues(queue).Set(1)
	return nil
}

// OnQueueResumed implements hook.QueueResumed.
func (h *Hook) OnQueueResumed(_ context.Context, queue string) error {
	h.queuePaused.WithLabelValues(queue).Set(0)
	return nil
}
