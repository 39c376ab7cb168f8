// Package engine wires all courier subsystems together: the rate
// limiter, dead-letter service, queue service, processor, monitor,
// and maintenance scheduler.
//
// This package exists to break the import cycle: the root courier
// package defines Entity and the shared errors (imported by job, dlq,
// and the rest) and so cannot import those packages back. The engine
// package sits above all subsystem packages and below the application
// layer.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/sendloop/courier"
	"github.com/sendloop/courier/dlq"
	"github.com/sendloop/courier/hook"
	"github.com/sendloop/courier/id"
	"github.com/sendloop/courier/job"
	"github.com/sendloop/courier/maintenance"
	mw "github.com/sendloop/courier/middleware"
	"github.com/sendloop/courier/monitor"
	"github.com/sendloop/courier/processor"
	"github.com/sendloop/courier/promhook"
	"github.com/sendloop/courier/provider"
	"github.com/sendloop/courier/queue"
	"github.com/sendloop/courier/ratelimit"
)

// Engine owns the assembled delivery pipeline.
type Engine struct {
	cfg      courier.Config
	logger   *slog.Logger
	prov     provider.Provider
	store    queue.Store
	dlqStore dlq.Store
	hooks    *hook.Registry
	mws      []mw.Middleware

	limiter  *ratelimit.Limiter
	dlqSvc   *dlq.Service
	queueSvc *queue.Service
	proc     *processor.Processor
	mon      *monitor.Monitor
	janitor  *maintenance.Maintenance

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	prometheus bool
	started    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg courier.Config) Option {
	return func(eng *Engine) {
		eng.cfg = cfg
	}
}

// WithLogger sets the engine logger, shared by all subsystems.
func WithLogger(logger *slog.Logger) Option {
	return func(eng *Engine) {
		if logger != nil {
			eng.logger = logger
		}
	}
}

// WithStore replaces the default in-memory job store.
func WithStore(store queue.Store) Option {
	return func(eng *Engine) {
		eng.store = store
	}
}

// WithDLQStore replaces the default in-memory dead-letter store.
func WithDLQStore(store dlq.Store) Option {
	return func(eng *Engine) {
		eng.dlqStore = store
	}
}

// WithHook registers a lifecycle hook with the engine.
func WithHook(h hook.Hook) Option {
	return func(eng *Engine) {
		eng.hooks.Register(h)
	}
}

// WithMiddleware appends middleware to the delivery chain, after the
// default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithPrometheus registers the Prometheus lifecycle hook against the
// default registerer.
func WithPrometheus() Option {
	return func(eng *Engine) {
		eng.prometheus = true
	}
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, the
// metrics middleware uses this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build assembles an Engine around the given delivery provider.
func Build(prov provider.Provider, opts ...Option) (*Engine, error) {
	if prov == nil {
		return nil, courier.ErrNoProvider
	}

	logger := slog.Default()
	eng := &Engine{
		cfg:    courier.DefaultConfig(),
		logger: logger,
		prov:   prov,
		hooks:  hook.NewRegistry(logger),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.store == nil {
		eng.store = queue.NewMemoryStore()
	}
	if eng.dlqStore == nil {
		eng.dlqStore = dlq.NewMemoryStore()
	}
	if eng.prometheus {
		ph, err := promhook.New()
		if err != nil {
			return nil, fmt.Errorf("register prometheus hook: %w", err)
		}
		eng.hooks.Register(ph)
	}

	eng.limiter = ratelimit.New(ratelimit.WithLogger(eng.logger))
	eng.proc = processor.New(eng.prov, eng.limiter, processor.WithLogger(eng.logger))

	// The queue service wires itself in as the DLQ replay enqueuer.
	eng.dlqSvc = dlq.NewService(eng.dlqStore, nil)

	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/sendloop/courier"))
	} else {
		tracingMw = mw.Tracing()
	}
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/sendloop/courier"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default chain: recover → tracing → metrics → logging, then any
	// caller-supplied middleware.
	allMws := append([]mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
	}, eng.mws...)

	eng.queueSvc = queue.NewService(eng.store, eng.dlqSvc, eng.hooks, eng.proc.Process,
		queue.WithLogger(eng.logger),
		queue.WithConcurrency(eng.cfg.Concurrency),
		queue.WithMaxRetries(eng.cfg.MaxRetries),
		queue.WithMiddleware(allMws...),
	)

	eng.mon = monitor.New(eng.queueSvc, eng.proc, eng.limiter, eng.dlqStore,
		monitor.WithLogger(eng.logger),
		monitor.WithSampleInterval(eng.cfg.SampleInterval),
		monitor.WithQueueDepthWarning(eng.cfg.QueueDepthWarning),
		monitor.WithErrorRateThreshold(eng.cfg.ErrorRateThreshold),
		monitor.WithRetention(eng.cfg.MetricRetention),
	)

	eng.janitor = maintenance.New(eng.mon, eng.mon, eng.dlqStore,
		maintenance.WithLogger(eng.logger),
	)

	return eng, nil
}

// Start launches the queue workers, the monitor sampler, and the
// maintenance scheduler.
func (eng *Engine) Start(ctx context.Context) error {
	if eng.started {
		return nil
	}
	if err := eng.queueSvc.Start(ctx); err != nil {
		return fmt.Errorf("start queue service: %w", err)
	}
	if err := eng.mon.Start(ctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	if err := eng.janitor.Start(ctx); err != nil {
		return fmt.Errorf("start maintenance: %w", err)
	}
	eng.started = true
	eng.logger.Info("engine started",
		slog.Int("concurrency", eng.cfg.Concurrency),
		slog.Int("max_retries", eng.cfg.MaxRetries),
	)
	return nil
}

// Stop shuts the pipeline down in reverse order, bounded by the
// configured shutdown timeout when the caller's context has no
// deadline.
func (eng *Engine) Stop(ctx context.Context) error {
	if !eng.started {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
		defer cancel()
	}

	if err := eng.janitor.Stop(ctx); err != nil {
		eng.logger.Error("maintenance stop error", slog.String("error", err.Error()))
	}
	if err := eng.mon.Stop(ctx); err != nil {
		eng.logger.Error("monitor stop error", slog.String("error", err.Error()))
	}
	if err := eng.queueSvc.Stop(ctx); err != nil {
		return fmt.Errorf("stop queue service: %w", err)
	}
	eng.started = false
	return nil
}

// Send enqueues an email for delivery and returns its job record.
func (eng *Engine) Send(ctx context.Context, email *job.Email) (*job.Record, error) {
	return eng.queueSvc.Add(ctx, email)
}

// Replay re-enqueues a dead-lettered job by entry ID.
func (eng *Engine) Replay(ctx context.Context, entryID id.DLQID) (*job.Record, error) {
	return eng.queueSvc.Retry(ctx, entryID)
}

// Queues returns the queue service for direct job management.
func (eng *Engine) Queues() *queue.Service { return eng.queueSvc }

// Processor returns the delivery processor.
func (eng *Engine) Processor() *processor.Processor { return eng.proc }

// Limiter returns the warm-up rate limiter.
func (eng *Engine) Limiter() *ratelimit.Limiter { return eng.limiter }

// DLQ returns the dead-letter service for inspection and replay.
func (eng *Engine) DLQ() *dlq.Service { return eng.dlqSvc }

// Monitor returns the pipeline monitor.
func (eng *Engine) Monitor() *monitor.Monitor { return eng.mon }

// Hooks returns the lifecycle hook registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }
