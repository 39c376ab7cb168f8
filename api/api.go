// Package api exposes the delivery pipeline over HTTP: job submission
// and inspection, queue control, dead-letter replay, alerts, health,
// and metrics export.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sendloop/courier/engine"
)

// API wires the HTTP handlers over an assembled engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an API from an engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled router.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/jobs", a.submitJob)
		r.Get("/jobs", a.listJobs)
		r.Get("/jobs/{jobID}", a.getJob)
		r.Delete("/jobs/{jobID}", a.removeJob)

		r.Get("/queues", a.queueCounts)
		r.Get("/queues/{queue}", a.queueDetail)
		r.Post("/queues/{queue}/pause", a.pauseQueue)
		r.Post("/queues/{queue}/resume", a.resumeQueue)
		r.Delete("/queues/{queue}", a.obliterateQueue)

		r.Get("/dlq", a.listDLQ)
		r.Get("/dlq/count", a.dlqCount)
		r.Get("/dlq/{entryID}", a.getDLQ)
		r.Post("/dlq/{entryID}/replay", a.replayDLQ)

		r.Get("/alerts", a.listAlerts)
		r.Post("/alerts/{alertID}/resolve", a.resolveAlert)

		r.Get("/limits", a.listLimits)
		r.Get("/health", a.health)
		r.Get("/stats", a.stats)
	})

	r.Get("/metrics", a.metricsLines)
	r.Handle("/metrics/prom", promhttp.Handler())

	return r
}
