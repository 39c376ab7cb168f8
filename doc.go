// Package courier provides an email delivery pipeline: priority job
// queues with retry and dead-lettering, a per-domain warm-up rate
// limiter, a processing pipeline over a pluggable mail provider, and a
// monitor that samples throughput and raises alerts.
//
// Courier is designed as a library, not a service. Construct an
// engine.Pipeline with a Provider, submit jobs, and observe delivery
// through lifecycle hooks, the monitor, or the optional admin API.
//
// # Quick Start
//
//	p, err := engine.Build(
//	    engine.WithProvider(provider.NewSimulated()),
//	    engine.WithConcurrency(10),
//	)
//
// # Architecture
//
// Each subsystem lives in its own package: queue (priority scheduling,
// backoff, dead-letter routing), ratelimit (age-tiered sliding windows),
// processor (validate → rate check → send), monitor (sampling, alert
// rules, health aggregation). The root package defines the shared error
// taxonomy and configuration.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package courier
