// Package backoff provides pluggable retry delay strategies for job
// delivery. All strategies are safe for concurrent use (they are
// stateless apart from the shared math/rand source).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Schedule
// ──────────────────────────────────────────────────

// Schedule returns delays from a fixed list indexed by attempt number.
// Attempts past the end of the list reuse the last entry.
type Schedule struct {
	Delays []time.Duration
}

// NewSchedule creates a fixed-schedule backoff strategy.
func NewSchedule(delays ...time.Duration) *Schedule {
	return &Schedule{Delays: delays}
}

// Delay returns Delays[min(attempt-1, len-1)]. Attempts below 1 clamp
// to the first entry.
func (s *Schedule) Delay(attempt int) time.Duration {
	if len(s.Delays) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.Delays) {
		idx = len(s.Delays) - 1
	}
	return s.Delays[idx]
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Jitter
// ──────────────────────────────────────────────────

// Jitter perturbs another strategy's delay by a random ± fraction to
// avoid synchronized retry storms. A Fraction of 0.2 yields delays in
// [0.8d, 1.2d).
type Jitter struct {
	Base     Strategy
	Fraction float64
}

// NewJitter wraps base with ±fraction jitter.
func NewJitter(base Strategy, fraction float64) *Jitter {
	return &Jitter{Base: base, Fraction: fraction}
}

// Delay returns the base delay scaled by a random factor in
// [1-Fraction, 1+Fraction).
func (j *Jitter) Delay(attempt int) time.Duration {
	d := float64(j.Base.Delay(attempt))
	factor := 1 - j.Fraction + rand.Float64()*2*j.Fraction //nolint:gosec // jitter intentionally uses non-crypto rand
	return time.Duration(d * factor)
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultSchedule is the fixed retry schedule for delivery failures:
// 5s, then 15s, then 45s.
func DefaultSchedule() *Schedule {
	return NewSchedule(5*time.Second, 15*time.Second, 45*time.Second)
}

// DefaultStrategy returns the default backoff used by the queue
// service: the fixed 5s/15s/45s schedule with ±20% jitter.
func DefaultStrategy() Strategy {
	return NewJitter(DefaultSchedule(), 0.2)
}
