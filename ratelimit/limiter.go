// Package ratelimit implements the per-domain, per-account warm-up rate
// limiter. Each (domain, account) pair tracks three sliding send
// counters (daily, hourly, per-minute) checked against an age-based
// tier ladder, plus a reputation circuit breaker that trips after ten
// consecutive delivery failures.
//
// Windows roll lazily: a counter resets the first time it is touched
// after its duration has elapsed. There are no background timers.
package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BreakerThreshold is the number of consecutive delivery failures after
// which sends for a (domain, account) pair are blocked until a success
// is recorded.
const BreakerThreshold = 10

// breakerRetryAfter is the retry hint returned while the reputation
// breaker is open. The breaker itself only resets on RecordSuccess.
const breakerRetryAfter = 30 * time.Minute

// Usage is a point-in-time snapshot of one pair's send counters.
type Usage struct {
	SentToday      int `json:"sent_today"`
	SentThisHour   int `json:"sent_this_hour"`
	SentThisMinute int `json:"sent_this_minute"`
}

// Decision is the outcome of a CheckLimit call. When Allowed is false,
// Reason describes the violated ceiling and RetryAfter points at the
// boundary of the violated window.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Reason     string        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Usage      Usage         `json:"usage"`
	Limits     Tier          `json:"limits"`
}

// tracking is the mutable per-(domain, account) state. All counter
// reads and writes happen under the limiter mutex; concurrent sends
// for the same pair serialize there.
type tracking struct {
	sentToday      int
	sentThisHour   int
	sentThisMinute int

	dayStart    time.Time
	hourStart   time.Time
	minuteStart time.Time

	failureCount        int
	consecutiveFailures int

	accountAgeDays int
	firstSentAt    time.Time
	lastSentAt     time.Time
}

// DomainUsage is the exported view of one tracked pair, consumed by the
// monitor for per-domain utilization metrics.
type DomainUsage struct {
	Domain              string    `json:"domain"`
	AccountID           string    `json:"account_id"`
	Usage               Usage     `json:"usage"`
	Tier                Tier      `json:"tier"`
	Utilization         float64   `json:"utilization"`
	FailureCount        int       `json:"failure_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSentAt          time.Time `json:"last_sent_at,omitzero"`
}

// Limiter tracks send counters per (domain, account) pair. It is safe
// for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	tracking map[string]*tracking
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the limiter's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithClock overrides the limiter's time source. Used in tests to
// drive window rollovers deterministically.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		tracking: make(map[string]*tracking),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func key(domain, accountID string) string {
	return domain + "|" + accountID
}

// get returns the tracking record for the pair, creating it with fresh
// windows if needed. Caller must hold l.mu.
func (l *Limiter) get(domain, accountID string, now time.Time) *tracking {
	k := key(domain, accountID)
	tr, ok := l.tracking[k]
	if !ok {
		tr = &tracking{
			dayStart:    midnight(now),
			hourStart:   now,
			minuteStart: now,
		}
		l.tracking[k] = tr
	}
	return tr
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// roll lazily resets any window whose duration has elapsed. Each window
// resets to zero exactly once its boundary is crossed; this is the only
// reset mechanism; the breaker counter is deliberately untouched here.
func (tr *tracking) roll(now time.Time) {
	if !now.Before(tr.dayStart.Add(24 * time.Hour)) {
		tr.sentToday = 0
		tr.dayStart = midnight(now)
	}
	if !now.Before(tr.hourStart.Add(time.Hour)) {
		tr.sentThisHour = 0
		tr.hourStart = now
	}
	if !now.Before(tr.minuteStart.Add(time.Minute)) {
		tr.sentThisMinute = 0
		tr.minuteStart = now
	}
}

func (tr *tracking) usage() Usage {
	return Usage{
		SentToday:      tr.sentToday,
		SentThisHour:   tr.sentThisHour,
		SentThisMinute: tr.sentThisMinute,
	}
}

// CheckLimit rolls the pair's windows forward, then checks the daily,
// hourly, and per-minute ceilings in that order, returning the first
// violation. If all three pass, the reputation breaker is checked last.
// CheckLimit does not consume quota; call RecordSuccess after the send.
func (l *Limiter) CheckLimit(domain, accountID string, accountAgeDays int) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tier := TierFor(accountAgeDays)
	tr := l.get(domain, accountID, now)
	tr.accountAgeDays = accountAgeDays
	tr.roll(now)

	deny := func(reason string, retryAfter time.Duration) Decision {
		l.logger.Debug("send rejected",
			slog.String("domain", domain),
			slog.String("account_id", accountID),
			slog.String("reason", reason),
			slog.Duration("retry_after", retryAfter),
		)
		return Decision{
			Reason:     reason,
			RetryAfter: retryAfter,
			Usage:      tr.usage(),
			Limits:     tier,
		}
	}

	if tr.sentToday >= tier.MaxPerDay {
		reason := fmt.Sprintf("Daily limit exceeded: %d/%d", tr.sentToday, tier.MaxPerDay)
		return deny(reason, tr.dayStart.Add(24*time.Hour).Sub(now))
	}
	if tr.sentThisHour >= tier.MaxPerHour {
		reason := fmt.Sprintf("Hourly limit exceeded: %d/%d", tr.sentThisHour, tier.MaxPerHour)
		return deny(reason, tr.hourStart.Add(time.Hour).Sub(now))
	}
	if tr.sentThisMinute >= tier.MaxPerMinute {
		reason := fmt.Sprintf("Per-minute limit exceeded: %d/%d", tr.sentThisMinute, tier.MaxPerMinute)
		return deny(reason, tr.minuteStart.Add(time.Minute).Sub(now))
	}
	if tr.consecutiveFailures >= BreakerThreshold {
		reason := fmt.Sprintf("Reputation circuit breaker open: %d consecutive failures", tr.consecutiveFailures)
		return deny(reason, breakerRetryAfter)
	}

	return Decision{Allowed: true, Usage: tr.usage(), Limits: tier}
}

// RecordSuccess counts a delivered email against all three windows,
// stamps the send times, and resets the consecutive failure streak.
func (l *Limiter) RecordSuccess(domain, accountID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tr := l.get(domain, accountID, now)
	tr.roll(now)

	tr.sentToday++
	tr.sentThisHour++
	tr.sentThisMinute++
	if tr.firstSentAt.IsZero() {
		tr.firstSentAt = now
	}
	tr.lastSentAt = now
	tr.consecutiveFailures = 0
}

// RecordFailure counts a delivery failure. Failures never consume send
// quota; they only advance the failure counters feeding the breaker.
func (l *Limiter) RecordFailure(domain, accountID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tr := l.get(domain, accountID, now)
	tr.roll(now)

	tr.failureCount++
	tr.consecutiveFailures++

	if tr.consecutiveFailures == BreakerThreshold {
		l.logger.Warn("reputation circuit breaker tripped",
			slog.String("domain", domain),
			slog.String("account_id", accountID),
			slog.Int("consecutive_failures", tr.consecutiveFailures),
		)
	}
}

// TrackedPairs returns the number of (domain, account) pairs with state.
func (l *Limiter) TrackedPairs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tracking)
}

// Snapshot returns the usage of every tracked pair, with windows rolled
// forward to the current time.
func (l *Limiter) Snapshot() []DomainUsage {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make([]DomainUsage, 0, len(l.tracking))
	for k, tr := range l.tracking {
		tr.roll(now)
		tier := TierFor(tr.accountAgeDays)

		var util float64
		if tier.MaxPerDay > 0 {
			util = float64(tr.sentToday) / float64(tier.MaxPerDay)
		}

		domain, accountID := splitKey(k)
		out = append(out, DomainUsage{
			Domain:              domain,
			AccountID:           accountID,
			Usage:               tr.usage(),
			Tier:                tier,
			Utilization:         util,
			FailureCount:        tr.failureCount,
			ConsecutiveFailures: tr.consecutiveFailures,
			LastSentAt:          tr.lastSentAt,
		})
	}
	return out
}

func splitKey(k string) (domain, accountID string) {
	for i := 0; i < len(k); i++ {
		if k[i] == '|' {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}
