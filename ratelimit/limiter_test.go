package ratelimit

import (
	"strings"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// ---------------------------------------------------------------------------
// Tier ladder
// ---------------------------------------------------------------------------

func TestTierFor_Boundaries(t *testing.T) {
	tests := []struct {
		ageDays   int
		maxPerDay int
		name      string
	}{
		{0, 50, "New"},
		{1, 50, "New"},
		{3, 50, "New"},
		{4, 100, "Building"},
		{7, 100, "Building"},
		{8, 200, "Growing"},
		{14, 200, "Growing"},
		{15, 400, "Established"},
		{30, 400, "Established"},
		{31, 1000, "Mature"},
		{365, 1000, "Mature"},
	}

	for _, tt := range tests {
		tier := TierFor(tt.ageDays)
		if tier.MaxPerDay != tt.maxPerDay {
			t.Errorf("TierFor(%d).MaxPerDay = %d, want %d", tt.ageDays, tier.MaxPerDay, tt.maxPerDay)
		}
		if tier.Name != tt.name {
			t.Errorf("TierFor(%d).Name = %q, want %q", tt.ageDays, tier.Name, tt.name)
		}
	}
}

func TestTiers_Copy(t *testing.T) {
	ladder := Tiers()
	if len(ladder) != 5 {
		t.Fatalf("expected 5 tiers, got %d", len(ladder))
	}
	ladder[0].MaxPerDay = 9999
	if TierFor(1).MaxPerDay == 9999 {
		t.Error("mutating Tiers() result should not affect the ladder")
	}
}

// ---------------------------------------------------------------------------
// Daily / hourly / minute ceilings
// ---------------------------------------------------------------------------

func TestCheckLimit_DailyCeiling(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.now))

	// Age 1 day → New tier: 50/day, 10/hour, 2/minute. Space sends a
	// minute apart and roll the hour window so only the daily ceiling
	// binds.
	for i := 1; i <= 50; i++ {
		d := l.CheckLimit("example.com", "acct_1", 1)
		if !d.Allowed {
			t.Fatalf("check %d: Allowed = false (%s), want true", i, d.Reason)
		}
		l.RecordSuccess("example.com", "acct_1")
		clock.advance(7 * time.Minute) // keeps hour window under 10
	}

	d := l.CheckLimit("example.com", "acct_1", 1)
	if d.Allowed {
		t.Fatal("51st check: Allowed = true, want false")
	}
	if !strings.Contains(d.Reason, "Daily limit exceeded: 50/50") {
		t.Errorf("Reason = %q, want to contain %q", d.Reason, "Daily limit exceeded: 50/50")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", d.RetryAfter)
	}
	if d.Usage.SentToday != 50 {
		t.Errorf("Usage.SentToday = %d, want 50", d.Usage.SentToday)
	}
}

func TestCheckLimit_DailyRetryAfterIsMidnight(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.now))

	for range 2 {
		l.RecordSuccess("example.com", "a")
		clock.advance(time.Minute)
	}
	// Age 1 → New tier, 50/day. Fill the remaining budget spaced out
	// so only the daily ceiling binds.
	for i := 0; i < 48; i++ {
		l.RecordSuccess("example.com", "a")
		clock.advance(7 * time.Minute)
	}

	d := l.CheckLimit("example.com", "a", 1)
	if d.Allowed {
		t.Fatal("expected daily rejection")
	}
	nextMidnight := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	want := nextMidnight.Sub(clock.now())
	if d.RetryAfter != want {
		t.Errorf("RetryAfter = %v, want %v (until midnight)", d.RetryAfter, want)
	}
}

func TestCheckLimit_HourlyCeiling(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.now))

	// New tier allows 10/hour. Space sends a minute apart so the
	// per-minute ceiling (2) never binds.
	for i := 1; i <= 10; i++ {
		d := l.CheckLimit("example.com", "a", 1)
		if !d.Allowed {
			t.Fatalf("check %d: rejected: %s", i, d.Reason)
		}
		l.RecordSuccess("example.com", "a")
		clock.advance(time.Minute)
	}

	d := l.CheckLimit("example.com", "a", 1)
	if d.Allowed {
		t.Fatal("11th check in hour: Allowed = true, want false")
	}
	if !strings.Contains(d.Reason, "Hourly limit exceeded: 10/10") {
		t.Errorf("Reason = %q, want hourly violation", d.Reason)
	}

	// After the hour window elapses, sends are allowed again.
	clock.advance(time.Hour)
	if d := l.CheckLimit("example.com", "a", 1); !d.Allowed {
		t.Errorf("after hour rollover: rejected: %s", d.Reason)
	}
}

func TestCheckLimit_MinuteCeiling(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.now))

	// New tier allows 2/minute.
	for i := 1; i <= 2; i++ {
		if d := l.CheckLimit("example.com", "a", 1); !d.Allowed {
			t.Fatalf("check %d: rejected: %s", i, d.Reason)
		}
		l.RecordSuccess("example.com", "a")
	}

	d := l.CheckLimit("example.com", "a", 1)
	if d.Allowed {
		t.Fatal("3rd check in minute: Allowed = true, want false")
	}
	if !strings.Contains(d.Reason, "Per-minute limit exceeded: 2/2") {
		t.Errorf("Reason = %q, want per-minute violation", d.Reason)
	}
	// Boundary is window start + 60s.
	if d.RetryAfter != time.Minute {
		t.Errorf("RetryAfter = %v, want %v", d.RetryAfter, time.Minute)
	}

	clock.advance(61 * time.Second)
	if d := l.CheckLimit("example.com", "a", 1); !d.Allowed {
		t.Errorf("after minute rollover: rejected: %s", d.Reason)
	}
}

func TestCheckLimit_ViolationOrder(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.now))

	// Exhaust the minute AND hour ceilings; hourly must be reported
	// first since daily > hourly > minute is the check order.
	for i := 0; i < 10; i++ {
		l.RecordSuccess("example.com", "a")
	}

	d := l.CheckLimit("example.com", "a", 1)
	if d.Allowed {
		t.Fatal("expected rejection")
	}
	if !strings.Contains(d.Reason, "Hourly") {
		t.Errorf("Reason = %q, want hourly violation reported before per-minute", d.Reason)
	}
}

// ---------------------------------------------------------------------------
// Lazy window rollover
// ---------------------------------------------------------------------------

func TestWindows_LazyReset(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.now))

	l.RecordSuccess("example.com", "a")
	l.RecordSuccess("example.com", "a")

	// Cross the minute boundary without touching the limiter; the
	// counter resets on the next access, not on a timer.
	clock.advance(2 * time.Minute)

	d := l.CheckLimit("example.com", "a", 1)
	if !d.Allowed {
		t.Fatalf("rejected after minute rollover: %s", d.Reason)
	}
	if d.Usage.SentThisMinute != 0 {
		t.Errorf("SentThisMinute = %d, want 0 after rollover", d.Usage.SentThisMinute)
	}
	if d.Usage.SentToday != 2 {
		t.Errorf("SentToday = %d, want 2 (daily window untouched)", d.Usage.SentToday)
	}
}

func TestWindows_DailyResetAtMidnight(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.now))

	l.RecordSuccess("example.com", "a")

	// 9:00 → next day 00:30.
	clock.advance(15*time.Hour + 30*time.Minute)

	d := l.CheckLimit("example.com", "a", 1)
	if d.Usage.SentToday != 0 {
		t.Errorf("SentToday = %d, want 0 after midnight", d.Usage.SentToday)
	}
}

// ---------------------------------------------------------------------------
// Reputation circuit breaker
// ---------------------------------------------------------------------------

func TestBreaker_TripsAtThreshold(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.now))

	for i := 0; i < BreakerThreshold-1; i++ {
		l.RecordFailure("example.com", "a")
	}
	if d := l.CheckLimit("example.com", "a", 31); !d.Allowed {
		t.Fatalf("9 failures should not trip the breaker: %s", d.Reason)
	}

	l.RecordFailure("example.com", "a")
	d := l.CheckLimit("example.com", "a", 31)
	if d.Allowed {
		t.Fatal("10 consecutive failures should trip the breaker")
	}
	if !strings.Contains(d.Reason, "circuit breaker") {
		t.Errorf("Reason = %q, want circuit breaker", d.Reason)
	}
}

func TestBreaker_NotResetByWindowRollover(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.now))

	for i := 0; i < BreakerThreshold; i++ {
		l.RecordFailure("example.com", "a")
	}

	// Rolling every window does not close the breaker.
	clock.advance(25 * time.Hour)
	if d := l.CheckLimit("example.com", "a", 31); d.Allowed {
		t.Fatal("window rollover must not reset the breaker")
	}
}

func TestBreaker_ResetBySuccess(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.now))

	for i := 0; i < BreakerThreshold; i++ {
		l.RecordFailure("example.com", "a")
	}
	l.RecordSuccess("example.com", "a")

	if d := l.CheckLimit("example.com", "a", 31); !d.Allowed {
		t.Errorf("breaker should close after a success: %s", d.Reason)
	}
}

func TestRecordFailure_DoesNotConsumeQuota(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.now))

	l.RecordFailure("example.com", "a")
	l.RecordFailure("example.com", "a")

	d := l.CheckLimit("example.com", "a", 1)
	if d.Usage.SentToday != 0 || d.Usage.SentThisHour != 0 || d.Usage.SentThisMinute != 0 {
		t.Errorf("failures consumed send quota: %+v", d.Usage)
	}
}

// ---------------------------------------------------------------------------
// Isolation and snapshots
// ---------------------------------------------------------------------------

func TestPairs_Isolated(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.now))

	l.RecordSuccess("example.com", "acct_1")
	l.RecordSuccess("example.com", "acct_1")

	// Same domain, different account: fresh counters.
	d := l.CheckLimit("example.com", "acct_2", 1)
	if d.Usage.SentThisMinute != 0 {
		t.Errorf("acct_2 SentThisMinute = %d, want 0", d.Usage.SentThisMinute)
	}
	// Different domain, same account: fresh counters too.
	d = l.CheckLimit("other.org", "acct_1", 1)
	if d.Usage.SentThisMinute != 0 {
		t.Errorf("other.org SentThisMinute = %d, want 0", d.Usage.SentThisMinute)
	}

	if got := l.TrackedPairs(); got != 3 {
		t.Errorf("TrackedPairs() = %d, want 3", got)
	}
}

func TestSnapshot_Utilization(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.now))

	l.CheckLimit("example.com", "a", 1) // records the account age
	for i := 0; i < 25; i++ {
		l.RecordSuccess("example.com", "a")
		clock.advance(7 * time.Minute)
	}

	snaps := l.Snapshot()
	if len(snaps) != 1 {
		t.Fatalf("Snapshot() returned %d entries, want 1", len(snaps))
	}
	s := snaps[0]
	if s.Domain != "example.com" || s.AccountID != "a" {
		t.Errorf("snapshot pair = (%q, %q)", s.Domain, s.AccountID)
	}
	if s.Usage.SentToday != 25 {
		t.Errorf("SentToday = %d, want 25", s.Usage.SentToday)
	}
	if s.Utilization != 0.5 {
		t.Errorf("Utilization = %v, want 0.5 (25/50)", s.Utilization)
	}
}
