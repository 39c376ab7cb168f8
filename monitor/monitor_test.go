package monitor_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sendloop/courier"
	"github.com/sendloop/courier/id"
	"github.com/sendloop/courier/monitor"
	"github.com/sendloop/courier/processor"
	"github.com/sendloop/courier/queue"
	"github.com/sendloop/courier/ratelimit"
)

type fakeQueues struct {
	counts map[string]queue.Counts
}

func (f *fakeQueues) CountsAll(_ context.Context) (map[string]queue.Counts, error) {
	out := make(map[string]queue.Counts, len(f.counts))
	for k, v := range f.counts {
		out[k] = v
	}
	return out, nil
}

type fakeProc struct {
	stats processor.Stats
}

func (f *fakeProc) Stats() processor.Stats { return f.stats }

type fakeLimiter struct {
	domains []ratelimit.DomainUsage
}

func (f *fakeLimiter) Snapshot() []ratelimit.DomainUsage { return f.domains }

type fakeDLQ struct {
	n int64
}

func (f *fakeDLQ) CountDLQ(_ context.Context) (int64, error) { return f.n, nil }

type fixture struct {
	queues  *fakeQueues
	proc    *fakeProc
	limiter *fakeLimiter
	dlq     *fakeDLQ
	clock   time.Time
	mon     *monitor.Monitor
}

func newFixture(t *testing.T, opts ...monitor.Option) *fixture {
	t.Helper()
	f := &fixture{
		queues: &fakeQueues{counts: map[string]queue.Counts{
			"priority": {},
			"normal":   {},
			"bulk":     {},
		}},
		proc:    &fakeProc{},
		limiter: &fakeLimiter{},
		dlq:     &fakeDLQ{},
		clock:   time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	opts = append(opts, monitor.WithClock(func() time.Time { return f.clock }))
	f.mon = monitor.New(f.queues, f.proc, f.limiter, f.dlq, opts...)
	return f
}

func (f *fixture) sample(t *testing.T) {
	t.Helper()
	if err := f.mon.Sample(context.Background()); err != nil {
		t.Fatalf("Sample: %v", err)
	}
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func TestQueueDepthAlert_Deduplicated(t *testing.T) {
	f := newFixture(t, monitor.WithQueueDepthWarning(1000))
	f.queues.counts["normal"] = queue.Counts{Waiting: 1500}

	f.sample(t)

	alerts := f.mon.GetAlerts()
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Severity != monitor.SeverityWarning {
		t.Errorf("severity = %q, want warning", a.Severity)
	}
	if a.Component != "queue" {
		t.Errorf("component = %q, want queue", a.Component)
	}
	if a.Resolved() {
		t.Error("fresh alert must be unresolved")
	}

	// Same depth on the next sample: no duplicate.
	f.advance(10 * time.Second)
	f.sample(t)
	if got := len(f.mon.GetAlerts()); got != 1 {
		t.Errorf("after second sample: %d alerts, want 1", got)
	}
}

func TestResolveAlert_AllowsRecurrence(t *testing.T) {
	f := newFixture(t, monitor.WithQueueDepthWarning(10))
	f.queues.counts["normal"] = queue.Counts{Waiting: 50}
	f.sample(t)

	first := f.mon.GetAlerts()[0]
	if err := f.mon.ResolveAlert(first.ID); err != nil {
		t.Fatalf("ResolveAlert: %v", err)
	}
	if got := len(f.mon.GetAlerts()); got != 0 {
		t.Fatalf("resolved alert still listed: %d", got)
	}

	// Condition persists: a new alert is created, never reopened.
	f.advance(10 * time.Second)
	f.sample(t)
	alerts := f.mon.GetAlerts()
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts after recurrence, want 1", len(alerts))
	}
	if alerts[0].ID == first.ID {
		t.Error("resolved alert was reopened instead of recreated")
	}
}

func TestResolveAlert_Unknown(t *testing.T) {
	f := newFixture(t)
	if err := f.mon.ResolveAlert(id.NewAlertID()); !errors.Is(err, courier.ErrAlertNotFound) {
		t.Errorf("err = %v, want ErrAlertNotFound", err)
	}
}

func TestErrorRateAlert(t *testing.T) {
	f := newFixture(t, monitor.WithErrorRateThreshold(0.1))

	f.sample(t)

	// One minute later: 10 completed, 5 failed.
	f.advance(time.Minute)
	f.queues.counts["normal"] = queue.Counts{Completed: 10, Failed: 5}
	f.sample(t)

	var found bool
	for _, a := range f.mon.GetAlerts() {
		if a.Rule == monitor.RuleErrorRate && a.Severity == monitor.SeverityError && a.Component == "processor" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected error-rate alert, got %+v", f.mon.GetAlerts())
	}
}

func TestStalledAlert_AndHealth(t *testing.T) {
	f := newFixture(t)
	f.queues.counts["normal"] = queue.Counts{Waiting: 5}

	f.sample(t)
	f.advance(time.Minute)
	f.sample(t) // still nothing completing

	var found bool
	for _, a := range f.mon.GetAlerts() {
		if a.Rule == monitor.RuleStalled && a.Severity == monitor.SeverityCritical {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected stalled alert, got %+v", f.mon.GetAlerts())
	}

	h := f.mon.Health()
	if h.Components[monitor.ComponentProcessor] != monitor.HealthCritical {
		t.Errorf("processor health = %q, want critical", h.Components[monitor.ComponentProcessor])
	}
	if h.Overall != monitor.HealthCritical {
		t.Errorf("overall = %q, want critical", h.Overall)
	}
}

func TestHealth_UnknownBeforeSample(t *testing.T) {
	f := newFixture(t)
	if h := f.mon.Health(); h.Overall != monitor.HealthUnknown {
		t.Errorf("overall = %q before first sample, want unknown", h.Overall)
	}
}

func TestHealth_HealthyAfterCleanSample(t *testing.T) {
	f := newFixture(t)
	f.sample(t)
	if h := f.mon.Health(); h.Overall != monitor.HealthHealthy {
		t.Errorf("overall = %q, want healthy: %+v", h.Overall, h.Components)
	}
}

func TestHealth_BreakerDegradesLimiter(t *testing.T) {
	f := newFixture(t)
	f.limiter.domains = []ratelimit.DomainUsage{
		{Domain: "startup.io", AccountID: "a", ConsecutiveFailures: ratelimit.BreakerThreshold},
	}
	f.sample(t)

	h := f.mon.Health()
	if h.Components[monitor.ComponentLimiter] != monitor.HealthDegraded {
		t.Errorf("limiter health = %q, want degraded", h.Components[monitor.ComponentLimiter])
	}
	if h.Overall != monitor.HealthDegraded {
		t.Errorf("overall = %q, want degraded", h.Overall)
	}
}

func TestOnAlert_SynchronousDelivery(t *testing.T) {
	f := newFixture(t, monitor.WithQueueDepthWarning(1))
	var received []monitor.Alert
	f.mon.OnAlert(func(a monitor.Alert) { received = append(received, a) })

	f.queues.counts["bulk"] = queue.Counts{Waiting: 10}
	f.sample(t)

	if len(received) != 1 {
		t.Fatalf("subscriber got %d alerts, want 1", len(received))
	}
	if received[0].Rule != monitor.RuleQueueDepth {
		t.Errorf("rule = %q", received[0].Rule)
	}
}

func TestPrometheusLines(t *testing.T) {
	f := newFixture(t)
	f.queues.counts["normal"] = queue.Counts{Waiting: 7, Active: 2, Failed: 1}
	f.limiter.domains = []ratelimit.DomainUsage{
		{Domain: "startup.io", AccountID: "a", Usage: ratelimit.Usage{SentToday: 42}, Utilization: 0.84},
	}
	f.sample(t)

	out := f.mon.PrometheusLines()
	ms := f.clock.UnixMilli()

	for _, want := range []string{
		fmt.Sprintf(`courier_queue_depth{queue="normal"} 7 %d`, ms),
		fmt.Sprintf(`courier_queue_active{queue="normal"} 2 %d`, ms),
		fmt.Sprintf(`courier_domain_sent_today{account="a",domain="startup.io"} 42 %d`, ms),
		fmt.Sprintf(`courier_domain_utilization{account="a",domain="startup.io"} 0.84 %d`, ms),
		fmt.Sprintf(`courier_component_health{component="processor"} 1 %d`, ms),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing line %q\ngot:\n%s", want, out)
		}
	}
}

func TestPrometheusLines_EmptyBeforeSample(t *testing.T) {
	f := newFixture(t)
	if out := f.mon.PrometheusLines(); out != "" {
		t.Errorf("expected empty export before first sample, got %q", out)
	}
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	if snap := f.mon.Snapshot(); snap != nil {
		t.Fatal("snapshot before first sample should be nil")
	}

	f.queues.counts["normal"] = queue.Counts{Waiting: 3, Completed: 9}
	f.dlq.n = 2
	f.proc.stats = processor.Stats{Processed: 10, Succeeded: 9, Failed: 1, SuccessRate: 0.9, Running: true}
	f.sample(t)

	snap := f.mon.Snapshot()
	if snap == nil {
		t.Fatal("snapshot is nil after sampling")
	}
	if !snap.Timestamp.Equal(f.clock) {
		t.Errorf("timestamp = %v", snap.Timestamp)
	}
	if len(snap.Queues) != 3 {
		t.Fatalf("got %d queues, want 3", len(snap.Queues))
	}
	// Sorted by name: bulk, normal, priority.
	if snap.Queues[1].Name != "normal" || snap.Queues[1].Waiting != 3 {
		t.Errorf("queues[1] = %+v", snap.Queues[1])
	}
	if snap.DeadLettered != 2 {
		t.Errorf("DeadLettered = %d, want 2", snap.DeadLettered)
	}
	if snap.Rates.SuccessRate != 0.9 {
		t.Errorf("SuccessRate = %v, want 0.9", snap.Rates.SuccessRate)
	}
}

func TestSeries_WindowAndRetention(t *testing.T) {
	f := newFixture(t, monitor.WithRetention(time.Hour), monitor.WithSampleInterval(10*time.Second))

	for range 5 {
		f.sample(t)
		f.advance(10 * time.Minute)
	}

	// Samples landed at +0m..+40m and the clock now reads +50m, so the
	// 15m window sees only the final point.
	labels := map[string]string{"queue": "normal"}
	all := f.mon.Series("courier_queue_depth", labels, 24*time.Hour)
	recent := f.mon.Series("courier_queue_depth", labels, 15*time.Minute)

	if len(all) != 5 {
		t.Errorf("full window = %d points, want 5", len(all))
	}
	if len(recent) != 1 {
		t.Errorf("15m window = %d points, want 1", len(recent))
	}

	// Age everything out and prune.
	f.advance(2 * time.Hour)
	if removed := f.mon.PruneSeries(); removed == 0 {
		t.Error("expected stale series to be pruned")
	}
	if pts := f.mon.Series("courier_queue_depth", labels, 24*time.Hour); len(pts) != 0 {
		t.Errorf("pruned series still returns %d points", len(pts))
	}
}

func TestThroughputDerivation(t *testing.T) {
	f := newFixture(t)
	f.sample(t)

	f.advance(2 * time.Minute)
	f.queues.counts["normal"] = queue.Counts{Completed: 20}
	f.sample(t)

	snap := f.mon.Snapshot()
	if snap.Rates.ThroughputPerMin != 10 {
		t.Errorf("throughput = %v, want 10/min", snap.Rates.ThroughputPerMin)
	}
}
