package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sendloop/courier"
	"github.com/sendloop/courier/engine"
	"github.com/sendloop/courier/job"
	"github.com/sendloop/courier/monitor"
	"github.com/sendloop/courier/provider"
	"github.com/sendloop/courier/queue"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEmail() *job.Email {
	return &job.Email{
		Recipient:      "to@example.com",
		Sender:         "from@example.com",
		Subject:        "welcome",
		Text:           "hello",
		AccountID:      "acct-1",
		AccountAgeDays: 100,
		Priority:       job.PriorityNormal,
	}
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBuild_RequiresProvider(t *testing.T) {
	if _, err := engine.Build(nil); !errors.Is(err, courier.ErrNoProvider) {
		t.Errorf("err = %v, want ErrNoProvider", err)
	}
}

func TestEngine_DeliversEndToEnd(t *testing.T) {
	prov := provider.NewSimulated()
	eng, err := engine.Build(prov, engine.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop(ctx)

	rec, err := eng.Send(ctx, newEmail())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rec.Queue != job.QueueNormal {
		t.Errorf("queue = %q, want normal", rec.Queue)
	}

	waitFor(t, 3*time.Second, func() bool {
		got, err := eng.Queues().GetJob(ctx, rec.ID)
		return err == nil && got.State == job.StateCompleted
	})

	if prov.SendCalls() != 1 {
		t.Errorf("provider send calls = %d, want 1", prov.SendCalls())
	}
	stats := eng.Processor().Stats()
	if stats.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", stats.Succeeded)
	}
}

func TestEngine_FailureSchedulesRetry(t *testing.T) {
	prov := provider.NewSimulated(provider.WithFailureRate(1))
	cfg := courier.DefaultConfig()
	eng, err := engine.Build(prov,
		engine.WithLogger(quietLogger()),
		engine.WithConfig(cfg),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop(ctx)

	if _, err := eng.Send(ctx, newEmail()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// First failure schedules a 5s retry, so only assert the failure
	// reached the store as a delayed record.
	waitFor(t, 3*time.Second, func() bool {
		counts, err := eng.Queues().Counts(ctx, job.QueueNormal)
		return err == nil && counts.Delayed == 1
	})

	if stats := eng.Processor().Stats(); stats.Failed == 0 {
		t.Error("processor recorded no failures")
	}
}

func TestEngine_StopIsIdempotent(t *testing.T) {
	eng, err := engine.Build(provider.NewSimulated(), engine.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestConfig_QueueDepthWarningReachesMonitor(t *testing.T) {
	cfg := courier.DefaultConfig()
	cfg.QueueDepthWarning = 2
	eng, err := engine.Build(provider.NewSimulated(),
		engine.WithLogger(quietLogger()),
		engine.WithConfig(cfg),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := context.Background()
	for range 3 {
		if _, err := eng.Send(ctx, newEmail()); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if err := eng.Monitor().Sample(ctx); err != nil {
		t.Fatalf("Sample: %v", err)
	}

	var found bool
	for _, a := range eng.Monitor().GetAlerts() {
		if a.Rule == monitor.RuleQueueDepth {
			found = true
		}
	}
	if !found {
		t.Errorf("configured depth threshold not applied: %+v", eng.Monitor().GetAlerts())
	}
}

func TestEngine_CustomStore(t *testing.T) {
	store := queue.NewMemoryStore()
	eng, err := engine.Build(provider.NewSimulated(),
		engine.WithLogger(quietLogger()),
		engine.WithStore(store),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := context.Background()
	rec, err := eng.Send(ctx, newEmail())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := store.GetJob(ctx, rec.ID); err != nil {
		t.Errorf("job not in injected store: %v", err)
	}
}
