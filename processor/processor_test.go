package processor_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sendloop/courier"
	"github.com/sendloop/courier/job"
	"github.com/sendloop/courier/processor"
	"github.com/sendloop/courier/provider"
	"github.com/sendloop/courier/ratelimit"
)

func validEmail() *job.Email {
	return &job.Email{
		Recipient:      "to@example.com",
		Sender:         "sales@startup.io",
		Subject:        "hello",
		Text:           "body",
		AccountID:      "acct-1",
		AccountAgeDays: 30,
	}
}

func record(email *job.Email) *job.Record {
	return job.NewRecord(email, 3)
}

func TestProcess_Success(t *testing.T) {
	prov := provider.NewSimulated()
	limiter := ratelimit.New()
	p := processor.New(prov, limiter)

	if err := p.Process(context.Background(), record(validEmail())); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if prov.SendCalls() != 1 {
		t.Errorf("SendCalls = %d, want 1", prov.SendCalls())
	}

	stats := p.Stats()
	if stats.Processed != 1 || stats.Succeeded != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %v, want 1.0", stats.SuccessRate)
	}

	// The success registered with the limiter.
	snap := limiter.Snapshot()
	if len(snap) != 1 || snap[0].Usage.SentToday != 1 {
		t.Errorf("limiter snapshot = %+v", snap)
	}
}

func TestProcess_ValidationFailure_SkipsLimiterAndProvider(t *testing.T) {
	prov := provider.NewSimulated()
	limiter := ratelimit.New()
	p := processor.New(prov, limiter)

	email := validEmail()
	email.Subject = ""

	err := p.Process(context.Background(), record(email))
	var vErr *courier.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if vErr.Field != "subject" {
		t.Errorf("Field = %q, want subject", vErr.Field)
	}

	if prov.SendCalls() != 0 {
		t.Error("validation failure must not reach the provider")
	}
	if limiter.TrackedPairs() != 0 {
		t.Error("validation failure must not touch the rate limiter")
	}
}

func TestProcess_RateLimited(t *testing.T) {
	prov := provider.NewSimulated()
	limiter := ratelimit.New()
	p := processor.New(prov, limiter)

	// A brand new account may send 2 per minute.
	email := validEmail()
	email.AccountAgeDays = 1

	for i := range 2 {
		if err := p.Process(context.Background(), record(email)); err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
	}

	err := p.Process(context.Background(), record(email))
	var rlErr *courier.RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if !strings.HasPrefix(rlErr.Reason, "Minute limit exceeded: 2/2") {
		t.Errorf("Reason = %q", rlErr.Reason)
	}
	if rlErr.RetryAfter <= 0 {
		t.Error("RetryAfter hint missing")
	}
	if prov.SendCalls() != 2 {
		t.Errorf("SendCalls = %d, want 2 (rate-limited send must not reach provider)", prov.SendCalls())
	}
}

func TestProcess_ProviderFailure_RecordsWithLimiter(t *testing.T) {
	prov := provider.NewSimulated(provider.WithFailureRate(1.0))
	limiter := ratelimit.New()
	p := processor.New(prov, limiter)

	err := p.Process(context.Background(), record(validEmail()))
	var pErr *courier.ProviderError
	if !errors.As(err, &pErr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}

	snap := limiter.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot len = %d, want 1", len(snap))
	}
	if snap[0].FailureCount != 1 || snap[0].ConsecutiveFailures != 1 {
		t.Errorf("failure not recorded: %+v", snap[0])
	}
	if snap[0].Usage.SentToday != 0 {
		t.Error("failed send must not consume quota")
	}

	stats := p.Stats()
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
}

func TestProcess_Paused(t *testing.T) {
	prov := provider.NewSimulated()
	p := processor.New(prov, ratelimit.New())

	p.Pause()
	if p.IsRunning() {
		t.Error("IsRunning = true after Pause")
	}

	err := p.Process(context.Background(), record(validEmail()))
	if !errors.Is(err, processor.ErrPaused) {
		t.Fatalf("err = %v, want ErrPaused", err)
	}
	if prov.SendCalls() != 0 {
		t.Error("paused processor must not reach the provider")
	}

	p.Resume()
	if err := p.Process(context.Background(), record(validEmail())); err != nil {
		t.Fatalf("Process after Resume: %v", err)
	}
}

func TestProcess_NoProvider(t *testing.T) {
	p := processor.New(nil, ratelimit.New())

	err := p.Process(context.Background(), record(validEmail()))
	if !errors.Is(err, courier.ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
	if err := p.ValidateProvider(context.Background()); !errors.Is(err, courier.ErrNoProvider) {
		t.Errorf("ValidateProvider err = %v, want ErrNoProvider", err)
	}
	if h := p.ProviderHealth(context.Background()); h.Healthy {
		t.Error("health should report unhealthy without a provider")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(e *job.Email)
		wantField string
	}{
		{"valid", func(_ *job.Email) {}, ""},
		{"missing recipient", func(e *job.Email) { e.Recipient = "" }, "recipient"},
		{"malformed recipient", func(e *job.Email) { e.Recipient = "not-an-address" }, "recipient"},
		{"malformed sender", func(e *job.Email) { e.Sender = "@no-local-part" }, "sender"},
		{"missing subject", func(e *job.Email) { e.Subject = "" }, "subject"},
		{"missing body", func(e *job.Email) { e.HTML, e.Text = "", "" }, "body"},
		{"html only is fine", func(e *job.Email) { e.Text = ""; e.HTML = "<p>hi</p>" }, ""},
		{"missing account", func(e *job.Email) { e.AccountID = "" }, "account_id"},
		{"negative age", func(e *job.Email) { e.AccountAgeDays = -1 }, "account_age_days"},
		{"oversized", func(e *job.Email) { e.Text = strings.Repeat("x", job.MaxSize) }, "size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := validEmail()
			tt.mutate(email)

			err := processor.Validate(email)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			var vErr *courier.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", vErr.Field, tt.wantField)
			}
		})
	}
}
