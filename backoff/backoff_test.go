package backoff_test

import (
	"testing"
	"time"

	"github.com/sendloop/courier/backoff"
)

func TestSchedule_FixedDelays(t *testing.T) {
	s := backoff.DefaultSchedule()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 15 * time.Second},
		{3, 45 * time.Second},
	}
	for _, tt := range tests {
		if got := s.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestSchedule_ClampsPastEnd(t *testing.T) {
	s := backoff.NewSchedule(time.Second, 2*time.Second)

	if got := s.Delay(5); got != 2*time.Second {
		t.Errorf("Delay(5) = %v, want %v (last entry)", got, 2*time.Second)
	}
	if got := s.Delay(100); got != 2*time.Second {
		t.Errorf("Delay(100) = %v, want %v (last entry)", got, 2*time.Second)
	}
}

func TestSchedule_ClampsBelowOne(t *testing.T) {
	s := backoff.NewSchedule(time.Second, 2*time.Second)
	if got := s.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want %v (first entry)", got, time.Second)
	}
}

func TestSchedule_Empty(t *testing.T) {
	s := backoff.NewSchedule()
	if got := s.Delay(1); got != 0 {
		t.Errorf("Delay(1) = %v, want 0 for empty schedule", got)
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},  // 1 * 2^0
		{2, 2 * time.Second},  // 1 * 2^1
		{3, 4 * time.Second},  // 1 * 2^2
		{4, 8 * time.Second},  // 1 * 2^3
		{5, 16 * time.Second}, // 1 * 2^4
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	if got := e.Delay(5); got != 10*time.Second {
		t.Errorf("Delay(5) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
	if got := e.Delay(20); got != 10*time.Second {
		t.Errorf("Delay(20) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
}

func TestJitter_WithinBounds(t *testing.T) {
	j := backoff.NewJitter(backoff.DefaultSchedule(), 0.2)

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 15 * time.Second},
		{3, 45 * time.Second},
		{10, 45 * time.Second}, // clamped to last schedule entry
	}
	for _, tt := range tests {
		lo := time.Duration(float64(tt.base) * 0.8)
		hi := time.Duration(float64(tt.base) * 1.2)
		for range 100 {
			got := j.Delay(tt.attempt)
			if got < lo || got > hi {
				t.Fatalf("Delay(%d) = %v, want within [%v, %v]", tt.attempt, got, lo, hi)
			}
		}
	}
}

func TestJitter_ProducesVariance(t *testing.T) {
	j := backoff.NewJitter(backoff.NewSchedule(time.Minute), 0.2)

	seen := make(map[time.Duration]bool)
	for range 100 {
		seen[j.Delay(1)] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected variance in jitter, got only %d distinct values", len(seen))
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := backoff.DefaultStrategy()
	if s == nil {
		t.Fatal("DefaultStrategy() returned nil")
	}

	// First retry jitters around 5s.
	got := s.Delay(1)
	if got < 4*time.Second || got > 6*time.Second {
		t.Errorf("Delay(1) = %v, want roughly 5s ± 20%%", got)
	}
}
