package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiter_PerSecond(t *testing.T) {
	l := New(Config{RequestsPerSecond: 20})

	ctx := context.Background()
	start := time.Now()

	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}

	elapsed := time.Since(start)

	// First request is immediate, then two 50ms gaps.
	if elapsed < 90*time.Millisecond {
		t.Errorf("Expected delay, but completed in %v", elapsed)
	}
	if s := l.Stats(); s.Waits != 3 {
		t.Errorf("Stats().Waits = %d, want 3", s.Waits)
	}
}

func TestLimiter_PerSecond_Burst(t *testing.T) {
	l := New(Config{RequestsPerSecond: 100, Burst: 10})

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}

	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("5 requests with burst took too long: %v", elapsed)
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New(Config{})
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("unlimited limiter blocked for %v", elapsed)
	}
}

func TestLimiter_ContextCancellation(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1.0 / 3600})
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first Wait should pass: %v", err)
	}
	cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait after cancel = %v, want context.Canceled", err)
	}
}
