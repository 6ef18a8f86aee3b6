package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 5})

	for i := range 5 {
		if err := rl.Allow(KindMessage, "1.2.3.4"); err != nil {
			t.Fatalf("Allow(%d) returned error: %v", i, err)
		}
	}
	if err := rl.Allow(KindMessage, "1.2.3.4"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{HandoffsPerHour: 1})
	if err := rl.Allow(KindHandoff, "a"); err != nil {
		t.Fatalf("a: %v", err)
	}
	if err := rl.Allow(KindHandoff, "b"); err != nil {
		t.Fatalf("b should have its own window: %v", err)
	}
	if err := rl.Allow(KindHandoff, "a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("a second handoff = %v, want ErrRateLimited", err)
	}
	if err := rl.Allow(KindMessage, "a"); err != nil {
		t.Fatalf("kinds should be independent: %v", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 2})
	rl.now = func() time.Time { return now }

	_ = rl.Allow(KindMessage, "c")
	_ = rl.Allow(KindMessage, "c")
	if err := rl.Allow(KindMessage, "c"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit")
	}

	now = now.Add(61 * time.Second)
	if err := rl.Allow(KindMessage, "c"); err != nil {
		t.Fatalf("expected allow after window, got %v", err)
	}
}

func TestRateLimiter_UnknownKind(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	for range 1000 {
		if err := rl.Allow("unknown_kind", "c"); err != nil {
			t.Fatalf("expected nil for unknown kind, got %v", err)
		}
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	d := rateLimitConfigDefaults()
	tests := []struct {
		kind  string
		limit int
	}{
		{KindMessage, d.MessagesPerMin},
		{KindSession, d.SessionsPerMin},
		{KindHandoff, d.HandoffsPerHour},
		{KindAuth, d.AuthPerMin},
	}
	for _, tt := range tests {
		if got := rl.rules[tt.kind].limit; got != tt.limit {
			t.Errorf("%s limit = %d, want %d", tt.kind, got, tt.limit)
		}
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{})
	rl.now = func() time.Time { return now }

	_ = rl.Allow(KindMessage, "a")
	_ = rl.Allow(KindHandoff, "a")
	if rl.Clients() != 2 {
		t.Fatalf("Clients = %d, want 2", rl.Clients())
	}

	now = now.Add(2 * time.Minute)
	if n := rl.Sweep(); n != 1 {
		t.Errorf("Sweep = %d, want 1 (handoff window is an hour)", n)
	}
	if rl.Clients() != 1 {
		t.Errorf("Clients = %d, want 1", rl.Clients())
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 50})
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Go(func() {
			if rl.Allow(KindMessage, "shared") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}
