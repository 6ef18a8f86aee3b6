// Package security holds the protections of the public chat surface:
// per-client rate limiting, request validation and log redaction.
package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("security: rate limit exceeded")

// Rate limit kinds.
const (
	KindMessage = "message"
	KindSession = "session"
	KindHandoff = "handoff"
	KindAuth    = "auth"
)

// RateLimitConfig holds per-client limits. Zero fields use the defaults.
type RateLimitConfig struct {
	MessagesPerMin  int `yaml:"messages_per_min"`
	SessionsPerMin  int `yaml:"sessions_per_min"`
	HandoffsPerHour int `yaml:"handoffs_per_hour"`
	AuthPerMin      int `yaml:"auth_per_min"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		MessagesPerMin:  30,
		SessionsPerMin:  10,
		HandoffsPerHour: 5,
		AuthPerMin:      20,
	}
}

type rule struct {
	window time.Duration
	limit  int
}

// RateLimiter is a sliding-window limiter keyed by kind and client. Each
// client gets its own window per kind.
type RateLimiter struct {
	mu      sync.Mutex
	rules   map[string]rule
	buckets map[bucketKey]*bucket
	now     func() time.Time
}

type bucketKey struct {
	kind   string
	client string
}

type bucket struct {
	window time.Duration
	events []time.Time
}

// NewRateLimiter creates a limiter with cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	d := rateLimitConfigDefaults()
	orDefault := func(v, def int) int {
		if v <= 0 {
			return def
		}
		return v
	}

	return &RateLimiter{
		rules: map[string]rule{
			KindMessage: {window: time.Minute, limit: orDefault(cfg.MessagesPerMin, d.MessagesPerMin)},
			KindSession: {window: time.Minute, limit: orDefault(cfg.SessionsPerMin, d.SessionsPerMin)},
			KindHandoff: {window: time.Hour, limit: orDefault(cfg.HandoffsPerHour, d.HandoffsPerHour)},
			KindAuth:    {window: time.Minute, limit: orDefault(cfg.AuthPerMin, d.AuthPerMin)},
		},
		buckets: make(map[bucketKey]*bucket),
		now:     time.Now,
	}
}

// Allow records one event of kind for client. It returns ErrRateLimited
// when the client's window is full. Unknown kinds are never limited.
func (rl *RateLimiter) Allow(kind, client string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	r, ok := rl.rules[kind]
	if !ok {
		return nil
	}

	key := bucketKey{kind: kind, client: client}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{window: r.window}
		rl.buckets[key] = b
	}

	now := rl.now()
	b.evict(now)
	if len(b.events) >= r.limit {
		return ErrRateLimited
	}
	b.events = append(b.events, now)
	return nil
}

// Sweep drops the buckets with no event left in their window and returns
// how many were dropped.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	dropped := 0
	for key, b := range rl.buckets {
		b.evict(now)
		if len(b.events) == 0 {
			delete(rl.buckets, key)
			dropped++
		}
	}
	return dropped
}

// Clients returns the number of tracked buckets.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// evict removes events outside the window. Events are chronological.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
