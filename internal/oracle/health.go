package oracle

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Availability says whether an answer source takes queries right now. The
// Caller tracks the oracle as a whole; the worker bridge tracks each worker.
type Availability string

// Availability states.
const (
	Ready   Availability = "ready"
	Backoff Availability = "backoff" // benched after a failure until RetryAt
	Offline Availability = "offline" // MaxFailures consecutive failures
)

// BackoffPolicy controls how long a failing answer source is benched.
type BackoffPolicy struct {
	// Initial is the bench after the first failure, doubled per further
	// consecutive failure. Default: 1s.
	Initial time.Duration
	// Max caps the bench. Default: 60s.
	Max time.Duration
	// MaxFailures consecutive failures take the source offline. Default: 5.
	MaxFailures int
	// CheckInterval is how often the Caller health-checks a benched or offline
	// oracle. Default: 10s.
	CheckInterval time.Duration
}

func (p BackoffPolicy) withDefaults() BackoffPolicy {
	if p.Initial <= 0 {
		p.Initial = time.Second
	}
	if p.Max <= 0 {
		p.Max = time.Minute
	}
	if p.MaxFailures <= 0 {
		p.MaxFailures = 5
	}
	if p.CheckInterval <= 0 {
		p.CheckInterval = 10 * time.Second
	}
	return p
}

// Status is a snapshot of a Tracker, shaped for health and admin output.
type Status struct {
	State      Availability `json:"state"`
	Failures   int          `json:"failures,omitempty"`
	RetryAt    time.Time    `json:"retry_at,omitzero"`
	LastReason string       `json:"last_reason,omitempty"`
}

// Tracker follows the availability of one answer source. It is safe for
// concurrent use.
type Tracker struct {
	policy   BackoffPolicy
	now      func() time.Time
	onChange func(from, to Availability, st Status)

	mu         sync.Mutex
	state      Availability
	failures   int
	bench      time.Duration
	retryAt    time.Time
	lastReason string
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// OnChange registers fn, called outside the lock on every state change.
func OnChange(fn func(from, to Availability, st Status)) TrackerOption {
	return func(t *Tracker) { t.onChange = fn }
}

// NewTracker returns a Ready tracker.
func NewTracker(p BackoffPolicy, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		policy: p.withDefaults(),
		now:    time.Now,
		state:  Ready,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Policy returns the effective policy.
func (t *Tracker) Policy() BackoffPolicy { return t.policy }

// Ready reports whether a query may be sent. A benched source is ready
// again once RetryAt has passed; an offline one only after a success.
func (t *Tracker) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readyLocked()
}

func (t *Tracker) readyLocked() bool {
	switch t.state {
	case Ready:
		return true
	case Backoff:
		return !t.now().Before(t.retryAt)
	default:
		return false
	}
}

// NeedsCheck reports whether a health check could bring the source back.
func (t *Tracker) NeedsCheck() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case Offline:
		return true
	case Backoff:
		return t.readyLocked()
	default:
		return false
	}
}

// Succeeded marks the source ready and forgets past failures.
func (t *Tracker) Succeeded() {
	t.mu.Lock()
	prev := t.state
	t.state = Ready
	t.failures = 0
	t.bench = 0
	t.retryAt = time.Time{}
	st := t.statusLocked()
	t.mu.Unlock()

	t.notify(prev, st)
}

// Failed records err against the source and reports whether it counted.
// A low-confidence answer still came from a working source, and a
// cancelled call says nothing about it, so neither is counted.
func (t *Tracker) Failed(err error) bool {
	if errors.Is(err, ErrLowConfidence) || errors.Is(err, context.Canceled) {
		return false
	}

	t.mu.Lock()
	prev := t.state
	t.failures++
	t.lastReason = Reason(err)
	if t.failures >= t.policy.MaxFailures {
		t.state = Offline
		t.retryAt = time.Time{}
	} else {
		t.state = Backoff
		t.bench = min(max(t.bench*2, t.policy.Initial), t.policy.Max)
		t.retryAt = t.now().Add(t.bench)
	}
	st := t.statusLocked()
	t.mu.Unlock()

	t.notify(prev, st)
	return true
}

// Status returns a snapshot.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Tracker) statusLocked() Status {
	return Status{
		State:      t.state,
		Failures:   t.failures,
		RetryAt:    t.retryAt,
		LastReason: t.lastReason,
	}
}

func (t *Tracker) notify(prev Availability, st Status) {
	if prev != st.State && t.onChange != nil {
		t.onChange(prev, st.State, st)
	}
}
