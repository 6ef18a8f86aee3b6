package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/cvchat/internal/knowledge"
	"golang.org/x/sync/singleflight"
)

// Caller guards an Oracle with a per-call timeout, single-flight
// deduplication per query id and health tracking. A nil *Caller is valid
// and always reports ErrUnavailable.
type Caller struct {
	oracle  Oracle
	cfg     Config
	backoff BackoffPolicy
	health  *Tracker
	group   singleflight.Group
	logger  *slog.Logger

	initialized atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithConfig sets the timeout and minimum accepted confidence.
func WithConfig(cfg Config) CallerOption {
	return func(c *Caller) { c.cfg = cfg }
}

// WithBackoff overrides the backoff policy applied after failed calls.
func WithBackoff(p BackoffPolicy) CallerOption {
	return func(c *Caller) { c.backoff = p }
}

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) CallerOption {
	return func(c *Caller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCaller wraps o.
func NewCaller(o Oracle, opts ...CallerOption) (*Caller, error) {
	if o == nil {
		return nil, errors.New("oracle: nil oracle")
	}
	c := &Caller{
		oracle: o,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	c.cfg.defaults()

	logger := c.logger
	c.health = NewTracker(c.backoff, OnChange(func(from, to Availability, st Status) {
		switch to {
		case Backoff:
			logger.Warn("oracle backing off",
				"retry_at", st.RetryAt,
				"failures", st.Failures,
				"reason", st.LastReason,
			)
		case Offline:
			logger.Error("oracle offline", "failures", st.Failures, "reason", st.LastReason)
		case Ready:
			logger.Info("oracle back", "previous_state", string(from))
		}
	}))
	return c, nil
}

// Config returns the effective configuration.
func (c *Caller) Config() Config { return c.cfg }

// Initialize hands base to the oracle. Until it succeeds Ask reports
// ErrNotInitialized.
func (c *Caller) Initialize(ctx context.Context, base *knowledge.Base) error {
	if c == nil {
		return ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.oracle.Initialize(ctx, base, c.cfg); err != nil {
		c.initialized.Store(false)
		c.health.Failed(err)
		return fmt.Errorf("oracle: initialize: %w", err)
	}
	c.initialized.Store(true)
	c.health.Succeeded()
	c.logger.Info("oracle initialized", "topics", len(base.Topics))
	return nil
}

// Available reports whether Ask would currently reach the oracle.
func (c *Caller) Available() bool {
	return c != nil && c.initialized.Load() && c.health.Ready()
}

// State returns the availability label: ready, backoff or offline.
func (c *Caller) State() string {
	return string(c.Health().State)
}

// Health returns a snapshot of the oracle availability. A nil Caller or one
// that never initialised is offline.
func (c *Caller) Health() Status {
	if c == nil {
		return Status{State: Offline}
	}
	st := c.health.Status()
	if !c.initialized.Load() && st.State == Ready {
		st.State = Offline
		st.LastReason = Reason(ErrNotInitialized)
	}
	return st
}

// Ask forwards req to the oracle. Concurrent calls sharing req.ID wait for
// the same in-flight request. The returned error is non-nil whenever the
// caller should answer from the local engine; with ErrLowConfidence the
// oracle's answer is returned alongside for inspection.
func (c *Caller) Ask(ctx context.Context, req Request) (Answer, error) {
	if c == nil {
		return Answer{}, ErrUnavailable
	}
	if !c.initialized.Load() {
		return Answer{}, ErrNotInitialized
	}
	if !c.health.Ready() {
		return Answer{}, ErrUnavailable
	}

	key := req.ID
	if key == "" {
		key = req.SessionID + "\x00" + req.Query
	}

	ch := c.group.DoChan(key, func() (any, error) {
		return c.call(ctx, req)
	})

	select {
	case res := <-ch:
		ans, _ := res.Val.(Answer)
		if res.Err != nil {
			return ans, res.Err
		}
		if ans.Confidence < c.cfg.MinConfidence {
			return ans, fmt.Errorf("%w: %.2f below %.2f", ErrLowConfidence, ans.Confidence, c.cfg.MinConfidence)
		}
		return ans, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Answer{}, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		return Answer{}, ctx.Err()
	}
}

// call runs one oracle request. It detaches from the first caller's
// cancellation since other callers may be waiting on the same flight.
func (c *Caller) call(parent context.Context, req Request) (Answer, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.cfg.Timeout)
	defer cancel()

	ans, err := c.oracle.ProcessQuery(ctx, req)
	switch {
	case err == nil && ctx.Err() == nil:
		c.health.Succeeded()
		return ans, nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w after %s", ErrTimeout, c.cfg.Timeout)
		c.health.Failed(err)
		c.logger.Warn("oracle timed out", "query_id", req.ID, "timeout", c.cfg.Timeout)
		return Answer{}, err
	default:
		c.health.Failed(err)
		c.logger.Warn("oracle query failed", "query_id", req.ID, "error", err)
		return Answer{}, fmt.Errorf("oracle: process query: %w", err)
	}
}

// Start launches the background health checks. It is a no-op when the
// oracle does not implement HealthChecker or the checks already run.
func (c *Caller) Start(ctx context.Context) {
	checker, ok := c.oracle.(HealthChecker)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.checkLoop(ctx, checker, c.done)
}

// Stop cancels the health checks and waits for it to exit.
func (c *Caller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Caller) checkLoop(ctx context.Context, checker HealthChecker, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.health.Policy().CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.health.NeedsCheck() {
				continue
			}
			if err := checker.HealthCheck(ctx); err == nil {
				c.health.Succeeded()
			}
		}
	}
}
