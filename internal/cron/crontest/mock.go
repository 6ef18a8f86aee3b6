// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/cvchat/internal/cron"
	"github.com/flemzord/cvchat/internal/memory"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu    sync.Mutex
	calls int
}

var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and counts the call.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockSessionStore is a test double for cron.SessionPruner.
type MockSessionStore struct {
	PruneFunc  func(maxIdle time.Duration) int
	PruneCalls atomic.Int32
}

var _ cron.SessionPruner = (*MockSessionStore)(nil)

// Prune implements cron.SessionPruner.
func (m *MockSessionStore) Prune(maxIdle time.Duration) int {
	m.PruneCalls.Add(1)
	if m.PruneFunc != nil {
		return m.PruneFunc(maxIdle)
	}
	return 0
}

// MockHistoryPruner is a test double for memory.Pruner.
type MockHistoryPruner struct {
	Removed int
	Err     error

	mu      sync.Mutex
	cutoffs []time.Time
}

var _ memory.Pruner = (*MockHistoryPruner)(nil)

// PruneBefore implements memory.Pruner and records the cutoff.
func (m *MockHistoryPruner) PruneBefore(cutoff time.Time) (int, error) {
	m.mu.Lock()
	m.cutoffs = append(m.cutoffs, cutoff)
	m.mu.Unlock()
	return m.Removed, m.Err
}

// Cutoffs returns every cutoff passed to PruneBefore.
func (m *MockHistoryPruner) Cutoffs() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.cutoffs...)
}
