package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/cvchat/internal/memory"
)

// Default schedules.
const (
	DefaultCleanupSchedule   = "*/5 * * * *"
	DefaultRetentionSchedule = "17 3 * * *"
)

// SessionPruner is the part of the session store the cleanup job needs.
type SessionPruner interface {
	Prune(maxIdle time.Duration) int
}

// SessionCleanupJob removes sessions idle longer than MaxIdle.
type SessionCleanupJob struct {
	Store        SessionPruner
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultCleanupSchedule
}

var _ Job = (*SessionCleanupJob)(nil)

// Name implements Job.
func (j *SessionCleanupJob) Name() string { return "session_cleanup" }

// Schedule implements Job.
func (j *SessionCleanupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultCleanupSchedule
}

// Run prunes idle sessions.
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cron: session cleanup cancelled: %w", err)
	}
	if pruned := j.Store.Prune(j.MaxIdle); pruned > 0 {
		logger(j.Logger).Info("cron: pruned idle sessions", "count", pruned)
	}
	return nil
}

// HistoryRetentionJob deletes persisted turns older than Retention.
type HistoryRetentionJob struct {
	Store        memory.Pruner
	Retention    time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultRetentionSchedule

	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

var _ Job = (*HistoryRetentionJob)(nil)

// Name implements Job.
func (j *HistoryRetentionJob) Name() string { return "history_retention" }

// Schedule implements Job.
func (j *HistoryRetentionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultRetentionSchedule
}

// Run prunes expired turns. A non-positive Retention keeps everything.
func (j *HistoryRetentionJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cron: history retention cancelled: %w", err)
	}
	if j.Retention <= 0 {
		return nil
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}

	removed, err := j.Store.PruneBefore(now().Add(-j.Retention))
	if err != nil {
		return fmt.Errorf("cron: history retention: %w", err)
	}
	if removed > 0 {
		logger(j.Logger).Info("cron: pruned expired turns", "count", removed, "retention", j.Retention)
	}
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
