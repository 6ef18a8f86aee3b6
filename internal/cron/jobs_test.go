package cron_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flemzord/cvchat/internal/cron"
	"github.com/flemzord/cvchat/internal/cron/crontest"
)

func TestJobs_NameAndSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		job      cron.Job
		name     string
		schedule string
	}{
		{&cron.SessionCleanupJob{}, "session_cleanup", cron.DefaultCleanupSchedule},
		{&cron.SessionCleanupJob{ScheduleExpr: "* * * * *"}, "session_cleanup", "* * * * *"},
		{&cron.HistoryRetentionJob{}, "history_retention", cron.DefaultRetentionSchedule},
	}
	for _, tt := range tests {
		if tt.job.Name() != tt.name {
			t.Errorf("name = %q, want %q", tt.job.Name(), tt.name)
		}
		if tt.job.Schedule() != tt.schedule {
			t.Errorf("%s schedule = %q, want %q", tt.name, tt.job.Schedule(), tt.schedule)
		}
		if err := cron.ValidateSchedule(tt.job.Schedule()); err != nil {
			t.Errorf("%s schedule invalid: %v", tt.name, err)
		}
	}
}

func TestSessionCleanupJob_Run(t *testing.T) {
	t.Parallel()

	store := &crontest.MockSessionStore{
		PruneFunc: func(maxIdle time.Duration) int {
			if maxIdle != 30*time.Minute {
				t.Errorf("maxIdle = %v, want 30m", maxIdle)
			}
			return 3
		},
	}
	j := &cron.SessionCleanupJob{Store: store, MaxIdle: 30 * time.Minute}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.PruneCalls.Load() != 1 {
		t.Errorf("prune calls = %d, want 1", store.PruneCalls.Load())
	}
}

func TestSessionCleanupJob_CancelledContext(t *testing.T) {
	t.Parallel()

	store := &crontest.MockSessionStore{}
	j := &cron.SessionCleanupJob{Store: store, MaxIdle: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := j.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if store.PruneCalls.Load() != 0 {
		t.Error("store pruned after cancellation")
	}
}

func TestHistoryRetentionJob_Run(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 3, 17, 0, 0, time.UTC)
	p := &crontest.MockHistoryPruner{Removed: 4}
	j := &cron.HistoryRetentionJob{Store: p, Retention: 30 * 24 * time.Hour, Now: func() time.Time { return now }}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	cutoffs := p.Cutoffs()
	if len(cutoffs) != 1 || !cutoffs[0].Equal(now.Add(-30*24*time.Hour)) {
		t.Errorf("cutoffs = %v", cutoffs)
	}
}

func TestHistoryRetentionJob_DisabledAndErrors(t *testing.T) {
	t.Parallel()

	p := &crontest.MockHistoryPruner{}
	if err := (&cron.HistoryRetentionJob{Store: p}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(p.Cutoffs()) != 0 {
		t.Error("zero retention pruned history")
	}

	boom := errors.New("disk full")
	p.Err = boom
	err := (&cron.HistoryRetentionJob{Store: p, Retention: time.Hour}).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}
