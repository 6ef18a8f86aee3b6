package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/cvchat/internal/core"
	"github.com/flemzord/cvchat/internal/memory"
	"github.com/flemzord/cvchat/internal/style"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()

	dir := t.TempDir()
	m := &Module{
		config: Config{
			Path:        filepath.Join(dir, "test.db"),
			BusyTimeout: defaultBusyTimeout,
		},
	}

	ctx := core.NewAppContext(slog.Default(), dir)

	if err := m.Provision(ctx); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	t.Cleanup(func() {
		_ = m.Stop(context.Background())
	})

	return m
}

func turn(user string) memory.Turn {
	return memory.Turn{
		Timestamp:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		UserMessage:     user,
		BotResponse:     "re: " + user,
		MatchedTopicIDs: []string{"exp_react", "skills_go"},
		Confidence:      0.85,
		Style:           style.Developer,
	}
}

func TestHistoryAppendAndGetAll(t *testing.T) {
	m := newTestModule(t)
	h := m.history

	turns := []memory.Turn{turn("hello"), turn("tell me about react"), turn("thanks")}
	turns[2].MatchedTopicIDs = nil

	for _, tr := range turns {
		if err := h.Append("s1", tr); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := h.GetAll("s1")
	if err != nil {
		t.Fatalf("get all: %v", err)
	}

	if len(got) != len(turns) {
		t.Fatalf("got %d turns, want %d", len(got), len(turns))
	}

	for i, tr := range got {
		want := turns[i]
		if tr.UserMessage != want.UserMessage || tr.BotResponse != want.BotResponse {
			t.Errorf("turn %d: got %+v, want %+v", i, tr, want)
		}
		if !slices.Equal(tr.MatchedTopicIDs, want.MatchedTopicIDs) {
			t.Errorf("turn %d topics = %v, want %v", i, tr.MatchedTopicIDs, want.MatchedTopicIDs)
		}
		if tr.Confidence != want.Confidence || tr.Style != want.Style {
			t.Errorf("turn %d confidence/style = %v/%q", i, tr.Confidence, tr.Style)
		}
		if !tr.Timestamp.Equal(want.Timestamp) {
			t.Errorf("turn %d timestamp = %v, want %v", i, tr.Timestamp, want.Timestamp)
		}
	}
}

func TestHistoryGetRecent(t *testing.T) {
	m := newTestModule(t)
	h := m.history

	for i := range 5 {
		if err := h.Append("s1", turn(string(rune('a'+i)))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := h.GetRecent("s1", 3)
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d turns, want 3", len(got))
	}

	// Should be in chronological order: c, d, e.
	if got[0].UserMessage != "c" || got[1].UserMessage != "d" || got[2].UserMessage != "e" {
		t.Errorf("got %v %v %v, want c d e", got[0].UserMessage, got[1].UserMessage, got[2].UserMessage)
	}

	none, err := h.GetRecent("s1", 0)
	if err != nil || none != nil {
		t.Errorf("GetRecent(0) = %v, %v; want nil, nil", none, err)
	}
}

func TestHistoryGetRecentMoreThanExists(t *testing.T) {
	m := newTestModule(t)
	h := m.history

	if err := h.Append("s1", turn("only")); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := h.GetRecent("s1", 100)
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("got %d turns, want 1", len(got))
	}
}

func TestHistoryEmptySession(t *testing.T) {
	m := newTestModule(t)
	h := m.history

	got, err := h.GetAll("nonexistent")
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}

	n, err := h.Len("nonexistent")
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 0 {
		t.Errorf("len = %d, want 0", n)
	}
}

func TestHistoryPruneBefore(t *testing.T) {
	m := newTestModule(t)
	h := m.history

	old := turn("old")
	old.Timestamp = time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	if err := h.Append("s1", old); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := h.Append("s1", turn("new")); err != nil {
		t.Fatalf("append: %v", err)
	}

	n, err := h.PruneBefore(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}

	got, _ := h.GetAll("s1")
	if len(got) != 1 || got[0].UserMessage != "new" {
		t.Errorf("after prune = %+v", got)
	}
}

func TestConcurrentAppend(t *testing.T) {
	m := newTestModule(t)
	h := m.history

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.Append("s1", turn(fmt.Sprintf("message %d", i))); err != nil {
				t.Errorf("concurrent append: %v", err)
			}
		}()
	}
	wg.Wait()

	n, err := h.Len("s1")
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 10 {
		t.Errorf("len = %d, want 10", n)
	}
}

func TestProvisionRegistersService(t *testing.T) {
	dir := t.TempDir()
	ctx := core.NewAppContext(nil, dir)

	m := &Module{}
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("provision: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	if m.config.Path != filepath.Join(dir, defaultDBFile) {
		t.Errorf("default path = %q", m.config.Path)
	}
	store, ok := core.Service[memory.HistoryStore](ctx, ServiceName)
	if !ok || store == nil {
		t.Fatal("expected memory.history service to be registered")
	}
}

// --- Infrastructure tests ---

func TestWALMode(t *testing.T) {
	m := newTestModule(t)

	var mode string
	if err := m.db.QueryRowContext(context.TODO(), "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("pragma journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want %q", mode, "wal")
	}
}

func TestMigrationIdempotent(t *testing.T) {
	m := newTestModule(t)

	// Run migration again; it should be a no-op.
	if err := migrate(context.Background(), m.db); err != nil {
		t.Fatalf("second migration: %v", err)
	}

	if err := m.history.Append("s1", turn("test")); err != nil {
		t.Fatalf("append after re-migration: %v", err)
	}
}

func TestMultipleSessions(t *testing.T) {
	m := newTestModule(t)
	h := m.history

	if err := h.Append("s1", turn("s1-msg")); err != nil {
		t.Fatalf("append s1: %v", err)
	}
	if err := h.Append("s2", turn("s2-msg")); err != nil {
		t.Fatalf("append s2: %v", err)
	}

	n1, _ := h.Len("s1")
	n2, _ := h.Len("s2")
	if n1 != 1 || n2 != 1 {
		t.Errorf("s1=%d s2=%d, want 1 and 1", n1, n2)
	}

	// Purge s1, s2 should be unaffected.
	if err := h.Purge("s1"); err != nil {
		t.Fatalf("purge: %v", err)
	}

	n1, _ = h.Len("s1")
	n2, _ = h.Len("s2")
	if n1 != 0 || n2 != 1 {
		t.Errorf("after purge: s1=%d s2=%d, want 0 and 1", n1, n2)
	}
}

func TestBusyTimeoutPragma(t *testing.T) {
	m := newTestModule(t)

	var ms int
	if err := m.db.QueryRowContext(context.TODO(), "PRAGMA busy_timeout").Scan(&ms); err != nil {
		t.Fatalf("pragma busy_timeout: %v", err)
	}
	if ms != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", ms)
	}
}

func TestConfig_Resolve(t *testing.T) {
	t.Parallel()

	off := false
	tests := []struct {
		name     string
		cfg      Config
		dataDir  string
		wantPath string
		wantWAL  bool
		wantErr  bool
	}{
		{name: "defaults under data dir", dataDir: "/var/lib/cvchat", wantPath: "/var/lib/cvchat/memory.db", wantWAL: true},
		{name: "relative path under data dir", cfg: Config{Path: "history/cv.db"}, dataDir: "/var/lib/cvchat", wantPath: "/var/lib/cvchat/history/cv.db", wantWAL: true},
		{name: "absolute path kept", cfg: Config{Path: "/srv/cv.db", WAL: &off}, dataDir: "/var/lib/cvchat", wantPath: "/srv/cv.db"},
		{name: "relative path without data dir", cfg: Config{Path: "cv.db"}, wantPath: "cv.db", wantWAL: true},
		{name: "nowhere to write", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			err := cfg.resolve(tt.dataDir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolve err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg.Path != filepath.FromSlash(tt.wantPath) || cfg.walEnabled() != tt.wantWAL {
				t.Errorf("resolved = path %q wal %v, want %q %v", cfg.Path, cfg.walEnabled(), tt.wantPath, tt.wantWAL)
			}
			if cfg.BusyTimeout != defaultBusyTimeout {
				t.Errorf("BusyTimeout = %s", cfg.BusyTimeout)
			}
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	t.Parallel()

	off := false
	cfg := Config{Path: "/data/memory.db", BusyTimeout: 2 * time.Second}
	if got, want := cfg.dsn(), "/data/memory.db?_pragma=busy_timeout%282000%29&_pragma=journal_mode%28WAL%29"; got != want {
		t.Errorf("dsn = %q, want %q", got, want)
	}
	cfg.WAL = &off
	if got := cfg.dsn(); strings.Contains(got, "journal_mode") {
		t.Errorf("dsn with wal off = %q", got)
	}
	if err := (&Config{BusyTimeout: -time.Second}).validate(); err == nil {
		t.Error("negative busy_timeout should be rejected")
	}
}

func TestProvisionWithoutDataDir(t *testing.T) {
	m := &Module{}
	if err := m.Provision(core.NewAppContext(slog.New(slog.DiscardHandler), "")); err == nil {
		_ = m.Stop(context.Background())
		t.Fatal("provision without data_dir or path should fail")
	}
}
