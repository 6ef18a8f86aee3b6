package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestWatcher_DetectsChangeOnAnyPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cvchat.yaml")
	kbPath := filepath.Join(dir, "kb.json")
	writeFile(t, cfgPath, "version: \"1\"")
	writeFile(t, kbPath, "{}")

	w := NewWatcher(WatcherConfig{
		Paths:        []string{cfgPath, kbPath},
		PollInterval: 20 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	// Let the watcher record the initial fingerprints.
	time.Sleep(60 * time.Millisecond)

	// A size change is detected even when the mtime granularity is coarse.
	writeFile(t, kbPath, `{"knowledge_base": {}}`)

	select {
	case evt := <-w.Events():
		if evt.Path != kbPath {
			t.Errorf("event path = %q, want %q", evt.Path, kbPath)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for file change event")
	}
}

func TestWatcher_StopReturns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		start  bool
		cancel bool
	}{
		{"running", true, false},
		{"after context cancel", true, true},
		{"before start", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := NewWatcher(WatcherConfig{
				Paths:        []string{filepath.Join(t.TempDir(), "cvchat.yaml")},
				PollInterval: 20 * time.Millisecond,
			})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.start {
				w.Start(ctx)
			}
			if tt.cancel {
				cancel()
			}

			done := make(chan struct{})
			go func() {
				w.Stop()
				w.Stop()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("Stop did not return in time")
			}
		})
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()

	w := NewWatcher(WatcherConfig{
		Paths:        []string{"/nonexistent/file.yaml"},
		PollInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	select {
	case evt := <-w.Events():
		t.Errorf("unexpected event: %+v", evt)
	case <-ctx.Done():
	}
}

func TestNewWatcher_DefaultInterval(t *testing.T) {
	t.Parallel()

	if w := NewWatcher(WatcherConfig{}); w.interval != defaultPollInterval {
		t.Errorf("interval = %v, want %v", w.interval, defaultPollInterval)
	}
}
