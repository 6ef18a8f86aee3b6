// Package reload applies configuration and knowledge base changes to a
// running server, triggered by SIGHUP or by polling the watched files.
package reload

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Paths are the files to poll, typically the config file and the
	// knowledge base.
	Paths []string

	// PollInterval is how often to check for file changes.
	// Defaults to 5 seconds if zero.
	PollInterval time.Duration
}

// Event reports that a watched file changed.
type Event struct {
	Path string
}

// fingerprint identifies one version of a file.
type fingerprint struct {
	modTime time.Time
	size    int64
}

// Watcher polls files for modifications. Events are coalesced: while one
// is pending, further changes are dropped.
type Watcher struct {
	paths    []string
	interval time.Duration
	events   chan Event
	stop     chan struct{}
	stopped  chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Watcher{
		paths:    append([]string(nil), cfg.Paths...),
		interval: interval,
		events:   make(chan Event, 1),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins polling. Only the first call starts the goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx)
	})
}

// Events returns the channel of change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher. Safe to call multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	last := make(map[string]fingerprint, len(w.paths))
	for _, p := range w.paths {
		last[p], _ = stat(p)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			for _, p := range w.paths {
				current, ok := stat(p)
				if !ok || current == last[p] {
					continue
				}
				last[p] = current
				select {
				case w.events <- Event{Path: p}:
				default:
				}
			}
		}
	}
}

func stat(path string) (fingerprint, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint{}, false
	}
	return fingerprint{modTime: info.ModTime(), size: info.Size()}, true
}
