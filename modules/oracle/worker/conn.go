package worker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/flemzord/cvchat/internal/oracle"
)

// State represents the current connection state of a worker.
type State string

// Worker connection states.
const (
	StateConnected    State = "connected"
	StateReady        State = "ready"
	StateDisconnected State = "disconnected"
)

// Worker is one connected answer worker.
type Worker struct {
	mu          sync.Mutex
	ID          string
	Name        string
	Version     string
	State       State
	ConnectedAt time.Time
	LastSeenAt  time.Time
	conn        *websocket.Conn
	pending     map[string]chan Envelope
	// health benches the worker after failed queries. Nil means always
	// available.
	health *oracle.Tracker
}

func newWorker(conn *websocket.Conn, backoff oracle.BackoffPolicy) *Worker {
	now := time.Now()
	return &Worker{
		State:       StateConnected,
		ConnectedAt: now,
		LastSeenAt:  now,
		conn:        conn,
		pending:     make(map[string]chan Envelope),
		health:      oracle.NewTracker(backoff),
	}
}

// Info is a snapshot of a worker for status reporting.
type Info struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Version     string        `json:"version,omitempty"`
	State       State         `json:"state"`
	Health      oracle.Status `json:"health"`
	ConnectedAt time.Time     `json:"connected_at"`
	LastSeenAt  time.Time     `json:"last_seen_at"`
}

// Info returns a snapshot of the worker.
func (w *Worker) Info() Info {
	w.mu.Lock()
	info := Info{
		ID:          w.ID,
		Name:        w.Name,
		Version:     w.Version,
		State:       w.State,
		ConnectedAt: w.ConnectedAt,
		LastSeenAt:  w.LastSeenAt,
	}
	w.mu.Unlock()

	info.Health = oracle.Status{State: oracle.Ready}
	if w.health != nil {
		info.Health = w.health.Status()
	}
	return info
}

// available reports whether the worker is ready and not benched.
func (w *Worker) available() bool {
	return w.state() == StateReady && (w.health == nil || w.health.Ready())
}

func (w *Worker) state() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.State
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.State = s
	w.mu.Unlock()
}

func (w *Worker) touch() {
	w.mu.Lock()
	w.LastSeenAt = time.Now()
	w.mu.Unlock()
}

// request sends an envelope and waits for the reply carrying the same id.
// Replies of type MsgError are returned as *RemoteError.
func (w *Worker) request(ctx context.Context, typ MessageType, payload any) (Envelope, error) {
	id, err := generateID(8)
	if err != nil {
		return Envelope{}, err
	}
	data, err := encode(typ, id, payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("worker: encode %s: %w", typ, err)
	}

	ch := make(chan Envelope, 1)
	w.mu.Lock()
	if w.State == StateDisconnected {
		w.mu.Unlock()
		return Envelope{}, ErrWorkerClosed
	}
	w.pending[id] = ch
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
	}()

	if err := w.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return Envelope{}, fmt.Errorf("worker: write to %s: %w", w.ID, err)
	}

	select {
	case env, ok := <-ch:
		if !ok {
			return Envelope{}, ErrWorkerClosed
		}
		if env.Type == MsgError {
			return env, remoteError(env)
		}
		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// deliver routes a reply to the pending request with the same id. Late or
// duplicate replies are dropped.
func (w *Worker) deliver(env Envelope) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.pending[env.ID]
	if !ok {
		return false
	}
	select {
	case ch <- env:
	default:
	}
	return true
}

// close marks the worker disconnected and fails every pending request.
func (w *Worker) close(reason string) {
	w.mu.Lock()
	if w.State == StateDisconnected {
		w.mu.Unlock()
		return
	}
	w.State = StateDisconnected
	for id, ch := range w.pending {
		close(ch)
		delete(w.pending, id)
	}
	conn := w.conn
	w.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusGoingAway, reason)
	}
}

// Pool is a concurrent-safe in-memory set of connected workers.
type Pool struct {
	mu      sync.RWMutex
	workers map[string]*Worker
	order   []string
	next    atomic.Uint64
}

// NewPool creates an empty Pool.
func NewPool() *Pool {
	return &Pool{workers: make(map[string]*Worker)}
}

// AddIfUnder registers w unless the pool already holds max workers.
func (p *Pool) AddIfUnder(w *Worker, max int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if max > 0 && len(p.workers) >= max {
		return false
	}
	if _, exists := p.workers[w.ID]; !exists {
		p.order = append(p.order, w.ID)
	}
	p.workers[w.ID] = w
	return true
}

// Get returns the worker with the given ID.
func (p *Pool) Get(id string) (*Worker, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	w, ok := p.workers[id]
	return w, ok
}

// Remove deletes a worker from the pool.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.workers[id]; !ok {
		return
	}
	delete(p.workers, id)
	for i, wid := range p.order {
		if wid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of workers in the pool.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

// Pick returns the next available worker in round-robin order. Workers
// benched after failed queries are skipped.
func (p *Pool) Pick() (*Worker, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := len(p.order)
	if n == 0 {
		return nil, false
	}
	start := int(p.next.Add(1) % uint64(n))
	for i := range n {
		w := p.workers[p.order[(start+i)%n]]
		if w.available() {
			return w, true
		}
	}
	return nil, false
}

// Range iterates over all workers in connection order, calling fn for each.
// If fn returns false, iteration stops.
func (p *Pool) Range(fn func(w *Worker) bool) {
	p.mu.RLock()
	ws := make([]*Worker, 0, len(p.order))
	for _, id := range p.order {
		ws = append(ws, p.workers[id])
	}
	p.mu.RUnlock()

	for _, w := range ws {
		if !fn(w) {
			return
		}
	}
}

// Snapshot returns the info of every worker in connection order.
func (p *Pool) Snapshot() []Info {
	var out []Info
	p.Range(func(w *Worker) bool {
		out = append(out, w.Info())
		return true
	})
	return out
}

func generateID(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
