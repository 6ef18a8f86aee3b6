// Package session keeps the live chat sessions of the gateway in memory
// and evicts the idle ones.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/cvchat/internal/chat"
	"github.com/flemzord/cvchat/internal/style"
)

// ServiceName is the service registry key of the shared store.
const ServiceName = "session.store"

// Sentinel errors returned by the Store.
var (
	ErrNotFound    = errors.New("session: not found")
	ErrMaxSessions = errors.New("session: maximum number of sessions reached")
)

// Factory creates chat sessions. *chat.Engine satisfies it.
type Factory interface {
	NewSession(id string, s style.Style) (*chat.Session, error)
}

type entry struct {
	session    *chat.Session
	lastActive time.Time
}

// Store is a concurrency-safe in-memory session store. The clock is
// injectable for deterministic pruning in tests.
type Store struct {
	factory Factory
	logger  *slog.Logger

	mu          sync.RWMutex
	sessions    map[string]*entry
	maxSessions int
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMaxSessions limits the number of concurrent sessions. Zero means
// unlimited.
func WithMaxSessions(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.maxSessions = n
		}
	}
}

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a ready-to-use store backed by factory.
func NewStore(factory Factory, opts ...Option) *Store {
	s := &Store{
		factory:  factory,
		logger:   slog.New(slog.DiscardHandler),
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts a new session with a random id.
func (s *Store) Create(st style.Style) (*chat.Session, error) {
	sess, _, err := s.GetOrCreate("", st)
	return sess, err
}

// GetOrCreate returns the session for id, creating it when absent. An
// empty id always creates a session. The bool is true when a session was
// created; st only applies then.
func (s *Store) GetOrCreate(id string, st style.Style) (*chat.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if e, ok := s.sessions[id]; ok {
			e.lastActive = s.now()
			return e.session, false, nil
		}
	}
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		return nil, false, ErrMaxSessions
	}

	sess, err := s.factory.NewSession(id, st)
	if err != nil {
		return nil, false, err
	}
	s.sessions[sess.ID()] = &entry{session: sess, lastActive: s.now()}
	s.logger.Debug("session created", "session", sess.ID(), "style", st)
	return sess, true, nil
}

// Get returns the session for id and marks it active.
func (s *Store) Get(id string) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastActive = s.now()
	return e.session, nil
}

// Delete removes the session for id. It reports whether one existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Prune removes sessions idle for longer than maxIdle and returns how
// many were removed. Persisted history is left untouched.
func (s *Store) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pruned := 0
	for id, e := range s.sessions {
		if now.Sub(e.lastActive) > maxIdle {
			delete(s.sessions, id)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Info describes a live session for the admin listing.
type Info struct {
	ID         string      `json:"id"`
	Style      style.Style `json:"style,omitempty"`
	Turns      int         `json:"turns"`
	CreatedAt  time.Time   `json:"created_at"`
	LastActive time.Time   `json:"last_active"`
}

// Range calls fn for each session until it returns false. fn runs on a
// snapshot, outside the store lock.
func (s *Store) Range(fn func(*chat.Session) bool) {
	s.mu.RLock()
	snapshot := make([]*chat.Session, 0, len(s.sessions))
	for _, e := range s.sessions {
		snapshot = append(snapshot, e.session)
	}
	s.mu.RUnlock()

	for _, sess := range snapshot {
		if !fn(sess) {
			return
		}
	}
}

// List returns a description of every live session.
func (s *Store) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Info, 0, len(s.sessions))
	for id, e := range s.sessions {
		st, _ := e.session.Style()
		out = append(out, Info{
			ID:         id,
			Style:      st,
			Turns:      e.session.Stats().Turns,
			CreatedAt:  e.session.CreatedAt(),
			LastActive: e.lastActive,
		})
	}
	return out
}
