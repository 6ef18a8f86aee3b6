// Package conversation orchestrates one chat session: it owns the bounded
// turn history, derives topic-filtered context windows, composes styled
// answers from ranked topic matches and reports session statistics.
package conversation

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/memory"
	"github.com/flemzord/cvchat/internal/style"
	"github.com/google/uuid"
)

// History and context bounds.
const (
	MaxHistory          = 25
	DefaultContextLimit = 5
	referenceWindow     = 3
)

// ErrStyleNotSet is returned by GenerateResponse when no style was chosen
// for the session and none was passed explicitly.
var ErrStyleNotSet = errors.New("conversation: style not set")

// TopicLookup resolves topic ids against the live knowledge base.
type TopicLookup func(id string) (*knowledge.Topic, bool)

// Manager holds the state of one session. It is safe for concurrent use,
// although a session normally has a single writer.
type Manager struct {
	id     string
	styles *style.Manager
	store  memory.HistoryStore
	lookup TopicLookup
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	style      style.Style
	history    []memory.Turn
	seenTopics []string
	seen       map[string]struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithID sets the session id. The default is a random UUID.
func WithID(id string) Option {
	return func(m *Manager) {
		if id != "" {
			m.id = id
		}
	}
}

// WithStore mirrors every recorded turn into store.
func WithStore(store memory.HistoryStore) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithTopicLookup lets back-references inspect earlier topics that are not
// part of the current matches.
func WithTopicLookup(fn TopicLookup) Option {
	return func(m *Manager) {
		m.lookup = fn
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source used for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a session manager. A nil styles manager uses the
// built-in templates.
func NewManager(styles *style.Manager, opts ...Option) *Manager {
	if styles == nil {
		styles = style.NewManager(nil)
	}
	m := &Manager{
		id:     uuid.NewString(),
		styles: styles,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
		seen:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("session", m.id)
	return m
}

// ID returns the session id.
func (m *Manager) ID() string { return m.id }

// SetStyle selects the session style. Unknown styles fall back to developer;
// the effective style is returned.
func (m *Manager) SetStyle(s style.Style) style.Style {
	if !s.Valid() {
		m.logger.Warn("unknown style, using fallback", "style", s, "fallback", style.Fallback)
		s = style.Fallback
	}
	m.mu.Lock()
	m.style = s
	m.mu.Unlock()
	return s
}

// Style returns the session style and whether one has been set.
func (m *Manager) Style() (style.Style, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.style, m.style != ""
}

// AddMessage records a completed exchange, evicting the oldest turn once the
// history exceeds MaxHistory.
func (m *Manager) AddMessage(user, bot string, topicIDs []string, confidence float64) memory.Turn {
	m.mu.Lock()
	turn := memory.Turn{
		Timestamp:       m.now(),
		UserMessage:     user,
		BotResponse:     bot,
		MatchedTopicIDs: append([]string(nil), topicIDs...),
		Confidence:      confidence,
		Style:           m.style,
	}
	m.appendLocked(turn)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Append(m.id, turn); err != nil {
			m.logger.Error("persisting turn", "error", err)
		}
	}
	return turn.Clone()
}

func (m *Manager) appendLocked(turn memory.Turn) {
	m.history = append(m.history, turn)
	if over := len(m.history) - MaxHistory; over > 0 {
		clear(m.history[:over])
		m.history = m.history[over:]
	}
	for _, id := range turn.MatchedTopicIDs {
		if _, ok := m.seen[id]; !ok {
			m.seen[id] = struct{}{}
			m.seenTopics = append(m.seenTopics, id)
		}
	}
}

// History returns a copy of the retained turns, oldest first.
func (m *Manager) History() []memory.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneTurns(m.history)
}

// Len returns the number of retained turns.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Restore reloads the most recent turns from the attached store. It is a
// no-op without a store.
func (m *Manager) Restore() error {
	if m.store == nil {
		return nil
	}
	turns, err := m.store.GetRecent(m.id, MaxHistory)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
	for _, t := range turns {
		m.appendLocked(t)
	}
	if n := len(turns); n > 0 && m.style == "" {
		m.style = turns[n-1].Style
	}
	return nil
}

// Reset clears the history and the attached store. The style is kept.
func (m *Manager) Reset() error {
	m.mu.Lock()
	m.history = nil
	m.seenTopics = nil
	clear(m.seen)
	m.mu.Unlock()

	if m.store != nil {
		return m.store.Purge(m.id)
	}
	return nil
}

func cloneTurns(in []memory.Turn) []memory.Turn {
	out := make([]memory.Turn, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}
