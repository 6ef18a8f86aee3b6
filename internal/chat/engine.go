// Package chat ties the engine components into per-session question
// answering: intent classification, topic ranking, the optional oracle,
// the fallback ladder and the conversation history.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/memory"
	"github.com/flemzord/cvchat/internal/oracle"
	"github.com/flemzord/cvchat/internal/style"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/flemzord/cvchat/internal/chat"

// Sentinel errors for chat operations.
var (
	ErrNoIndex    = errors.New("chat: no knowledge index")
	ErrEmptyQuery = errors.New("chat: empty query")
)

// Observer receives every reply produced by a session. Implementations
// must be safe for concurrent use.
type Observer interface {
	ObserveReply(r Reply)
}

// state is the part of the engine swapped as a unit on knowledge reload.
type state struct {
	index  *knowledge.Index
	styles *style.Manager
}

// Engine holds the resources shared by every session.
type Engine struct {
	state atomic.Pointer[state]

	logger     *slog.Logger
	tracer     trace.Tracer
	maxResults int
	styleOpts  []style.Option

	mu        sync.RWMutex
	caller    *oracle.Caller
	history   memory.HistoryStore
	observers []Observer
}

// ServiceName is the service registry key of the shared engine.
const ServiceName = "chat.engine"

// Option configures an Engine.
type Option func(*Engine)

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer overrides the tracer. The default comes from the global
// OpenTelemetry provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithMaxResults sets how many topics are ranked per query.
func WithMaxResults(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxResults = n
		}
	}
}

// WithStyleOptions passes options to every style manager the engine builds.
func WithStyleOptions(opts ...style.Option) Option {
	return func(e *Engine) { e.styleOpts = append(e.styleOpts, opts...) }
}

// WithObserver registers a reply observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithOracle routes conversational queries through c first.
func WithOracle(c *oracle.Caller) Option {
	return func(e *Engine) { e.caller = c }
}

// WithHistoryStore mirrors every session's turns into store.
func WithHistoryStore(store memory.HistoryStore) Option {
	return func(e *Engine) { e.history = store }
}

// NewEngine creates an engine over idx.
func NewEngine(idx *knowledge.Index, opts ...Option) (*Engine, error) {
	if idx == nil {
		return nil, ErrNoIndex
	}
	e := &Engine{
		logger:     slog.New(slog.DiscardHandler),
		tracer:     otel.Tracer(tracerName),
		maxResults: knowledge.DefaultMaxResults,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.state.Store(e.buildState(idx))
	return e, nil
}

func (e *Engine) buildState(idx *knowledge.Index) *state {
	table := style.Defaults().WithOverrides(idx.Base().StyleOverrides())
	opts := append([]style.Option{style.WithLogger(e.logger)}, e.styleOpts...)
	return &state{index: idx, styles: style.NewManager(table, opts...)}
}

// Index returns the current knowledge index.
func (e *Engine) Index() *knowledge.Index { return e.state.Load().index }

// Styles returns the current style manager.
func (e *Engine) Styles() *style.Manager { return e.state.Load().styles }

// Base returns the current knowledge base.
func (e *Engine) Base() *knowledge.Base { return e.Index().Base() }

// SwapIndex replaces the knowledge index. Sessions created afterwards use
// the new copy; running sessions resolve topics against it immediately.
// A configured oracle is re-initialised with the new base.
func (e *Engine) SwapIndex(idx *knowledge.Index) {
	if idx == nil {
		return
	}
	e.state.Store(e.buildState(idx))
	e.logger.Info("knowledge index swapped", "topics", idx.Len())

	if c := e.Oracle(); c != nil {
		if err := c.Initialize(context.Background(), idx.Base()); err != nil {
			e.logger.Warn("oracle re-initialization failed", "error", err)
		}
	}
}

// SetOracle attaches or detaches the oracle caller.
func (e *Engine) SetOracle(c *oracle.Caller) {
	e.mu.Lock()
	e.caller = c
	e.mu.Unlock()
}

// Oracle returns the attached oracle caller, or nil.
func (e *Engine) Oracle() *oracle.Caller {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.caller
}

// SetHistoryStore attaches the store new sessions mirror their turns to.
func (e *Engine) SetHistoryStore(store memory.HistoryStore) {
	e.mu.Lock()
	e.history = store
	e.mu.Unlock()
}

// HistoryStore returns the attached history store, or nil.
func (e *Engine) HistoryStore() memory.HistoryStore {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history
}

func (e *Engine) lookupTopic(id string) (*knowledge.Topic, bool) {
	return e.Index().Topic(id)
}

// AddObserver registers o for every later reply.
func (e *Engine) AddObserver(o Observer) {
	if o == nil {
		return
	}
	e.mu.Lock()
	e.observers = append(e.observers, o)
	e.mu.Unlock()
}

func (e *Engine) observe(r Reply) {
	e.mu.RLock()
	observers := e.observers
	e.mu.RUnlock()
	for _, o := range observers {
		o.ObserveReply(r)
	}
}
