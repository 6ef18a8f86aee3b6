package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/flemzord/cvchat/internal/conversation"
	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/oracle"
	"github.com/flemzord/cvchat/internal/style"
)

// LocalOracle answers oracle requests with the built-in engine. It lets a
// worker process serve a gateway without any external model.
type LocalOracle struct {
	logger *slog.Logger

	mu     sync.RWMutex
	engine *Engine
	cfg    oracle.Config
}

var _ oracle.Oracle = (*LocalOracle)(nil)

// NewLocalOracle creates an uninitialised local oracle.
func NewLocalOracle(logger *slog.Logger) *LocalOracle {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LocalOracle{logger: logger}
}

// Initialize indexes base.
func (o *LocalOracle) Initialize(_ context.Context, base *knowledge.Base, cfg oracle.Config) error {
	idx, err := knowledge.NewIndex(base, knowledge.WithLogger(o.logger))
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = cfg
	if o.engine == nil {
		o.engine, err = NewEngine(idx, WithLogger(o.logger))
		return err
	}
	o.engine.SwapIndex(idx)
	return nil
}

// ProcessQuery composes an answer from the ranked topics, replaying the
// request context so back-references work across processes.
func (o *LocalOracle) ProcessQuery(ctx context.Context, req oracle.Request) (oracle.Answer, error) {
	o.mu.RLock()
	e := o.engine
	o.mu.RUnlock()
	if e == nil {
		return oracle.Answer{}, oracle.ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return oracle.Answer{}, err
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return oracle.Answer{}, ErrEmptyQuery
	}
	s := req.Style
	if s == "" {
		s = style.Fallback
	}

	conv := conversation.NewManager(e.Styles(),
		conversation.WithID(req.SessionID),
		conversation.WithTopicLookup(e.lookupTopic),
	)
	conv.SetStyle(s)
	for _, t := range req.Context {
		conv.AddMessage(t.UserMessage, t.BotResponse, t.MatchedTopicIDs, t.Confidence)
	}

	matches := e.Index().FindRelevantTopics(query, e.maxResults)
	text, err := conv.GenerateResponse(query, matches, s)
	if err != nil {
		return oracle.Answer{}, err
	}
	return oracle.Answer{
		Text:            text,
		Confidence:      knowledge.CalculateConfidence(matches),
		MatchedSections: knowledge.TopicIDs(matches),
	}, nil
}

// HealthCheck reports whether the oracle was initialised.
func (o *LocalOracle) HealthCheck(context.Context) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.engine == nil {
		return oracle.ErrNotInitialized
	}
	return nil
}
