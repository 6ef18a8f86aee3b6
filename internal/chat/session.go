package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/flemzord/cvchat/internal/conversation"
	"github.com/flemzord/cvchat/internal/fallback"
	"github.com/flemzord/cvchat/internal/intent"
	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/memory"
	"github.com/flemzord/cvchat/internal/oracle"
	"github.com/flemzord/cvchat/internal/style"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Source names what produced a reply.
type Source string

// Reply sources.
const (
	SourceEngine   Source = "engine"
	SourceOracle   Source = "oracle"
	SourceFallback Source = "fallback"
)

// FallbackInfo describes a fallback reply.
type FallbackInfo struct {
	Reason             fallback.Reason `json:"reason"`
	Action             fallback.Action `json:"action"`
	SuggestedTopics    []string        `json:"suggested_topics,omitempty"`
	ShowFallbackButton bool            `json:"show_fallback_button"`
}

// Reply is the answer to one question.
type Reply struct {
	QueryID    string        `json:"query_id"`
	SessionID  string        `json:"session_id"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	TopicIDs   []string      `json:"topic_ids"`
	Intent     intent.Label  `json:"intent"`
	Style      style.Style   `json:"style"`
	Source     Source        `json:"source"`
	Fallback   *FallbackInfo `json:"fallback,omitempty"`
	// OracleError explains why the oracle was bypassed, if it was tried.
	OracleError string `json:"oracle_error,omitempty"`
}

// Session is one visitor's conversation. Ask calls are serialised.
type Session struct {
	engine    *Engine
	conv      *conversation.Manager
	fallback  *fallback.Handler
	createdAt time.Time

	askMu sync.Mutex

	mu         sync.Mutex
	lastActive time.Time
}

// NewSession creates a session. An empty id gets a random UUID; an empty
// style leaves the choice to a later SetStyle. With a history store the
// session's earlier turns are restored.
func (e *Engine) NewSession(id string, s style.Style) (*Session, error) {
	styles := e.Styles()
	opts := []conversation.Option{
		conversation.WithID(id),
		conversation.WithTopicLookup(e.lookupTopic),
		conversation.WithLogger(e.logger),
	}
	store := e.HistoryStore()
	if store != nil {
		opts = append(opts, conversation.WithStore(store))
	}

	conv := conversation.NewManager(styles, opts...)
	if s != "" {
		conv.SetStyle(s)
	}
	if err := conv.Restore(); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Session{
		engine:     e,
		conv:       conv,
		fallback:   fallback.NewHandler(styles, fallback.WithLogger(e.logger)),
		createdAt:  now,
		lastActive: now,
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.conv.ID() }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastActive returns the time of the latest interaction.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// Style returns the session style and whether one was chosen.
func (s *Session) Style() (style.Style, bool) { return s.conv.Style() }

// SetStyle selects the session style; unknown styles fall back to
// developer. The effective style is returned.
func (s *Session) SetStyle(st style.Style) style.Style {
	s.touch()
	return s.conv.SetStyle(st)
}

// Greeting returns the greeting of the session style.
func (s *Session) Greeting() string {
	st, _ := s.conv.Style()
	return s.engine.Styles().Resolve(st).Greeting
}

// History returns the retained turns, oldest first.
func (s *Session) History() []memory.Turn { return s.conv.History() }

// Stats returns the session statistics.
func (s *Session) Stats() conversation.Stats { return s.conv.Stats() }

// Reset clears the history and the fallback ladder.
func (s *Session) Reset() error {
	s.touch()
	s.fallback.Reset()
	return s.conv.Reset()
}

// Ask answers query. Conversational questions go to the oracle first when
// one is available; its answer is kept only at or above its minimum
// confidence. Otherwise the answer is composed from the ranked topics, or
// replaced by a fallback when the match is too weak.
func (s *Session) Ask(ctx context.Context, query string) (Reply, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Reply{}, ErrEmptyQuery
	}
	st, ok := s.conv.Style()
	if !ok {
		return Reply{}, conversation.ErrStyleNotSet
	}

	s.askMu.Lock()
	defer s.askMu.Unlock()
	s.touch()

	ctx, span := s.engine.tracer.Start(ctx, "chat.Ask",
		trace.WithAttributes(
			attribute.String("session.id", s.ID()),
			attribute.String("chat.style", string(st)),
		),
	)
	defer span.End()

	reply := Reply{
		QueryID:   uuid.NewString(),
		SessionID: s.ID(),
		Style:     st,
		Intent:    intent.Classify(query),
	}

	matches := s.engine.Index().FindRelevantTopics(query, s.engine.maxResults)
	confidence := knowledge.CalculateConfidence(matches)
	reply.TopicIDs = knowledge.TopicIDs(matches)
	reply.Confidence = confidence

	if reply.Intent == intent.ConversationalSynthesis {
		if s.askOracle(ctx, query, st, &reply) {
			s.finish(span, reply)
			return reply, nil
		}
	}

	decision := s.fallback.ShouldTrigger(confidence, query, matches)
	if decision.ShouldFallback {
		fb := s.fallback.ResponseFor(decision.Reason, s.fallback.NextAction(query), st)
		reply.Text = fb.Message
		reply.Source = SourceFallback
		reply.Fallback = &FallbackInfo{
			Reason:             decision.Reason,
			Action:             fb.Action,
			SuggestedTopics:    fb.SuggestedTopics,
			ShowFallbackButton: fb.ShowFallbackButton,
		}
		s.conv.AddMessage(query, reply.Text, reply.TopicIDs, confidence)
		s.finish(span, reply)
		return reply, nil
	}

	text, err := s.conv.GenerateResponse(query, matches, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Reply{}, err
	}
	reply.Text = text
	reply.Source = SourceEngine
	s.conv.AddMessage(query, text, reply.TopicIDs, confidence)
	s.finish(span, reply)
	return reply, nil
}

// askOracle tries the oracle and fills reply on success. The oracle text is
// used as is. Failures are recorded on reply and the span, and the caller
// falls back to the engine.
func (s *Session) askOracle(ctx context.Context, query string, st style.Style, reply *Reply) bool {
	caller := s.engine.Oracle()
	if !caller.Available() {
		return false
	}

	ans, err := caller.Ask(ctx, oracle.Request{
		ID:        reply.QueryID,
		SessionID: s.ID(),
		Query:     query,
		Style:     st,
		Context:   s.conv.Context(reply.TopicIDs, conversation.DefaultContextLimit),
	})
	if err != nil {
		reply.OracleError = oracle.Reason(err)
		trace.SpanFromContext(ctx).AddEvent("oracle.fallback",
			trace.WithAttributes(attribute.String("oracle.reason", reply.OracleError)),
		)
		s.engine.logger.Info("oracle bypassed", "session", s.ID(), "reason", reply.OracleError, "error", err)
		return false
	}

	reply.Text = ans.Text
	reply.Confidence = ans.Confidence
	if len(ans.MatchedSections) > 0 {
		reply.TopicIDs = ans.MatchedSections
	}
	reply.Source = SourceOracle
	s.conv.AddMessage(query, reply.Text, reply.TopicIDs, reply.Confidence)
	return true
}

func (s *Session) finish(span trace.Span, r Reply) {
	span.SetAttributes(
		attribute.String("chat.intent", string(r.Intent)),
		attribute.String("chat.source", string(r.Source)),
		attribute.Float64("chat.confidence", r.Confidence),
		attribute.Int("chat.topics", len(r.TopicIDs)),
	)
	if r.Fallback != nil {
		span.SetAttributes(attribute.String("chat.fallback_reason", string(r.Fallback.Reason)))
	}
	s.engine.observe(r)
}

// Handoff builds a mailto link for the visitor to contact the portfolio
// owner, quoting the recent conversation. An empty query uses the latest
// question asked.
func (s *Session) Handoff(name, email, query string) (string, error) {
	s.touch()
	history := s.conv.History()
	if strings.TrimSpace(query) == "" && len(history) > 0 {
		query = history[len(history)-1].UserMessage
	}

	recent := make([]fallback.Exchange, 0, len(history))
	for _, t := range history {
		recent = append(recent, fallback.Exchange{Question: t.UserMessage, Answer: t.BotResponse})
	}

	st, _ := s.conv.Style()
	meta := s.engine.Base().Metadata
	return s.fallback.MailtoLink(fallback.HandoffRequest{
		Name:      name,
		Email:     email,
		Query:     query,
		Style:     st,
		Recipient: meta.Email,
		Owner:     meta.Name,
		Recent:    recent,
	})
}
