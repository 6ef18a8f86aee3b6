// Package fallback decides when an answer is too weak to send, walks the
// per-query escalation ladder (ask to rephrase, then offer an email hand-off)
// and builds the hand-off mailto link.
package fallback

import (
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/style"
)

// Confidence thresholds below which a fallback is triggered.
const (
	VeryLowConfidence = 0.3
	LowConfidence     = 0.5
)

// maxKeyLength bounds normalised query keys, in runes.
const maxKeyLength = 50

// Reason explains why a fallback was triggered.
type Reason string

// Fallback reasons. No matches is checked first.
const (
	ReasonNone              Reason = ""
	ReasonNoMatches         Reason = "no_matches"
	ReasonVeryLowConfidence Reason = "very_low_confidence"
	ReasonLowConfidence     Reason = "low_confidence"
)

// Action is a step on the escalation ladder.
type Action string

// Ladder steps.
const (
	ActionNone     Action = ""
	ActionRephrase Action = "rephrase"
	ActionEmail    Action = "email"
)

// Decision is the outcome of ShouldTrigger.
type Decision struct {
	ShouldFallback bool   `json:"should_fallback"`
	Reason         Reason `json:"reason,omitempty"`
	// Action is the step NextAction would return for the query. Reading it
	// does not advance the ladder.
	Action Action `json:"action,omitempty"`
}

// Reply is the user-facing fallback message.
type Reply struct {
	Action             Action   `json:"action"`
	Message            string   `json:"message"`
	SuggestedTopics    []string `json:"suggested_topics,omitempty"`
	ShowFallbackButton bool     `json:"show_fallback_button"`
}

// Handler tracks escalation attempts for one session. Attempts are keyed by
// normalised query, only ever increase, and are cleared by Reset.
type Handler struct {
	styles *style.Manager
	logger *slog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates a handler drawing its copy from styles. A nil manager
// uses the built-in templates.
func NewHandler(styles *style.Manager, opts ...Option) *Handler {
	if styles == nil {
		styles = style.NewManager(nil)
	}
	h := &Handler{
		styles:   styles,
		logger:   slog.New(slog.DiscardHandler),
		attempts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ShouldTrigger decides whether a fallback replaces the answer.
func (h *Handler) ShouldTrigger(confidence float64, query string, matches []knowledge.Match) Decision {
	var reason Reason
	switch {
	case len(matches) == 0:
		reason = ReasonNoMatches
	case confidence < VeryLowConfidence:
		reason = ReasonVeryLowConfidence
	case confidence < LowConfidence:
		reason = ReasonLowConfidence
	default:
		return Decision{}
	}
	return Decision{ShouldFallback: true, Reason: reason, Action: h.PeekAction(query)}
}

// NextAction records an attempt for query and returns the ladder step: the
// first attempt asks to rephrase, every later one offers email.
func (h *Handler) NextAction(query string) Action {
	key := NormalizeQuery(query)

	h.mu.Lock()
	n := h.attempts[key]
	if n < 2 {
		h.attempts[key] = n + 1
	}
	h.mu.Unlock()

	action := ActionEmail
	if n == 0 {
		action = ActionRephrase
	}
	h.logger.Debug("fallback escalation", "key", key, "attempt", min(n+1, 2), "action", action)
	return action
}

// PeekAction returns the step NextAction would return, without recording.
func (h *Handler) PeekAction(query string) Action {
	if h.Attempts(query) == 0 {
		return ActionRephrase
	}
	return ActionEmail
}

// Attempts returns the recorded attempt count for query (0, 1 or 2).
func (h *Handler) Attempts(query string) int {
	key := NormalizeQuery(query)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts[key]
}

// Reset forgets every recorded attempt.
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.attempts)
}

// Response builds the fallback message for action in style s.
func (h *Handler) Response(action Action, s style.Style) Reply {
	tmpl := h.styles.Resolve(s)

	switch action {
	case ActionRephrase:
		msg := tmpl.Rephrase
		if len(tmpl.SuggestedTopics) > 0 {
			msg += " " + tmpl.SuggestionIntro + " " + strings.Join(tmpl.SuggestedTopics, ", ") + "."
		}
		return Reply{
			Action:          ActionRephrase,
			Message:         msg,
			SuggestedTopics: tmpl.SuggestedTopics,
		}
	case ActionEmail:
		return Reply{
			Action:             ActionEmail,
			Message:            tmpl.FallbackIntro + " " + tmpl.FallbackRequest,
			ShowFallbackButton: true,
		}
	default:
		return Reply{Action: action, Message: tmpl.Error}
	}
}

// ResponseFor builds the fallback message for a triggered decision. On the
// rephrase step the copy for reason (no-match or low-confidence) leads the
// message, so knowledge-base wording reaches the visitor.
func (h *Handler) ResponseFor(reason Reason, action Action, s style.Style) Reply {
	r := h.Response(action, s)
	if action != ActionRephrase {
		return r
	}
	if lead := h.Lead(reason, s); lead != "" {
		r.Message = lead + " " + r.Message
	}
	return r
}

// Lead returns the opening sentence for reason in style s, or "" when the
// reason has none.
func (h *Handler) Lead(reason Reason, s style.Style) string {
	tmpl := h.styles.Resolve(s)
	switch reason {
	case ReasonNoMatches:
		return tmpl.NoMatch
	case ReasonLowConfidence, ReasonVeryLowConfidence:
		return tmpl.LowConfidence
	default:
		return ""
	}
}

// NormalizeQuery builds the attempt key for query: lower-cased, punctuation
// and symbols stripped, trimmed and cut to 50 runes.
func NormalizeQuery(query string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(query) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	key := []rune(strings.TrimSpace(b.String()))
	if len(key) > maxKeyLength {
		key = key[:maxKeyLength]
	}
	return string(key)
}
