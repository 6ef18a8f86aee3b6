package style

import (
	"log/slog"
	"math/rand/v2"
	"regexp"
)

// enthusiasmThreshold is the draw above which an enthusiastic opener is
// prepended (roughly 30% of friend-style responses).
const enthusiasmThreshold = 0.7

// RandSource is the randomness used by Format. *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
	IntN(n int) int
}

// globalRand delegates to the math/rand/v2 top-level functions, which are
// safe for concurrent use.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }

type emojiRule struct {
	keyword string
	emoji   string
	re      *regexp.Regexp
}

func newEmojiRule(keyword, emoji string) emojiRule {
	return emojiRule{
		keyword: keyword,
		emoji:   emoji,
		re:      regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`),
	}
}

// emojiRules is applied in order; each keyword gets its emoji after its
// first occurrence only.
var emojiRules = []emojiRule{
	newEmojiRule("react", "⚛️"),
	newEmojiRule("javascript", "🚀"),
	newEmojiRule("typescript", "🔷"),
	newEmojiRule("python", "🐍"),
	newEmojiRule("project", "💻"),
	newEmojiRule("design", "🎨"),
	newEmojiRule("data", "📊"),
	newEmojiRule("team", "🤝"),
	newEmojiRule("learning", "📚"),
	newEmojiRule("coffee", "☕"),
	newEmojiRule("music", "🎵"),
	newEmojiRule("travel", "✈️"),
}

var enthusiasticOpeners = []string{
	"Oh, I love this question!",
	"Ooh, fun one!",
	"Great question!",
	"Ha, glad you asked!",
}

// Manager serves style templates and post-processes responses.
type Manager struct {
	table  *Table
	rand   RandSource
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRand injects the random source used for enthusiasm injection.
func WithRand(r RandSource) Option {
	return func(m *Manager) { m.rand = r }
}

// WithLogger injects a structured logger. When nil or omitted, log output
// is discarded.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager over table. A nil table uses Defaults().
func NewManager(table *Table, opts ...Option) *Manager {
	if table == nil {
		table = Defaults()
	}
	m := &Manager{table: table}
	for _, opt := range opts {
		opt(m)
	}
	if m.rand == nil {
		m.rand = globalRand{}
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	return m
}

// Table returns the template table backing the manager.
func (m *Manager) Table() *Table {
	return m.table
}

// Template returns the template bundle for s, or false for an unknown style.
func (m *Manager) Template(s Style) (Template, bool) {
	return m.table.Get(s)
}

// Resolve returns the template for s, substituting the developer template
// for unknown styles so the conversation keeps going.
func (m *Manager) Resolve(s Style) Template {
	if tmpl, ok := m.table.Get(s); ok {
		return tmpl
	}
	m.logger.Warn("unknown style, using fallback", "style", string(s), "fallback", string(Fallback))
	tmpl, _ := m.table.Get(Fallback)
	return tmpl
}

// Format applies style-specific post-processing to response. Only styles
// with emoji or enthusiasm enabled are altered; an empty response is
// returned unchanged.
func (m *Manager) Format(response string, s Style) string {
	if response == "" {
		return response
	}
	tmpl := m.Resolve(s)

	if tmpl.Emoji && !containsEmoji(response) {
		response = injectEmoji(response)
	}
	if tmpl.Enthusiasm && m.rand.Float64() > enthusiasmThreshold {
		opener := enthusiasticOpeners[m.rand.IntN(len(enthusiasticOpeners))]
		response = opener + " " + response
	}
	return response
}

func injectEmoji(s string) string {
	for _, rule := range emojiRules {
		loc := rule.re.FindStringIndex(s)
		if loc == nil {
			continue
		}
		s = s[:loc[1]] + " " + rule.emoji + s[loc[1]:]
	}
	return s
}

// containsEmoji reports whether s has a rune from the common pictographic
// blocks.
func containsEmoji(s string) bool {
	for _, r := range s {
		switch {
		case r >= 0x1F000 && r <= 0x1FAFF:
			return true
		case r >= 0x2600 && r <= 0x27BF:
			return true
		case r == 0x2B50 || r == 0x2B55:
			return true
		}
	}
	return false
}
