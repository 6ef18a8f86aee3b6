package conversation

import (
	"regexp"
	"slices"
	"strings"

	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/memory"
	"github.com/flemzord/cvchat/internal/style"
)

// maxComposedTopics bounds how many topic responses a multi-topic answer joins.
const maxComposedTopics = 3

// technicalCategories are treated as one family when deciding whether an
// earlier topic is related to the current one.
var technicalCategories = map[string]bool{
	"exp":        true,
	"experience": true,
	"skill":      true,
	"skills":     true,
	"tech":       true,
}

var howItWorks = regexp.MustCompile(`\bhow\b.*\bwork`)

// GenerateResponse composes the answer for query from matches. s overrides
// the session style for this call; when both are empty ErrStyleNotSet is
// returned. Unknown styles are answered in the developer style.
func (m *Manager) GenerateResponse(query string, matches []knowledge.Match, s style.Style) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s == "" {
		s = m.style
	}
	if s == "" {
		return "", ErrStyleNotSet
	}
	if !s.Valid() {
		m.logger.Warn("unknown style, using fallback", "style", s, "fallback", style.Fallback)
		s = style.Fallback
	}
	tmpl := m.styles.Resolve(s)

	if len(matches) == 0 {
		return m.styles.Format(tmpl.NoMatch, s), nil
	}

	var resp string
	if len(matches) == 1 {
		resp = responseFor(matches[0], s)
	} else {
		resp = compose(matches, s, tmpl)
	}
	if resp == "" {
		return m.styles.Format(tmpl.NoMatch, s), nil
	}

	resp = m.withReferenceLocked(resp, matches, tmpl)
	m.logger.Debug("response generated", "query_len", len(query), "topics", len(matches), "style", s)
	return m.styles.Format(resp, s), nil
}

func responseFor(match knowledge.Match, s style.Style) string {
	if match.Topic == nil {
		return ""
	}
	return match.Topic.Response(s)
}

// compose joins the responses of the best-scored matches, introduced by the
// style's multi-topic intro and separated by its connector.
func compose(matches []knowledge.Match, s style.Style, tmpl style.Template) string {
	ranked := slices.Clone(matches)
	slices.SortStableFunc(ranked, func(a, b knowledge.Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(ranked) > maxComposedTopics {
		ranked = ranked[:maxComposedTopics]
	}

	parts := make([]string, 0, len(ranked))
	for _, match := range ranked {
		r := responseFor(match, s)
		if r == "" {
			continue
		}
		if len(parts) == 0 {
			parts = append(parts, tmpl.MultiTopicIntro+" "+r)
		} else {
			parts = append(parts, tmpl.Connector+" "+r)
		}
	}
	return strings.Join(parts, "\n\n")
}

// withReferenceLocked prepends a transition phrase when the latest related
// turn talked about a topic connected to the current matches and the new
// answer mentions one of that topic's keywords.
func (m *Manager) withReferenceLocked(resp string, matches []knowledge.Match, tmpl style.Template) string {
	window := m.contextLocked(knowledge.TopicIDs(matches), referenceWindow)
	if len(window) == 0 {
		return resp
	}
	prev := window[len(window)-1]
	if len(prev.MatchedTopicIDs) == 0 {
		return resp
	}

	primary := prev.MatchedTopicIDs[0]
	prevTopic := m.topic(primary, matches)
	if prevTopic == nil || !relatedToAny(primary, prevTopic, matches) {
		return resp
	}
	if !mentionsKeyword(resp, prevTopic.Keywords) {
		return resp
	}

	phrase := transitionFor(prev, tmpl.Transitions)
	if phrase == "" {
		return resp
	}
	return phrase + " " + resp
}

func (m *Manager) topic(id string, matches []knowledge.Match) *knowledge.Topic {
	for _, match := range matches {
		if match.TopicID == id && match.Topic != nil {
			return match.Topic
		}
	}
	if m.lookup != nil {
		if t, ok := m.lookup(id); ok {
			return t
		}
	}
	return nil
}

func relatedToAny(prevID string, prev *knowledge.Topic, matches []knowledge.Match) bool {
	prevCat := knowledge.Category(prevID)
	for _, match := range matches {
		curCat := knowledge.Category(match.TopicID)
		switch {
		case match.TopicID == prevID, curCat == prevCat:
			return true
		case slices.Contains(prev.Related(), match.TopicID):
			return true
		case match.Topic != nil && slices.Contains(match.Topic.Related(), prevID):
			return true
		case technicalCategories[prevCat] && technicalCategories[curCat]:
			return true
		}
	}
	return false
}

func mentionsKeyword(resp string, keywords []string) bool {
	lower := strings.ToLower(resp)
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// transitionFor picks the phrase matching what the previous question asked
// for, falling back to the generic phrase.
func transitionFor(prev memory.Turn, tr style.Transitions) string {
	q := strings.ToLower(prev.UserMessage)
	var specific string
	switch {
	case strings.Contains(q, "more about"):
		specific = tr.MoreAbout
	case howItWorks.MatchString(q):
		specific = tr.HowItWorks
	case strings.Contains(q, "example"):
		specific = tr.Example
	}
	if specific != "" {
		return specific
	}
	return tr.Default
}
