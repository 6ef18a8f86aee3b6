package knowledge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flemzord/cvchat/internal/style"
	"gopkg.in/yaml.v3"
)

// Metadata describes the person the knowledge base is about.
type Metadata struct {
	Name        string `json:"name" yaml:"name"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty"`
	Location    string `json:"location,omitempty" yaml:"location,omitempty"`
	Website     string `json:"website,omitempty" yaml:"website,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	LastUpdated string `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
}

// Topic is one named knowledge-base entry. Topics are immutable once loaded.
type Topic struct {
	ID        string                 `json:"-" yaml:"-"`
	Keywords  []string               `json:"keywords" yaml:"keywords"`
	Content   string                 `json:"content" yaml:"content"`
	Responses map[style.Style]string `json:"responses" yaml:"responses"`
	Details   map[string]any         `json:"details,omitempty" yaml:"details,omitempty"`
}

// Response returns the canned response for s.
func (t *Topic) Response(s style.Style) string {
	return t.Responses[s]
}

// Related returns the topic ids listed under details.related.
func (t *Topic) Related() []string {
	raw, ok := t.Details["related"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}

// Category returns the category of a topic id: the part before the first
// '.' or '_', or the whole id when it has neither.
func Category(id string) string {
	if i := strings.IndexAny(id, "._"); i >= 0 {
		return id[:i]
	}
	return id
}

// Fallbacks holds per-style copy for unanswerable queries.
type Fallbacks struct {
	NoMatch       map[style.Style]string `json:"no_match,omitempty" yaml:"no_match,omitempty"`
	LowConfidence map[style.Style]string `json:"low_confidence,omitempty" yaml:"low_confidence,omitempty"`
}

// Base is a parsed knowledge-base document.
type Base struct {
	Metadata  Metadata                       `json:"metadata" yaml:"metadata"`
	Topics    TopicList                      `json:"knowledge_base" yaml:"knowledge_base"`
	Styles    map[style.Style]style.Override `json:"communication_styles,omitempty" yaml:"communication_styles,omitempty"`
	Fallbacks Fallbacks                      `json:"fallback_responses" yaml:"fallback_responses"`
}

// StyleOverrides merges communication_styles and fallback_responses into
// template overrides for the style table.
func (b *Base) StyleOverrides() map[style.Style]style.Override {
	out := make(map[style.Style]style.Override, len(style.All()))
	for _, s := range style.All() {
		o := b.Styles[s]
		if v := b.Fallbacks.NoMatch[s]; v != "" {
			o.NoMatch = v
		}
		if v := b.Fallbacks.LowConfidence[s]; v != "" {
			o.LowConfidence = v
		}
		out[s] = o
	}
	return out
}

// TopicList is the ordered topic set. It decodes from a JSON object or YAML
// mapping keyed by topic id and keeps the document order, which is the
// tie-break order for ranking.
type TopicList []Topic

// UnmarshalJSON implements json.Unmarshaler.
func (l *TopicList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("knowledge: knowledge_base: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("knowledge: knowledge_base must be an object keyed by topic id")
	}

	var topics TopicList
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("knowledge: knowledge_base: %w", err)
		}
		id, _ := keyTok.(string)

		var t Topic
		if err := dec.Decode(&t); err != nil {
			return fmt.Errorf("knowledge: topic %q: %w", id, err)
		}
		t.ID = id
		topics = append(topics, t)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("knowledge: knowledge_base: %w", err)
	}

	*l = topics
	return nil
}

// MarshalJSON implements json.Marshaler, writing topics as an object in
// list order.
func (l TopicList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(l[i].ID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(l[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *TopicList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*l = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("knowledge: knowledge_base must be a mapping keyed by topic id (line %d)", node.Line)
	}

	topics := make(TopicList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		id := node.Content[i].Value
		var t Topic
		if err := node.Content[i+1].Decode(&t); err != nil {
			return fmt.Errorf("knowledge: topic %q: %w", id, err)
		}
		t.ID = id
		topics = append(topics, t)
	}

	*l = topics
	return nil
}
