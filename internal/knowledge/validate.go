package knowledge

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/flemzord/cvchat/internal/style"
)

// MinTextLength is the minimum number of characters for topic content and
// every style response.
const MinTextLength = 10

// Validate checks b and returns a *ValidationError listing every violation,
// or nil when the base is usable.
func Validate(b *Base) error {
	if b == nil {
		return &ValidationError{Violations: []Violation{{Field: "document", Reason: "is empty"}}}
	}

	var vs []Violation
	add := func(topic, field, format string, args ...any) {
		vs = append(vs, Violation{Topic: topic, Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if len(b.Topics) == 0 {
		add("", "knowledge_base", "must contain at least one topic")
	}

	seen := make(map[string]bool, len(b.Topics))
	for i := range b.Topics {
		t := &b.Topics[i]
		if strings.TrimSpace(t.ID) == "" {
			add("", fmt.Sprintf("knowledge_base[%d]", i), "topic id must not be empty")
			continue
		}
		if seen[t.ID] {
			add(t.ID, "id", "duplicate topic id")
		}
		seen[t.ID] = true

		if len(t.Keywords) == 0 {
			add(t.ID, "keywords", "must not be empty")
		}
		for j, k := range t.Keywords {
			if strings.TrimSpace(k) == "" {
				add(t.ID, fmt.Sprintf("keywords[%d]", j), "must not be blank")
			}
		}

		if n := utf8.RuneCountInString(strings.TrimSpace(t.Content)); n < MinTextLength {
			add(t.ID, "content", "must be at least %d characters, got %d", MinTextLength, n)
		}

		for _, s := range style.All() {
			field := "responses." + s.String()
			r, ok := t.Responses[s]
			switch {
			case !ok:
				add(t.ID, field, "missing response")
			case utf8.RuneCountInString(strings.TrimSpace(r)) < MinTextLength:
				add(t.ID, field, "must be at least %d characters", MinTextLength)
			}
		}
		for s := range t.Responses {
			if !s.Valid() {
				add(t.ID, "responses."+s.String(), "unknown style")
			}
		}
	}

	if len(b.Styles) > 0 {
		vs = append(vs, coverage("communication_styles", b.Styles)...)
	}
	if len(b.Fallbacks.NoMatch) > 0 {
		vs = append(vs, coverageText("fallback_responses.no_match", b.Fallbacks.NoMatch)...)
	}
	if len(b.Fallbacks.LowConfidence) > 0 {
		vs = append(vs, coverageText("fallback_responses.low_confidence", b.Fallbacks.LowConfidence)...)
	}

	if len(vs) == 0 {
		return nil
	}
	return &ValidationError{Violations: vs}
}

func coverage[V any](field string, m map[style.Style]V) []Violation {
	var vs []Violation
	for _, s := range style.All() {
		if _, ok := m[s]; !ok {
			vs = append(vs, Violation{Field: field + "." + s.String(), Reason: "missing style"})
		}
	}
	for s := range m {
		if !s.Valid() {
			vs = append(vs, Violation{Field: field + "." + s.String(), Reason: "unknown style"})
		}
	}
	return vs
}

func coverageText(field string, m map[style.Style]string) []Violation {
	vs := coverage(field, m)
	for _, s := range style.All() {
		if v, ok := m[s]; ok && strings.TrimSpace(v) == "" {
			vs = append(vs, Violation{Field: field + "." + s.String(), Reason: "must not be blank"})
		}
	}
	return vs
}
