// Package style defines the closed set of response personas (recruiter,
// developer, friend), the immutable copy tables attached to each, and the
// light post-processing applied to outgoing responses.
package style

import "strings"

// Style identifies the persona the assistant answers in.
type Style string

// Supported styles.
const (
	HR        Style = "hr"
	Developer Style = "developer"
	Friend    Style = "friend"
)

// Fallback is the style used whenever an unknown style is requested.
const Fallback = Developer

// All returns every supported style in canonical order.
func All() []Style {
	return []Style{HR, Developer, Friend}
}

// Parse normalizes s and reports whether it names a supported style.
func Parse(s string) (Style, bool) {
	st := Style(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", false
	}
	return st, true
}

// Valid reports whether s is one of the supported styles.
func (s Style) Valid() bool {
	switch s {
	case HR, Developer, Friend:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (s Style) String() string {
	return string(s)
}
