package fallback

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input limits.
const (
	MaxInputLength = 200
	MinNameLength  = 2
	MaxNameLength  = 50
)

var (
	scriptTag    = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	angleStrip   = strings.NewReplacer("<", "", ">", "")
)

// SanitizeInput removes script elements, then any remaining angle brackets,
// and truncates the result to MaxInputLength runes.
func SanitizeInput(s string) string {
	s = scriptTag.ReplaceAllString(s, "")
	s = angleStrip.Replace(s)
	return truncateRunes(s, MaxInputLength)
}

// ValidateEmail reports whether s looks like local@domain.tld.
func ValidateEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// ValidateName reports whether the trimmed name has 2 to 50 characters.
func ValidateName(s string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	return n >= MinNameLength && n <= MaxNameLength
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
