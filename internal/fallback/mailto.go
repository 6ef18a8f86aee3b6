package fallback

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/flemzord/cvchat/internal/style"
)

// Hand-off limits.
const (
	MaxRecentExchanges = 3
	maxAnswerPreview   = 100
)

// Hand-off validation errors.
var (
	ErrInvalidName  = errors.New("fallback: name must be 2 to 50 characters")
	ErrInvalidEmail = errors.New("fallback: invalid email address")
)

// Exchange is one question/answer pair quoted in a hand-off email.
type Exchange struct {
	Question string
	Answer   string
}

// HandoffRequest carries everything needed to build a hand-off link.
type HandoffRequest struct {
	Name  string
	Email string
	Query string
	Style style.Style
	// Recipient is the portfolio owner's address; it may be empty.
	Recipient string
	// Owner is the portfolio owner's name used in the greeting.
	Owner string
	// Recent holds the conversation so far, oldest first. Only the last
	// MaxRecentExchanges are quoted.
	Recent []Exchange
}

// MailtoLink validates req and builds a mailto: URI with a style-specific
// subject and a body quoting the visitor's details, their question and the
// recent conversation. Every visitor-supplied string is sanitised first.
func (h *Handler) MailtoLink(req HandoffRequest) (string, error) {
	if !ValidateName(req.Name) {
		return "", ErrInvalidName
	}
	if !ValidateEmail(req.Email) {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, req.Email)
	}

	tmpl := h.styles.Resolve(req.Style)
	name := SanitizeInput(strings.TrimSpace(req.Name))
	email := SanitizeInput(strings.TrimSpace(req.Email))
	query := SanitizeInput(strings.TrimSpace(req.Query))

	owner := req.Owner
	if owner == "" {
		owner = "there"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", owner)
	fmt.Fprintf(&body, "%s (%s) would like to get in touch after chatting on your portfolio.\n\n", name, email)
	fmt.Fprintf(&body, "Their question:\n\"%s\"\n", query)

	recent := req.Recent
	if len(recent) > MaxRecentExchanges {
		recent = recent[len(recent)-MaxRecentExchanges:]
	}
	if len(recent) > 0 {
		body.WriteString("\nRecent conversation:\n")
		for _, ex := range recent {
			fmt.Fprintf(&body, "Q: %s\n", SanitizeInput(ex.Question))
			fmt.Fprintf(&body, "A: %s\n", preview(ex.Answer))
		}
	}

	recipient := ""
	if ValidateEmail(req.Recipient) {
		recipient = strings.TrimSpace(req.Recipient)
	}

	h.logger.Info("hand-off link generated", "style", req.Style, "exchanges", len(recent))

	return "mailto:" + recipient +
		"?subject=" + escape(tmpl.EmailSubject) +
		"&body=" + escape(body.String()), nil
}

// preview truncates an answer to maxAnswerPreview runes with an ellipsis.
func preview(s string) string {
	if utf8.RuneCountInString(s) <= maxAnswerPreview {
		return s
	}
	return string([]rune(s)[:maxAnswerPreview]) + "..."
}

// escape percent-encodes s for a mailto header value, spaces as %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
