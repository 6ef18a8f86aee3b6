package conversation

import "github.com/flemzord/cvchat/internal/style"

// Stats summarises a session.
type Stats struct {
	SessionID         string      `json:"session_id"`
	Turns             int         `json:"turns"`
	Style             style.Style `json:"style,omitempty"`
	AverageConfidence float64     `json:"average_confidence"`
	// TopicsDiscussed lists every matched topic id seen in the session, in
	// first-seen order, including turns since evicted from the history.
	TopicsDiscussed []string `json:"topics_discussed"`
}

// Stats returns the current session statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum float64
	for _, t := range m.history {
		sum += t.Confidence
	}
	avg := 0.0
	if n := len(m.history); n > 0 {
		avg = sum / float64(n)
	}

	return Stats{
		SessionID:         m.id,
		Turns:             len(m.history),
		Style:             m.style,
		AverageConfidence: avg,
		TopicsDiscussed:   append([]string{}, m.seenTopics...),
	}
}
