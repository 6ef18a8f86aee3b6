package gateway

import (
	"net/http"
	"strings"

	"github.com/flemzord/cvchat/internal/intent"
	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/style"
)

type queryRequest struct {
	Text       string `json:"text"`
	MaxResults int    `json:"max_results,omitempty"`
}

type classifyResponse struct {
	Intent intent.Label `json:"intent"`
}

func (g *Gateway) handleClassify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if !g.decodeBody(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, classifyResponse{Intent: intent.Classify(req.Text)})
	}
}

type topicMatch struct {
	ID           string   `json:"id"`
	Score        float64  `json:"score"`
	Type         string   `json:"type"`
	MatchedTerms []string `json:"matched_terms"`
}

type topicsResponse struct {
	Topics     []topicMatch `json:"topics"`
	Confidence float64      `json:"confidence"`
}

// maxTopicResults bounds the stateless topic search.
const maxTopicResults = 10

func (g *Gateway) handleTopics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if !g.decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}
		n := req.MaxResults
		if n <= 0 {
			n = knowledge.DefaultMaxResults
		}
		n = min(n, maxTopicResults)

		matches := g.engine.Index().FindRelevantTopics(req.Text, n)
		resp := topicsResponse{
			Topics:     make([]topicMatch, 0, len(matches)),
			Confidence: knowledge.CalculateConfidence(matches),
		}
		for _, m := range matches {
			resp.Topics = append(resp.Topics, topicMatch{
				ID:           m.TopicID,
				Score:        m.Score,
				Type:         string(m.Type),
				MatchedTerms: m.MatchedTerms,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type styleInfo struct {
	Style    style.Style `json:"style"`
	Tone     string      `json:"tone"`
	Greeting string      `json:"greeting"`
}

func (g *Gateway) handleStyles() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		styles := g.engine.Styles()
		out := make([]styleInfo, 0, len(style.All()))
		for _, s := range style.All() {
			tmpl := styles.Resolve(s)
			out = append(out, styleInfo{Style: s, Tone: tmpl.Tone, Greeting: tmpl.Greeting})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
