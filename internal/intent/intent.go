// Package intent labels free-text queries as fact lookups or open-ended
// conversation using prefix and keyword heuristics.
package intent

import "strings"

// Label is the advisory intent attached to a query.
type Label string

// Intent labels.
const (
	FactRetrieval           Label = "fact_retrieval"
	ConversationalSynthesis Label = "conversational_synthesis"
)

// factPrefixes short-circuit classification when the query starts with one.
var factPrefixes = []string{
	"how many",
	"how much",
	"what is",
	"what's",
	"what are",
	"when did",
	"when was",
	"where is",
	"where did",
	"where can",
	"who is",
	"which",
}

// factKeywords mark a fact lookup when they appear anywhere in the query.
var factKeywords = []string{
	"email",
	"contact",
	"phone",
	"linkedin",
	"github",
	"years",
	"experience",
	"education",
	"degree",
	"university",
	"college",
	"certification",
	"location",
	"address",
	"website",
	"portfolio",
}

// Classify labels query. Prefixes are checked before keywords; blank input
// is conversational.
func Classify(query string) Label {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return ConversationalSynthesis
	}

	for _, p := range factPrefixes {
		if strings.HasPrefix(q, p) {
			return FactRetrieval
		}
	}

	for _, k := range factKeywords {
		if strings.Contains(q, k) {
			return FactRetrieval
		}
	}

	return ConversationalSynthesis
}
