package knowledge

import "math"

// Confidence bounds.
const (
	MinConfidence = 0.1
	MaxConfidence = 0.95
)

// CalculateConfidence scores how well matches answer a query. Only the
// highest-scoring match is considered; no matches yields MinConfidence.
func CalculateConfidence(matches []Match) float64 {
	if len(matches) == 0 {
		return MinConfidence
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.Score > best.Score {
			best = m
		}
	}
	c := 0.5

	switch best.Type {
	case MatchExact:
		c += 0.3
	case MatchSemantic:
		c += 0.2
	default:
		c += 0.1
	}

	c += 0.2 * math.Min(1, best.Score/exactWeight)

	if len(best.MatchedTerms) > 1 {
		c += 0.1
	}

	return math.Max(MinConfidence, math.Min(MaxConfidence, c))
}
