package knowledge

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxResults is the result limit used when callers pass zero.
const DefaultMaxResults = 3

// Per-token score weights for each match tier.
const (
	exactWeight     = 3.0
	semanticWeight  = 1.0
	substringWeight = 0.5
)

// MatchType is the strongest tier that contributed to a match.
type MatchType string

// Match tiers, strongest first.
const (
	MatchExact     MatchType = "exact"
	MatchSemantic  MatchType = "semantic"
	MatchSubstring MatchType = "substring"
)

// Match is one ranked topic for a query.
type Match struct {
	TopicID      string    `json:"topic_id"`
	Topic        *Topic    `json:"-"`
	Type         MatchType `json:"match_type"`
	Score        float64   `json:"score"`
	MatchedTerms []string  `json:"matched_terms"`
}

// TopicIDs returns the ids of matches in order.
func TopicIDs(matches []Match) []string {
	if len(matches) == 0 {
		return nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.TopicID
	}
	return ids
}

// Tokenize lower-cases s, splits it on anything that is not a letter or a
// digit, and keeps the distinct words longer than two characters.
func Tokenize(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), isSeparator)
	out := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) <= 2 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// normalizePhrase reduces s to lower-case words joined by single spaces.
func normalizePhrase(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), isSeparator), " ")
}

// lowerQuery lower-cases s and collapses its whitespace, keeping symbols.
func lowerQuery(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// hasEdgeSymbol reports whether a word of keyword starts or ends with a rune
// that normalization would drop. Inner separators ("node.js", "front-end")
// do not count.
func hasEdgeSymbol(keyword string) bool {
	for _, w := range strings.Fields(keyword) {
		if strings.TrimFunc(w, isSeparator) != w {
			return true
		}
	}
	return false
}

// containsBounded reports whether query contains keyword with no letter or
// digit glued to an alphanumeric edge of keyword.
func containsBounded(query, keyword string) bool {
	first, _ := utf8.DecodeRuneInString(keyword)
	last, _ := utf8.DecodeLastRuneInString(keyword)
	for from := 0; from < len(query); {
		i := strings.Index(query[from:], keyword)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(keyword)
		before, _ := utf8.DecodeLastRuneInString(query[:start])
		after, _ := utf8.DecodeRuneInString(query[end:])
		okBefore := start == 0 || isSeparator(first) || isSeparator(before)
		okAfter := end == len(query) || isSeparator(last) || isSeparator(after)
		if okBefore && okAfter {
			return true
		}
		_, size := utf8.DecodeRuneInString(query[start:])
		from = start + size
	}
	return false
}

func isSingleToken(norm string) bool {
	return norm != "" && !strings.Contains(norm, " ") && utf8.RuneCountInString(norm) > 2
}

type candidate struct {
	score    float64
	exact    bool
	semantic bool
	terms    []string
}

func (c *candidate) add(term string, points float64) {
	c.score += points
	if !slices.Contains(c.terms, term) {
		c.terms = append(c.terms, term)
	}
}

// FindRelevantTopics ranks topics against query. A blank query or one that
// hits nothing yields an empty result.
func (idx *Index) FindRelevantTopics(query string, maxResults int) []Match {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	lowered := lowerQuery(query)
	if lowered == "" {
		return nil
	}

	if idx.cache != nil {
		if hit, ok := idx.cache.get(lowered, maxResults); ok {
			return hit
		}
	}

	matches := idx.rank(lowered, maxResults)

	if idx.cache != nil {
		idx.cache.put(lowered, maxResults, matches)
	}
	return matches
}

func (idx *Index) rank(lowered string, maxResults int) []Match {
	normQuery := normalizePhrase(lowered)
	tokens := Tokenize(normQuery)
	cands := make(map[int]*candidate)
	get := func(pos int) *candidate {
		c, ok := cands[pos]
		if !ok {
			c = &candidate{}
			cands[pos] = c
		}
		return c
	}

	for _, tok := range tokens {
		for _, pos := range idx.keywords[tok] {
			c := get(pos)
			c.exact = true
			c.add(tok, exactWeight)
		}
	}

	padded := " " + normQuery + " "
	for _, p := range idx.phrases {
		if strings.Contains(padded, " "+p.norm+" ") {
			c := get(p.topic)
			c.exact = true
			c.add(p.keyword, exactWeight)
		}
	}

	for _, k := range idx.symbols {
		if containsBounded(lowered, k.keyword) {
			c := get(k.topic)
			c.exact = true
			c.add(k.keyword, exactWeight)
		}
	}

	for _, tok := range tokens {
		term, ok := semanticForms[tok]
		if !ok {
			continue
		}
		for _, pos := range idx.semantic[term] {
			c := get(pos)
			c.semantic = true
			c.add(tok, semanticWeight)
		}
	}

	if len(cands) < maxResults {
		for _, tok := range tokens {
			for pos, content := range idx.content {
				if strings.Contains(content, tok) {
					get(pos).add(tok, substringWeight)
				}
			}
		}
	}

	if len(cands) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(cands))
	for pos := range idx.base.Topics {
		c, ok := cands[pos]
		if !ok {
			continue
		}
		t := &idx.base.Topics[pos]
		typ := MatchSubstring
		switch {
		case c.exact:
			typ = MatchExact
		case c.semantic:
			typ = MatchSemantic
		}
		matches = append(matches, Match{
			TopicID:      t.ID,
			Topic:        t,
			Type:         typ,
			Score:        c.score,
			MatchedTerms: c.terms,
		})
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}
