package knowledge

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// semanticVocabulary is the fixed set of domain words extracted from topic
// content to build the semantic index.
var semanticVocabulary = []string{
	"algorithm", "analytics", "api", "application", "architecture",
	"automation", "backend", "cloud", "component", "database", "data",
	"deployment", "design", "development", "experience", "framework",
	"frontend", "infrastructure", "interface", "leadership", "library",
	"mentoring", "microservice", "migration", "mobile", "monitoring",
	"optimization", "performance", "project", "scalability", "security",
	"server", "team", "testing", "web",
}

// semanticForms maps every accepted surface form to its vocabulary term.
var semanticForms, semanticPattern = buildSemanticForms()

func buildSemanticForms() (map[string]string, *regexp.Regexp) {
	forms := make(map[string]string, len(semanticVocabulary)*2+1)
	for _, term := range semanticVocabulary {
		forms[term] = term
		forms[term+"s"] = term
	}
	forms["libraries"] = "library"

	alts := make([]string, 0, len(forms))
	for f := range forms {
		alts = append(alts, regexp.QuoteMeta(f))
	}
	// Longest first so "libraries" wins over "library" in the alternation.
	sort.Slice(alts, func(i, j int) bool {
		if len(alts[i]) != len(alts[j]) {
			return len(alts[i]) > len(alts[j])
		}
		return alts[i] < alts[j]
	})
	return forms, regexp.MustCompile(`(?i)\b(` + strings.Join(alts, "|") + `)\b`)
}

// phraseKeyword is a keyword that cannot be reached through single query
// tokens: it spans several words or is too short to survive tokenization.
type phraseKeyword struct {
	topic   int
	keyword string
	norm    string
}

// symbolKeyword is a keyword whose edge symbols carry meaning ("c++", "c#",
// ".net"). It is matched against the lower-cased query as written.
type symbolKeyword struct {
	topic   int
	keyword string
}

// Index is an immutable, query-ready view over a validated knowledge base.
// It is safe for concurrent use.
type Index struct {
	base     *Base
	byID     map[string]int
	keywords map[string][]int
	phrases  []phraseKeyword
	symbols  []symbolKeyword
	semantic map[string][]int
	content  []string
	cache    *queryCache
	logger   *slog.Logger
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithCacheSize enables a bounded query-result cache. Zero disables it.
func WithCacheSize(n int) IndexOption {
	return func(idx *Index) {
		idx.cache = newQueryCache(n)
	}
}

// WithLogger sets the logger used for index diagnostics.
func WithLogger(l *slog.Logger) IndexOption {
	return func(idx *Index) {
		if l != nil {
			idx.logger = l
		}
	}
}

// NewIndex validates b and builds its keyword and semantic indexes.
func NewIndex(b *Base, opts ...IndexOption) (*Index, error) {
	if err := Validate(b); err != nil {
		return nil, err
	}

	idx := &Index{
		base:     b,
		byID:     make(map[string]int, len(b.Topics)),
		keywords: make(map[string][]int),
		semantic: make(map[string][]int),
		content:  make([]string, len(b.Topics)),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(idx)
	}

	for pos := range b.Topics {
		t := &b.Topics[pos]
		idx.byID[t.ID] = pos
		idx.content[pos] = strings.ToLower(t.Content)

		for _, k := range t.Keywords {
			lk := strings.ToLower(strings.TrimSpace(k))
			if hasEdgeSymbol(lk) {
				idx.symbols = append(idx.symbols, symbolKeyword{topic: pos, keyword: lk})
				continue
			}
			norm := normalizePhrase(lk)
			if isSingleToken(norm) {
				idx.keywords[norm] = appendUnique(idx.keywords[norm], pos)
				continue
			}
			if norm != "" {
				idx.phrases = append(idx.phrases, phraseKeyword{topic: pos, keyword: lk, norm: norm})
			}
		}

		for _, m := range semanticPattern.FindAllString(t.Content, -1) {
			term := semanticForms[strings.ToLower(m)]
			idx.semantic[term] = appendUnique(idx.semantic[term], pos)
		}
	}

	idx.logger.Debug("knowledge index built",
		"topics", len(b.Topics),
		"keywords", len(idx.keywords),
		"phrases", len(idx.phrases),
		"symbol_keywords", len(idx.symbols),
		"semantic_terms", len(idx.semantic),
	)
	return idx, nil
}

// Base returns the knowledge base the index was built from.
func (idx *Index) Base() *Base { return idx.base }

// Len returns the number of topics.
func (idx *Index) Len() int { return len(idx.base.Topics) }

// Topic returns the topic with the given id.
func (idx *Index) Topic(id string) (*Topic, bool) {
	pos, ok := idx.byID[id]
	if !ok {
		return nil, false
	}
	return &idx.base.Topics[pos], true
}

// Topics returns the topics in knowledge-base order.
func (idx *Index) Topics() []*Topic {
	out := make([]*Topic, len(idx.base.Topics))
	for i := range idx.base.Topics {
		out[i] = &idx.base.Topics[i]
	}
	return out
}

// appendUnique appends pos unless it is already the last element. Topics are
// indexed in ascending order, so this keeps each posting list duplicate-free.
func appendUnique(list []int, pos int) []int {
	if n := len(list); n > 0 && list[n-1] == pos {
		return list
	}
	return append(list, pos)
}
