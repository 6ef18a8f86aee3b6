package knowledge

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/cvchat/internal/style"
)

func responses(prefix string) map[style.Style]string {
	return map[style.Style]string{
		style.HR:        prefix + " (professional summary).",
		style.Developer: prefix + " (technical deep dive).",
		style.Friend:    prefix + " (casual version).",
	}
}

// testBase returns a small valid base whose contents share no words, so the
// substring tier stays predictable.
func testBase() *Base {
	return &Base{
		Metadata: Metadata{Name: "Ada Example", Email: "ada@example.com"},
		Topics: TopicList{
			{
				ID:        "exp_react",
				Keywords:  []string{"react", "hooks"},
				Content:   "Five years building single page apps with component driven UIs.",
				Responses: responses("React experience"),
				Details:   map[string]any{"related": []any{"skills_go"}},
			},
			{
				ID:        "skills_go",
				Keywords:  []string{"golang", "go"},
				Content:   "Writes concurrent backend services and command line tools.",
				Responses: responses("Go skills"),
			},
			{
				ID:        "edu_degree",
				Keywords:  []string{"degree", "university"},
				Content:   "Master of Science in computer engineering, graduated with honors.",
				Responses: responses("Education"),
			},
			{
				ID:        "personal.coffee",
				Keywords:  []string{"coffee", "latte art"},
				Content:   "Brews pour over every morning before standup.",
				Responses: responses("Coffee habits"),
			},
		},
	}
}

func mustIndex(t *testing.T, b *Base, opts ...IndexOption) *Index {
	t.Helper()
	idx, err := NewIndex(b, opts...)
	if err != nil {
		t.Fatalf("NewIndex: unexpected error: %v", err)
	}
	return idx
}

func TestFindRelevantTopics_SingleExactMatch(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, testBase())
	got := idx.FindRelevantTopics("Tell me about React hooks", 3)

	if len(got) != 1 {
		t.Fatalf("got %d matches, want 1: %+v", len(got), got)
	}
	m := got[0]
	if m.TopicID != "exp_react" {
		t.Errorf("TopicID = %q, want exp_react", m.TopicID)
	}
	if m.Type != MatchExact {
		t.Errorf("Type = %q, want exact", m.Type)
	}
	if m.Score != 6 {
		t.Errorf("Score = %v, want 6", m.Score)
	}
	if len(m.MatchedTerms) != 2 || m.MatchedTerms[0] != "react" || m.MatchedTerms[1] != "hooks" {
		t.Errorf("MatchedTerms = %v, want [react hooks]", m.MatchedTerms)
	}
	if m.Topic == nil || m.Topic.ID != "exp_react" {
		t.Error("Topic reference not set")
	}
}

func TestFindRelevantTopics_Tiers(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, testBase())

	tests := []struct {
		name     string
		query    string
		wantID   string
		wantType MatchType
	}{
		{name: "short keyword phrase", query: "Do you use Go at work?", wantID: "skills_go", wantType: MatchExact},
		{name: "multi word keyword", query: "I like latte art", wantID: "personal.coffee", wantType: MatchExact},
		{name: "semantic vocabulary", query: "Any backend projects?", wantID: "skills_go", wantType: MatchSemantic},
		{name: "substring fallback", query: "honors", wantID: "edu_degree", wantType: MatchSubstring},
		{name: "case insensitive", query: "GOLANG", wantID: "skills_go", wantType: MatchExact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := idx.FindRelevantTopics(tt.query, 3)
			if len(got) == 0 {
				t.Fatalf("FindRelevantTopics(%q) returned no matches", tt.query)
			}
			if got[0].TopicID != tt.wantID || got[0].Type != tt.wantType {
				t.Errorf("first match = (%s, %s), want (%s, %s)", got[0].TopicID, got[0].Type, tt.wantID, tt.wantType)
			}
		})
	}
}

func TestFindRelevantTopics_NoHits(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, testBase())
	for _, q := range []string{"", "   ", "zzz qqq", "?!"} {
		if got := idx.FindRelevantTopics(q, 3); len(got) != 0 {
			t.Errorf("FindRelevantTopics(%q) = %v, want empty", q, got)
		}
	}
}

func TestFindRelevantTopics_TieBreakAndTruncate(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, testBase())

	got := idx.FindRelevantTopics("coffee degree", 3)
	if ids := TopicIDs(got); len(ids) != 2 || ids[0] != "edu_degree" || ids[1] != "personal.coffee" {
		t.Fatalf("ids = %v, want [edu_degree personal.coffee]", ids)
	}

	got = idx.FindRelevantTopics("coffee degree", 1)
	if ids := TopicIDs(got); len(ids) != 1 || ids[0] != "edu_degree" {
		t.Fatalf("ids = %v, want [edu_degree]", ids)
	}
}

func TestFindRelevantTopics_DefaultLimit(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, testBase())
	got := idx.FindRelevantTopics("react golang degree coffee", 0)
	if len(got) != DefaultMaxResults {
		t.Errorf("got %d matches, want %d", len(got), DefaultMaxResults)
	}
}

func TestFindRelevantTopics_CachePreservesResults(t *testing.T) {
	t.Parallel()

	plain := mustIndex(t, testBase())
	cached := mustIndex(t, testBase(), WithCacheSize(2))

	for _, q := range []string{"react hooks", "coffee degree", "honors", "react hooks"} {
		want := TopicIDs(plain.FindRelevantTopics(q, 3))
		got := cached.FindRelevantTopics(q, 3)
		ids := TopicIDs(got)
		if len(ids) != len(want) {
			t.Fatalf("%q: cached ids = %v, want %v", q, ids, want)
		}
		for i := range ids {
			if ids[i] != want[i] {
				t.Fatalf("%q: cached ids = %v, want %v", q, ids, want)
			}
		}
		// Callers may mutate results without corrupting the cache.
		if len(got) > 0 {
			got[0].MatchedTerms[0] = "mutated"
		}
	}

	again := cached.FindRelevantTopics("react hooks", 3)
	if again[0].MatchedTerms[0] != "react" {
		t.Errorf("cached terms were mutated: %v", again[0].MatchedTerms)
	}
	if n := cached.cache.len(); n != 2 {
		t.Errorf("cache len = %d, want 2", n)
	}
}

func symbolBase() *Base {
	return &Base{
		Metadata: Metadata{Name: "Ada Example", Email: "ada@example.com"},
		Topics: TopicList{
			{ID: "skills_cpp", Keywords: []string{"C++"}, Content: "Systems programming with RAII everywhere.", Responses: responses("C++")},
			{ID: "skills_csharp", Keywords: []string{"C#"}, Content: "Unity tooling and desktop utilities.", Responses: responses("C#")},
			{ID: "skills_dotnet", Keywords: []string{".NET"}, Content: "Enterprise services hosted on Windows.", Responses: responses(".NET")},
			{ID: "skills_node", Keywords: []string{"node.js"}, Content: "Event driven scripting for glue code.", Responses: responses("Node")},
		},
	}
}

func exactIDs(matches []Match) []string {
	var ids []string
	for _, m := range matches {
		if m.Type == MatchExact {
			ids = append(ids, m.TopicID)
		}
	}
	return ids
}

func TestFindRelevantTopics_SymbolKeywords(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, symbolBase(), WithCacheSize(8))

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "plus plus", query: "C++", want: []string{"skills_cpp"}},
		{name: "sharp", query: "Do you know C#?", want: []string{"skills_csharp"}},
		{name: "bare letter", query: "what's your plan c", want: nil},
		{name: "leading dot", query: "Experience with .NET Core", want: []string{"skills_dotnet"}},
		{name: "dot inside word", query: "ASP.NET and C++", want: []string{"skills_cpp", "skills_dotnet"}},
		{name: "version suffix", query: "c++11 features", want: []string{"skills_cpp"}},
		{name: "glued prefix", query: "abc++", want: nil},
		{name: "inner separator", query: "node.js services", want: []string{"skills_node"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := exactIDs(idx.FindRelevantTopics(tt.query, 3))
			if len(got) != len(tt.want) {
				t.Fatalf("FindRelevantTopics(%q) exact = %v, want %v", tt.query, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("FindRelevantTopics(%q) exact = %v, want %v", tt.query, got, tt.want)
				}
			}
		})
	}
}

func TestFindRelevantTopics_SymbolQueriesCachedSeparately(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, symbolBase(), WithCacheSize(4))

	cpp := idx.FindRelevantTopics("C++", 3)
	csharp := idx.FindRelevantTopics("C#", 3)
	if len(cpp) == 0 || cpp[0].TopicID != "skills_cpp" {
		t.Fatalf("C++ matches = %+v", cpp)
	}
	if len(csharp) == 0 || csharp[0].TopicID != "skills_csharp" {
		t.Fatalf("C# matches = %+v", csharp)
	}
}

func TestCalculateConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		matches []Match
		want    float64
	}{
		{name: "no matches", matches: nil, want: 0.1},
		{name: "exact single term", matches: []Match{{Type: MatchExact, Score: 3, MatchedTerms: []string{"a"}}}, want: 0.95},
		{name: "semantic single term", matches: []Match{{Type: MatchSemantic, Score: 1, MatchedTerms: []string{"a"}}}, want: 0.5 + 0.2 + 0.2/3},
		{name: "substring", matches: []Match{{Type: MatchSubstring, Score: 0.5, MatchedTerms: []string{"a"}}}, want: 0.5 + 0.1 + 0.2*0.5/3},
		{name: "semantic two terms", matches: []Match{{Type: MatchSemantic, Score: 3, MatchedTerms: []string{"a", "b"}}}, want: 0.95},
		{
			name: "best by score",
			matches: []Match{
				{Type: MatchSubstring, Score: 0.5, MatchedTerms: []string{"a"}},
				{Type: MatchSemantic, Score: 1.5, MatchedTerms: []string{"b"}},
			},
			want: 0.5 + 0.2 + 0.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CalculateConfidence(tt.matches)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("CalculateConfidence = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewIndex_ValidationCollectsAllViolations(t *testing.T) {
	t.Parallel()

	b := testBase()
	b.Topics[0].Keywords = nil
	b.Topics[1].Content = "short"
	delete(b.Topics[2].Responses, style.Friend)
	b.Topics[3].Responses[style.HR] = "tiny"

	_, err := NewIndex(b)
	if !errors.Is(err, ErrInvalidBase) {
		t.Fatalf("err = %v, want ErrInvalidBase", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %T, want *ValidationError", err)
	}

	want := map[string]string{
		"exp_react":       "keywords",
		"skills_go":       "content",
		"edu_degree":      "responses.friend",
		"personal.coffee": "responses.hr",
	}
	if len(verr.Violations) != len(want) {
		t.Fatalf("got %d violations, want %d: %v", len(verr.Violations), len(want), verr)
	}
	for _, v := range verr.Violations {
		if want[v.Topic] != v.Field {
			t.Errorf("unexpected violation %s", v)
		}
	}
}

func TestValidate_DocumentLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		mut   func(*Base)
		field string
	}{
		{name: "no topics", mut: func(b *Base) { b.Topics = nil }, field: "knowledge_base"},
		{name: "duplicate id", mut: func(b *Base) { b.Topics[1].ID = "exp_react" }, field: "id"},
		{
			name:  "partial fallback copy",
			mut:   func(b *Base) { b.Fallbacks.NoMatch = map[style.Style]string{style.HR: "Nothing found."} },
			field: "fallback_responses.no_match.developer",
		},
		{
			name:  "unknown style override",
			mut:   func(b *Base) { b.Styles = map[style.Style]style.Override{"pirate": {}} },
			field: "communication_styles.pirate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := testBase()
			tt.mut(b)

			var verr *ValidationError
			if err := Validate(b); !errors.As(err, &verr) {
				t.Fatalf("Validate: err = %v, want *ValidationError", err)
			}
			for _, v := range verr.Violations {
				if v.Field == tt.field {
					return
				}
			}
			t.Errorf("no violation on %q in %v", tt.field, verr)
		})
	}
}

func TestParse_PreservesTopicOrder(t *testing.T) {
	t.Parallel()

	const jsonDoc = `{
  "metadata": {"name": "Ada"},
  "knowledge_base": {
    "zeta": {"keywords": ["zeta"], "content": "Zeta content is long enough.",
      "responses": {"hr": "Zeta for recruiters.", "developer": "Zeta for engineers.", "friend": "Zeta for friends!"}},
    "alpha": {"keywords": ["alpha"], "content": "Alpha content is long enough.",
      "responses": {"hr": "Alpha for recruiters.", "developer": "Alpha for engineers.", "friend": "Alpha for friends!"}}
  }
}`
	const yamlDoc = `
metadata:
  name: Ada
knowledge_base:
  zeta:
    keywords: [zeta]
    content: Zeta content is long enough.
    responses: {hr: Zeta for recruiters., developer: Zeta for engineers., friend: Zeta for friends!}
  alpha:
    keywords: [alpha]
    content: Alpha content is long enough.
    responses: {hr: Alpha for recruiters., developer: Alpha for engineers., friend: Alpha for friends!}
`

	for _, tc := range []struct {
		format Format
		doc    string
	}{{FormatJSON, jsonDoc}, {FormatYAML, yamlDoc}} {
		b, err := Parse([]byte(tc.doc), tc.format)
		if err != nil {
			t.Fatalf("Parse(%s): unexpected error: %v", tc.format, err)
		}
		if len(b.Topics) != 2 || b.Topics[0].ID != "zeta" || b.Topics[1].ID != "alpha" {
			t.Errorf("Parse(%s) order = %v, want [zeta alpha]", tc.format, b.Topics)
		}
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	b, err := LoadFile(filepath.Join("testdata", "kb.json"))
	if err != nil {
		t.Fatalf("LoadFile: unexpected error: %v", err)
	}
	if b.Metadata.Email != "ada@example.com" {
		t.Errorf("Metadata.Email = %q", b.Metadata.Email)
	}
	if len(b.Topics) != 3 || b.Topics[0].ID != "exp_react" {
		t.Errorf("unexpected topics: %v", b.Topics)
	}
	if got := b.StyleOverrides()[style.Friend].NoMatch; got == "" {
		t.Error("fallback_responses.no_match.friend not merged into overrides")
	}
}

func TestLoadFile_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	if _, err := LoadFile(filepath.Join(dir, "kb.toml")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("toml: err = %v, want ErrUnsupportedFormat", err)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing: err = %v, want os.ErrNotExist", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("knowledge_base: [1, 2]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Error("expected error for sequence knowledge_base")
	}
}

func TestTopic_Related(t *testing.T) {
	t.Parallel()

	b := testBase()
	if got := b.Topics[0].Related(); len(got) != 1 || got[0] != "skills_go" {
		t.Errorf("Related = %v, want [skills_go]", got)
	}
	if got := b.Topics[1].Related(); got != nil {
		t.Errorf("Related = %v, want nil", got)
	}
}

func TestCategory(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"exp_react":       "exp",
		"experience.go":   "experience",
		"skills":          "skills",
		"personal.coffee": "personal",
		"a_b.c":           "a",
	}
	for id, want := range tests {
		if got := Category(id); got != want {
			t.Errorf("Category(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	got := Tokenize("What's your React/Node.js experience? React again, OK")
	want := []string{"what", "your", "react", "node", "experience", "again"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokenize = %v, want %v", got, want)
		}
	}
}
