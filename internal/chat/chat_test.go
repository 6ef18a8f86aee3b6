package chat_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/flemzord/cvchat/internal/chat"
	"github.com/flemzord/cvchat/internal/conversation"
	"github.com/flemzord/cvchat/internal/fallback"
	"github.com/flemzord/cvchat/internal/intent"
	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/memory"
	"github.com/flemzord/cvchat/internal/oracle"
	"github.com/flemzord/cvchat/internal/oracle/oracletest"
	"github.com/flemzord/cvchat/internal/style"
)

const kbPath = "../knowledge/testdata/kb.json"

func newIndex(t *testing.T) *knowledge.Index {
	t.Helper()
	base, err := knowledge.LoadFile(kbPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	idx, err := knowledge.NewIndex(base)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	return idx
}

func newEngine(t *testing.T, opts ...chat.Option) *chat.Engine {
	t.Helper()
	e, err := chat.NewEngine(newIndex(t), opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func newSession(t *testing.T, e *chat.Engine, s style.Style) *chat.Session {
	t.Helper()
	sess, err := e.NewSession("", s)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return sess
}

func newCaller(t *testing.T, mock *oracletest.MockOracle, base *knowledge.Base) *oracle.Caller {
	t.Helper()
	c, err := oracle.NewCaller(mock)
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}
	if err := c.Initialize(context.Background(), base); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return c
}

type recorder struct {
	mu      sync.Mutex
	replies []chat.Reply
}

func (r *recorder) ObserveReply(reply chat.Reply) {
	r.mu.Lock()
	r.replies = append(r.replies, reply)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replies)
}

func TestNewEngine_NilIndex(t *testing.T) {
	t.Parallel()

	if _, err := chat.NewEngine(nil); !errors.Is(err, chat.ErrNoIndex) {
		t.Fatalf("err = %v, want ErrNoIndex", err)
	}
}

func TestSession_AskAnswersFromKnowledge(t *testing.T) {
	t.Parallel()

	obs := &recorder{}
	e := newEngine(t, chat.WithObserver(obs))
	sess := newSession(t, e, style.Developer)

	reply, err := sess.Ask(context.Background(), "  tell me about react hooks  ")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply.Source != chat.SourceEngine {
		t.Errorf("source = %q, want engine", reply.Source)
	}
	if !strings.Contains(reply.Text, "React apps with hooks") {
		t.Errorf("text = %q, want developer react answer", reply.Text)
	}
	if len(reply.TopicIDs) == 0 || reply.TopicIDs[0] != "exp_react" {
		t.Errorf("topics = %v, want exp_react first", reply.TopicIDs)
	}
	if reply.Intent != intent.ConversationalSynthesis {
		t.Errorf("intent = %q", reply.Intent)
	}
	if reply.QueryID == "" || reply.SessionID != sess.ID() {
		t.Errorf("ids = %q/%q", reply.QueryID, reply.SessionID)
	}

	h := sess.History()
	if len(h) != 1 || h[0].UserMessage != "tell me about react hooks" {
		t.Fatalf("history = %+v", h)
	}
	if obs.len() != 1 {
		t.Errorf("observed %d replies, want 1", obs.len())
	}
}

func TestSession_AskErrors(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	tests := []struct {
		name  string
		style style.Style
		query string
		want  error
	}{
		{"empty query", style.HR, "   ", chat.ErrEmptyQuery},
		{"no style", "", "tell me about go", conversation.ErrStyleNotSet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sess := newSession(t, e, tt.style)
			if _, err := sess.Ask(context.Background(), tt.query); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSession_FallbackLadder(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	sess := newSession(t, e, style.Developer)
	ctx := context.Background()

	first, err := sess.Ask(ctx, "what is your favourite cheese")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if first.Source != chat.SourceFallback || first.Fallback == nil {
		t.Fatalf("reply = %+v, want fallback", first)
	}
	if first.Fallback.Reason != fallback.ReasonNoMatches || first.Fallback.Action != fallback.ActionRephrase {
		t.Errorf("fallback = %+v, want no_matches/rephrase", first.Fallback)
	}

	second, err := sess.Ask(ctx, "What is your favourite cheese?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if second.Fallback == nil || second.Fallback.Action != fallback.ActionEmail {
		t.Fatalf("second fallback = %+v, want email", second.Fallback)
	}
	if !second.Fallback.ShowFallbackButton {
		t.Error("email action should show the fallback button")
	}
	if len(sess.History()) != 2 {
		t.Errorf("history len = %d, want 2", len(sess.History()))
	}

	if err := sess.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	again, _ := sess.Ask(ctx, "what is your favourite cheese")
	if again.Fallback == nil || again.Fallback.Action != fallback.ActionRephrase {
		t.Errorf("after reset fallback = %+v, want rephrase", again.Fallback)
	}
}

func TestSession_FallbackUsesKnowledgeBaseCopy(t *testing.T) {
	t.Parallel()

	base, err := knowledge.LoadFile(kbPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	base.Fallbacks = knowledge.Fallbacks{
		NoMatch: map[style.Style]string{
			style.HR:        "NOMATCH-hr copy for recruiters.",
			style.Developer: "NOMATCH-dev copy for engineers.",
			style.Friend:    "NOMATCH-friend copy for pals.",
		},
	}
	idx, err := knowledge.NewIndex(base)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	e, err := chat.NewEngine(idx)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	sess := newSession(t, e, style.Developer)

	reply, err := sess.Ask(context.Background(), "zzzz qqqq")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply.Fallback == nil || reply.Fallback.Reason != fallback.ReasonNoMatches {
		t.Fatalf("reply = %+v, want no_matches fallback", reply)
	}
	if !strings.HasPrefix(reply.Text, "NOMATCH-dev copy for engineers.") {
		t.Errorf("Text = %q, want knowledge-base no_match copy first", reply.Text)
	}
}

func TestSession_OracleFirstForConversation(t *testing.T) {
	t.Parallel()

	mock := &oracletest.MockOracle{
		ProcessQueryFunc: func(_ context.Context, req oracle.Request) (oracle.Answer, error) {
			return oracle.Answer{Text: "synthesised: " + req.Query, Confidence: 0.9, MatchedSections: []string{"skills_go"}}, nil
		},
	}
	idx := newIndex(t)
	e, err := chat.NewEngine(idx, chat.WithOracle(newCaller(t, mock, idx.Base())))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	sess := newSession(t, e, style.HR)
	ctx := context.Background()

	reply, err := sess.Ask(ctx, "tell me about react hooks")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply.Source != chat.SourceOracle || reply.Text != "synthesised: tell me about react hooks" {
		t.Errorf("reply = %+v, want oracle answer", reply)
	}
	if len(reply.TopicIDs) != 1 || reply.TopicIDs[0] != "skills_go" {
		t.Errorf("topics = %v, want oracle sections", reply.TopicIDs)
	}

	// Fact lookups never reach the oracle.
	fact, err := sess.Ask(ctx, "what is your degree")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if fact.Source != chat.SourceEngine {
		t.Errorf("fact source = %q, want engine", fact.Source)
	}
	if mock.Calls() != 1 {
		t.Errorf("oracle calls = %d, want 1", mock.Calls())
	}

	// The second call carries the first turn as context.
	if _, err := sess.Ask(ctx, "tell me more about react"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	last := mock.Requests[len(mock.Requests)-1]
	if len(last.Context) == 0 || last.SessionID != sess.ID() || last.Style != style.HR {
		t.Errorf("request = %+v, want context and session", last)
	}
}

func TestSession_OracleFailureFallsBackToEngine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		answer oracle.Answer
		err    error
		reason string
	}{
		{"low confidence", oracle.Answer{Text: "maybe", Confidence: 0.1}, nil, "low_confidence"},
		{"remote failure", oracle.Answer{}, errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := &oracletest.MockOracle{
				ProcessQueryFunc: func(context.Context, oracle.Request) (oracle.Answer, error) {
					return tt.answer, tt.err
				},
			}
			idx := newIndex(t)
			e, err := chat.NewEngine(idx, chat.WithOracle(newCaller(t, mock, idx.Base())))
			if err != nil {
				t.Fatalf("NewEngine: %v", err)
			}
			sess := newSession(t, e, style.Developer)

			reply, err := sess.Ask(context.Background(), "tell me about react hooks")
			if err != nil {
				t.Fatalf("Ask: %v", err)
			}
			if reply.Source != chat.SourceEngine {
				t.Errorf("source = %q, want engine", reply.Source)
			}
			if reply.OracleError != tt.reason {
				t.Errorf("oracle error = %q, want %q", reply.OracleError, tt.reason)
			}
			if len(sess.History()) != 1 {
				t.Errorf("history len = %d, want 1", len(sess.History()))
			}
		})
	}
}

func TestSession_Handoff(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	sess := newSession(t, e, style.HR)
	if _, err := sess.Ask(context.Background(), "tell me about go"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	link, err := sess.Handoff("Grace Hopper", "grace@example.com", "")
	if err != nil {
		t.Fatalf("Handoff: %v", err)
	}
	if !strings.HasPrefix(link, "mailto:ada@example.com?") {
		t.Errorf("link = %q, want mailto to the owner", link)
	}
	if !strings.Contains(link, "go") {
		t.Errorf("link = %q, want latest question quoted", link)
	}

	if _, err := sess.Handoff("G", "grace@example.com", "hi"); !errors.Is(err, fallback.ErrInvalidName) {
		t.Errorf("err = %v, want ErrInvalidName", err)
	}
}

func TestSession_RestoresFromHistoryStore(t *testing.T) {
	t.Parallel()

	store := memory.NewInMemoryHistoryStore()
	e := newEngine(t, chat.WithHistoryStore(store))

	first, err := e.NewSession("visitor-1", style.Friend)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := first.Ask(context.Background(), "tell me about go"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	restored, err := e.NewSession("visitor-1", "")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if len(restored.History()) != 1 {
		t.Fatalf("restored history len = %d, want 1", len(restored.History()))
	}
	if s, ok := restored.Style(); !ok || s != style.Friend {
		t.Errorf("restored style = %q, want friend", s)
	}
}

func TestSession_GreetingAndStats(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	sess := newSession(t, e, "")
	if got := sess.SetStyle("pirate"); got != style.Fallback {
		t.Errorf("SetStyle = %q, want fallback", got)
	}
	if sess.Greeting() == "" {
		t.Error("greeting is empty")
	}
	if _, err := sess.Ask(context.Background(), "tell me about react"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	st := sess.Stats()
	if st.Turns != 1 || st.SessionID != sess.ID() {
		t.Errorf("stats = %+v", st)
	}
	if sess.LastActive().Before(sess.CreatedAt()) {
		t.Error("last active before creation")
	}
}

func TestEngine_SwapIndexReinitialisesOracle(t *testing.T) {
	t.Parallel()

	mock := &oracletest.MockOracle{}
	idx := newIndex(t)
	e, err := chat.NewEngine(idx, chat.WithOracle(newCaller(t, mock, idx.Base())))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	next := newIndex(t)
	e.SwapIndex(next)
	if e.Index() != next {
		t.Error("index not swapped")
	}
	if mock.InitializeCalls != 2 {
		t.Errorf("initialize calls = %d, want 2", mock.InitializeCalls)
	}

	e.SwapIndex(nil)
	if e.Index() != next {
		t.Error("nil swap replaced the index")
	}
}

func TestLocalOracle(t *testing.T) {
	t.Parallel()

	o := chat.NewLocalOracle(nil)
	ctx := context.Background()

	if _, err := o.ProcessQuery(ctx, oracle.Request{Query: "go"}); !errors.Is(err, oracle.ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
	if err := o.HealthCheck(ctx); !errors.Is(err, oracle.ErrNotInitialized) {
		t.Fatalf("health = %v, want ErrNotInitialized", err)
	}

	base, err := knowledge.LoadFile(kbPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := o.Initialize(ctx, base, oracle.Config{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ans, err := o.ProcessQuery(ctx, oracle.Request{
		SessionID: "s1",
		Query:     "tell me about golang",
		Style:     style.Developer,
		Context:   []memory.Turn{{UserMessage: "react?", BotResponse: "yes", MatchedTopicIDs: []string{"exp_react"}}},
	})
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if !strings.Contains(ans.Text, "Go is my default") {
		t.Errorf("text = %q", ans.Text)
	}
	if ans.Confidence <= 0 || len(ans.MatchedSections) == 0 || ans.MatchedSections[0] != "skills_go" {
		t.Errorf("answer = %+v", ans)
	}
	if err := o.HealthCheck(ctx); err != nil {
		t.Errorf("health = %v", err)
	}
}
