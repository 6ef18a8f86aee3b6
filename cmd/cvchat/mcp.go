package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flemzord/cvchat/internal/chat"
	"github.com/flemzord/cvchat/internal/intent"
	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/style"
	"github.com/flemzord/cvchat/pkg/app"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func mcpCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the knowledge base as MCP tools over stdio",
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, err := loadRuntime(flags)
			if err != nil {
				return err
			}
			return server.ServeStdio(newMCPServer(rt))
		},
	}
}

// mcpTools answers tool calls. One session per style is kept so follow-up
// questions get conversational context.
type mcpTools struct {
	rt *app.Runtime

	mu       sync.Mutex
	sessions map[style.Style]*chat.Session
}

func newMCPServer(rt *app.Runtime) *server.MCPServer {
	t := &mcpTools{rt: rt, sessions: make(map[style.Style]*chat.Session)}
	s := server.NewMCPServer("cvchat", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Ask a question about the person described by the knowledge base."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithString("style",
			mcp.Description("Audience of the answer"),
			mcp.Enum(string(style.HR), string(style.Developer), string(style.Friend)),
		),
	), t.ask)

	s.AddTool(mcp.NewTool("find_topics",
		mcp.WithDescription("Rank the knowledge base topics relevant to a query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free-text query")),
		mcp.WithNumber("max_results", mcp.Description("Maximum number of topics to return")),
	), t.findTopics)

	s.AddTool(mcp.NewTool("classify_intent",
		mcp.WithDescription("Classify a query as fact retrieval or conversational synthesis."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free-text query")),
	), t.classify)

	return s
}

func (t *mcpTools) session(st style.Style) (*chat.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[st]; ok {
		return s, nil
	}
	s, err := t.rt.Engine.NewSession("", st)
	if err != nil {
		return nil, err
	}
	t.sessions[st] = s
	return s, nil
}

func (t *mcpTools) ask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := t.session(t.rt.Style(req.GetString("style", "")))
	if err != nil {
		return nil, err
	}
	reply, err := sess.Ask(ctx, question)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(reply.Text), nil
}

type topicResult struct {
	ID           string   `json:"id"`
	Score        float64  `json:"score"`
	Type         string   `json:"type"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

func (t *mcpTools) findTopics(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("max_results", knowledge.DefaultMaxResults)

	idx := t.rt.Engine.Index()
	matches := idx.FindRelevantTopics(query, limit)
	out := struct {
		Topics     []topicResult `json:"topics"`
		Confidence float64       `json:"confidence"`
	}{
		Topics:     make([]topicResult, 0, len(matches)),
		Confidence: knowledge.CalculateConfidence(matches),
	}
	for _, m := range matches {
		out.Topics = append(out.Topics, topicResult{
			ID:           m.TopicID,
			Score:        m.Score,
			Type:         string(m.Type),
			MatchedTerms: m.MatchedTerms,
		})
	}
	return jsonResult(out)
}

func (t *mcpTools) classify(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(intent.Classify(query))), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
