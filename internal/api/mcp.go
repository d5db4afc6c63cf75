package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/corvidai/retrieval-core/internal/workflow"
)

// MCPDeps holds the dependencies the MCP server's tools call into.
type MCPDeps struct {
	Orchestrator QueryOrchestrator
	DefaultUser  workflow.UserContext
}

// NewMCPServer creates an MCP server exposing the workflow engine's single
// operation as a "retrieve" tool (server.NewMCPServer + AddTool), in place
// of a knowledge-base-authoring tool set (add_context/recall/
// set_preference) that would assume a local single-user store this
// stateless engine doesn't keep.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"retrieval-core",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("Hybrid semantic+keyword retrieval over an access-controlled document corpus."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("retrieve",
			mcp.WithDescription("Run a query through the retrieval workflow and return ranked, access-filtered contexts."),
			mcp.WithString("query", mcp.Description("Natural-language query"), mcp.Required()),
			mcp.WithNumber("topK", mcp.Description("Maximum contexts to return (1-50, default 10)")),
			mcp.WithBoolean("useCache", mcp.Description("Whether to consult and update the semantic cache (default true)")),
		),
		mcpRetrieve(deps),
	)

	return s
}

func mcpRetrieve(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		topK := req.GetInt("topK", 10)
		useCache := req.GetBool("useCache", true)

		contexts, metrics, err := deps.Orchestrator.ExecuteWorkflow(ctx, workflow.QueryRequest{
			Text:     query,
			Mode:     workflow.ModeRetrievalOnly,
			TopK:     topK,
			UseCache: useCache,
		}, deps.DefaultUser)
		if err != nil {
			return mcpError(fmt.Sprintf("retrieve failed: %v", err)), nil
		}

		payload, err := json.Marshal(struct {
			Contexts []workflow.Context `json:"contexts"`
			Metrics  workflow.Metrics   `json:"metrics"`
		}{Contexts: contexts, Metrics: metrics})
		if err != nil {
			return mcpError(fmt.Sprintf("marshaling result: %v", err)), nil
		}

		return mcpText(string(payload)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
