// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the Ansuz tool registry for LLM integration via stdio
// transport. Calls go through the same registry as the agent loop, so
// the allowlist and argument validation apply identically.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/agent"
)

// Server wraps the MCP server with the Ansuz tools.
type Server struct {
	mcp      *server.MCPServer
	registry *agent.Registry
	log      *slog.Logger
}

// New creates a new MCP server with all Ansuz tools registered.
func New(registry *agent.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{registry: registry, log: log}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool(agent.ToolSearchDocs,
		mcp.WithDescription("Semantic search over the ingested documents. Returns matching chunks with file, chunk_id, snippet and score."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("top_k", mcp.Description("Number of results to return, 1-10 (default 5)")),
	), s.searchDocs)

	s.mcp.AddTool(mcp.NewTool(agent.ToolWriteNote,
		mcp.WithDescription("Write a Markdown note into the sandboxed notes directory. The filename is derived from the title."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title, 1-120 characters")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown note body")),
	), s.writeNote)

	s.mcp.AddTool(mcp.NewTool(agent.ToolMakeTodo,
		mcp.WithDescription("Extract action items from free text. Bulleted or numbered lines win; otherwise sentences are used, capped at 8."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to extract todos from")),
	), s.makeTodo)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// execute routes a call through the shared registry and renders the
// result as JSON text. Tool failures come back as tool results, not
// protocol errors, so the client model can read them.
func (s *Server) execute(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	out, err := s.registry.Execute(ctx, name, args)
	if err != nil {
		s.log.Warn("mcp tool failed", slog.String("tool", name), slog.String("error", err.Error()))
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) searchDocs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := map[string]any{"query": query}
	if topK, ok := req.GetArguments()["top_k"]; ok {
		args["top_k"] = topK
	}
	return s.execute(ctx, agent.ToolSearchDocs, args)
}

func (s *Server) writeNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.execute(ctx, agent.ToolWriteNote, map[string]any{"title": title, "content": content})
}

func (s *Server) makeTodo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.execute(ctx, agent.ToolMakeTodo, map[string]any{"text": text})
}

// Serve builds a server over the registry and blocks on stdio until the
// client disconnects or ctx is cancelled.
func Serve(ctx context.Context, registry *agent.Registry, log *slog.Logger) error {
	s := New(registry, log)

	done := make(chan error, 1)
	go func() { done <- s.ServeStdio() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
