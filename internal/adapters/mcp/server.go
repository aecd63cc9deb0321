package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docintel/internal/core/ports"
)

const (
	serverName    = "docintel"
	serverVersion = "1.0.0"
)

// Server exposes document search, question answering and document status as MCP tools.
type Server struct {
	query  ports.DocumentQueryService
	docs   ports.DocumentReader
	logger *slog.Logger
	mcp    *server.MCPServer
}

func New(query ports.DocumentQueryService, docs ports.DocumentReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		query:  query,
		docs:   docs,
		logger: logger,
		mcp:    server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Semantic search over ingested documents. Returns scored page-level snippets."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language search text")),
		mcp.WithNumber("k", mcp.Description("Number of hits, 1-50. Defaults to 10.")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("ask_documents",
		mcp.WithDescription("Answer a question using only the ingested documents, with cited sources."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question to answer")),
		mcp.WithNumber("k", mcp.Description("Number of retrieved snippets. Defaults to 5.")),
	), s.askDocuments)

	s.mcp.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Processing status, page summaries and AI annotation of one document."),
		mcp.WithString("doc_id", mcp.Required(), mcp.Description("Document id returned by upload")),
	), s.getDocument)
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.query.Search(ctx, query, req.GetInt("k", 0))
	if err != nil {
		return s.toolError("search_documents", err), nil
	}
	return jsonResult(result)
}

func (s *Server) askDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := s.query.Answer(ctx, question, req.GetInt("k", 0))
	if err != nil {
		return s.toolError("ask_documents", err), nil
	}
	return jsonResult(answer)
}

func (s *Server) getDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.docs.Detail(ctx, id)
	if err != nil {
		return s.toolError("get_document", err), nil
	}
	return jsonResult(detail)
}

// toolError reports use case failures as tool results so the client model can react to them.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("mcp tool failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(body)), nil
}
