package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/docintel/internal/core/domain"
)

type queryStub struct {
	limit int
	err   error
}

func (q *queryStub) Search(_ context.Context, query string, limit int) (*domain.SearchResult, error) {
	q.limit = limit
	if q.err != nil {
		return nil, q.err
	}
	return &domain.SearchResult{Query: query, Hits: []domain.Source{{DocumentID: "d1", Filename: "a.pdf", PageStart: 2, PageEnd: 2, Score: 0.8}}}, nil
}

func (q *queryStub) Answer(_ context.Context, question string, limit int) (*domain.Answer, error) {
	q.limit = limit
	return &domain.Answer{Question: question, Text: domain.NoRelevantInformation, Sources: []domain.Source{}}, nil
}

type docsStub struct{}

func (docsStub) List(context.Context, int, int) (*domain.DocumentPage, error) {
	return &domain.DocumentPage{}, nil
}

func (docsStub) Detail(_ context.Context, id string) (*domain.DocumentDetail, error) {
	if id != "d1" {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New(id))
	}
	return &domain.DocumentDetail{Document: domain.Document{ID: id, Status: domain.StatusCompleted}}, nil
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	content, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return content.Text
}

func TestSearchDocumentsTool(t *testing.T) {
	query := &queryStub{}
	s := New(query, docsStub{}, nil)

	res, err := s.searchDocuments(context.Background(), call("search_documents", map[string]any{"query": "pump", "k": float64(3)}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, 3, query.limit)

	var decoded domain.SearchResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &decoded))
	require.Len(t, decoded.Hits, 1)
	assert.Equal(t, "a.pdf", decoded.Hits[0].Filename)
}

func TestSearchDocumentsRequiresQuery(t *testing.T) {
	s := New(&queryStub{}, docsStub{}, nil)

	res, err := s.searchDocuments(context.Background(), call("search_documents", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSearchDocumentsReportsBackendFailure(t *testing.T) {
	s := New(&queryStub{err: domain.WrapError(domain.ErrIndexUnavailable, "search", errors.New("down"))}, docsStub{}, nil)

	res, err := s.searchDocuments(context.Background(), call("search_documents", map[string]any{"query": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "vector index unavailable")
}

func TestAskDocumentsTool(t *testing.T) {
	query := &queryStub{}
	s := New(query, docsStub{}, nil)

	res, err := s.askDocuments(context.Background(), call("ask_documents", map[string]any{"question": "who signed?"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, 0, query.limit)
	assert.Contains(t, text(t, res), domain.NoRelevantInformation)
}

func TestGetDocumentTool(t *testing.T) {
	s := New(&queryStub{}, docsStub{}, nil)

	res, err := s.getDocument(context.Background(), call("get_document", map[string]any{"doc_id": "d1"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), `"status": "completed"`)

	res, err = s.getDocument(context.Background(), call("get_document", map[string]any{"doc_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestToolsAreRegistered(t *testing.T) {
	s := New(&queryStub{}, docsStub{}, nil)
	resp := s.mcp.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, name := range []string{"search_documents", "ask_documents", "get_document"} {
		assert.Contains(t, string(raw), `"name":"`+name+`"`)
	}
}
