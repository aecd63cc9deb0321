package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/docintel/internal/config"
	"github.com/kirillkom/docintel/internal/core/domain"
)

type ingestFake struct {
	uploads     [][]domain.UploadFile
	reprocessed []string
	err         error
}

func (f *ingestFake) UploadMany(_ context.Context, files []domain.UploadFile) []domain.UploadResult {
	f.uploads = append(f.uploads, files)
	results := make([]domain.UploadResult, 0, len(files))
	for i, file := range files {
		if len(file.Body) == 0 {
			msg := file.Filename + " is empty"
			results = append(results, domain.UploadResult{Filename: file.Filename, Error: &msg})
			continue
		}
		results = append(results, domain.UploadResult{
			Filename:   file.Filename,
			DocumentID: "doc-" + string(rune('1'+i)),
			Status:     domain.StatusPending,
		})
	}
	return results
}

func (f *ingestFake) Reprocess(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.reprocessed = append(f.reprocessed, id)
	return nil
}

type queryFake struct {
	err       error
	lastLimit int
}

func (f *queryFake) Search(_ context.Context, query string, limit int) (*domain.SearchResult, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SearchResult{Query: query, Hits: []domain.Source{{DocumentID: "doc-1", PageStart: 1, PageEnd: 1, Score: 0.9, Snippet: "hit"}}}, nil
}

func (f *queryFake) Answer(_ context.Context, question string, limit int) (*domain.Answer, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Answer{Question: question, Text: "ok", Sources: []domain.Source{}}, nil
}

type docsFake struct {
	err     error
	deleted []string
}

func (f *docsFake) List(_ context.Context, limit, offset int) (*domain.DocumentPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.DocumentPage{Total: 1, Items: []domain.Document{{ID: "doc-1", Filename: "a.pdf", Status: domain.StatusCompleted}}}, nil
}

func (f *docsFake) Detail(_ context.Context, id string) (*domain.DocumentDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.DocumentDetail{
		Document: domain.Document{ID: id, Filename: "a.pdf", Status: domain.StatusCompleted},
		Pages:    []domain.PageSummary{{Number: 1, TextLen: 42}},
	}, nil
}

func (f *docsFake) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type healthFake struct {
	report domain.HealthReport
}

func (f healthFake) Check(context.Context) domain.HealthReport {
	return f.report
}

func newTestHandler(cfg config.Config, query *queryFake, docs *docsFake) http.Handler {
	if query == nil {
		query = &queryFake{}
	}
	if docs == nil {
		docs = &docsFake{}
	}
	return NewRouter(cfg, Services{
		Ingest:    &ingestFake{},
		Query:     query,
		Documents: docs,
		Remover:   docs,
		Health:    healthFake{report: domain.HealthReport{OK: true}},
		Models:    []config.ModelSpec{{Name: "llama3.1:8b", Temperature: 0.1, TopP: 0.9}},
	}).Handler()
}

func TestRAGMapsDomainInvalidInputTo400(t *testing.T) {
	handler := newTestHandler(config.Config{}, &queryFake{err: domain.WrapError(domain.ErrInvalidInput, "search", errors.New("k must be between 1 and 50"))}, nil)

	payload, _ := json.Marshal(map[string]any{"query": "test", "k": 99})
	req := httptest.NewRequest(http.MethodPost, "/v1/search/rag", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSearchMapsIndexUnavailableTo503(t *testing.T) {
	handler := newTestHandler(config.Config{}, &queryFake{err: domain.WrapError(domain.ErrIndexUnavailable, "qdrant search", errors.New("connection refused"))}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/search?query=pumps", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestGetDocumentReturns404ForNotFound(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, &docsFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id=missing"))})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestDeleteDocumentReturns404ForNotFound(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, &docsFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id=missing"))})

	req := httptest.NewRequest(http.MethodDelete, "/v1/documents/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrUnsupportedFormat, "upload", errors.New(".exe")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrEmptyInput, "upload", errors.New("empty")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrSchemaValidation, "annotate", errors.New("bad json")), http.StatusBadGateway},
		{domain.WrapError(domain.ErrTemporary, "generate", errors.New("502")), http.StatusServiceUnavailable},
		{domain.WrapError(domain.ErrUnauthorized, "generate", errors.New("401")), http.StatusUnauthorized},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
