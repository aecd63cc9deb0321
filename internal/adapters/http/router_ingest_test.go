package httpadapter

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/docintel/internal/config"
	"github.com/kirillkom/docintel/internal/core/domain"
)

func multipartBody(t *testing.T, field string, files map[string]string, order []string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, name := range order {
		part, err := writer.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write([]byte(files[name])); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzReportsUnavailableCollaborator(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{
		Health: healthFake{report: domain.HealthReport{OK: false, LLM: domain.HealthComponent{Detail: "model missing"}}},
	}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
	var report domain.HealthReport
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if report.LLM.Detail != "model missing" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestUploadDocumentsReturnsOneResultPerFile(t *testing.T) {
	ingest := &ingestFake{}
	handler := NewRouter(config.Config{}, Services{Ingest: ingest}).Handler()

	body, contentType := multipartBody(t, "files", map[string]string{"a.pdf": "%PDF", "empty.pdf": ""}, []string{"a.pdf", "empty.pdf"})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp struct {
		Results []domain.UploadResult `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %+v", resp.Results)
	}
	if resp.Results[0].DocumentID == "" || resp.Results[0].Error != nil {
		t.Fatalf("first file must succeed: %+v", resp.Results[0])
	}
	if resp.Results[1].DocumentID != "" || resp.Results[1].Error == nil {
		t.Fatalf("empty file must fail with zero id: %+v", resp.Results[1])
	}
	if len(ingest.uploads) != 1 || ingest.uploads[0][0].Filename != "a.pdf" || string(ingest.uploads[0][0].Body) != "%PDF" {
		t.Fatalf("unexpected files passed to ingest: %+v", ingest.uploads)
	}
}

func TestUploadAcceptsSingularFileField(t *testing.T) {
	ingest := &ingestFake{}
	handler := NewRouter(config.Config{}, Services{Ingest: ingest}).Handler()

	body, contentType := multipartBody(t, "file", map[string]string{"scan.png": "png"}, []string{"scan.png"})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK || len(ingest.uploads) != 1 {
		t.Fatalf("expected upload via 'file' field, got %d", res.Code)
	}
}

func TestUploadDocumentMissingMultipartField(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{Ingest: &ingestFake{}}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	handler := NewRouter(config.Config{APIMaxUploadBytes: 64}, Services{Ingest: &ingestFake{}}).Handler()

	body, contentType := multipartBody(t, "files", map[string]string{"big.pdf": strings.Repeat("x", 1024)}, []string{"big.pdf"})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestListDocumentsValidatesQuery(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents?limit=ten", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric limit, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/documents?limit=5&offset=0", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var page domain.DocumentPage
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != "doc-1" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestDeleteAndReprocessDocument(t *testing.T) {
	docs := &docsFake{}
	ingest := &ingestFake{}
	handler := NewRouter(config.Config{}, Services{Ingest: ingest, Documents: docs, Remover: docs}).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-9", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"doc_id":"doc-9"`) {
		t.Fatalf("unexpected delete response %d %s", res.Code, res.Body.String())
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/documents/doc-9/reprocess", nil))
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if len(docs.deleted) != 1 || len(ingest.reprocessed) != 1 || ingest.reprocessed[0] != "doc-9" {
		t.Fatalf("unexpected calls: deleted=%v reprocessed=%v", docs.deleted, ingest.reprocessed)
	}
}

func TestSearchPassesK(t *testing.T) {
	query := &queryFake{}
	handler := newTestHandler(config.Config{}, query, nil)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/search?query=valve&k=7", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if query.lastLimit != 7 {
		t.Fatalf("expected k=7, got %d", query.lastLimit)
	}
	if !strings.Contains(res.Body.String(), `"results"`) {
		t.Fatalf("unexpected body %s", res.Body.String())
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/search", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without query, got %d", res.Code)
	}
}

func TestListModels(t *testing.T) {
	handler := newTestHandler(config.Config{GenRuntime: "ollama", GenModel: "llama3.1:8b"}, nil, nil)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	var resp struct {
		Runtime string             `json:"runtime"`
		Models  []config.ModelSpec `json:"models"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Runtime != "ollama" || len(resp.Models) != 1 || resp.Models[0].Name != "llama3.1:8b" {
		t.Fatalf("unexpected models response: %+v", resp)
	}
}
