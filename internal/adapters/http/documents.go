package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const multipartMemory = 32 << 20

func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || r.ContentLength > rt.maxUploadBytes {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", rt.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "send multipart/form-data with one or more 'files' parts")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "send multipart/form-data with one or more 'files' parts")
		return
	}

	files := make([]domain.UploadFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			rt.writeServiceError(w, r, fmt.Errorf("read upload %s: %w", fh.Filename, err))
			return
		}
		files = append(files, domain.UploadFile{
			Filename: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Size:     fh.Size,
			Body:     data,
		})
	}

	results := rt.svc.Ingest.UploadMany(r.Context(), files)
	if rt.svc.Metrics != nil {
		for _, res := range results {
			status := string(res.Status)
			if res.Error != nil {
				status = "rejected"
			}
			rt.svc.Metrics.RecordUpload(status)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := rt.svc.Documents.List(r.Context(), limit, offset)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	detail, err := rt.svc.Documents.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := rt.svc.Remover.Delete(r.Context(), id); err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "doc_id": id})
}

func (rt *Router) reprocessDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := rt.svc.Ingest.Reprocess(r.Context(), id); err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "doc_id": id})
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		query = strings.TrimSpace(r.URL.Query().Get("q"))
	}
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	k, err := queryInt(r, "k")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	result, err := rt.svc.Query.Search(r.Context(), query, k)
	rt.recordQuery("search", result, err, start)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": result.Query, "results": result.Hits})
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string `json:"query"`
		Question string `json:"question"`
		K        int    `json:"k"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	question := strings.TrimSpace(req.Query)
	if question == "" {
		question = strings.TrimSpace(req.Question)
	}
	if question == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	start := time.Now()
	answer, err := rt.svc.Query.Answer(r.Context(), question, req.K)
	if rt.svc.Metrics != nil {
		hits := 0
		if answer != nil {
			hits = len(answer.Sources)
		}
		rt.svc.Metrics.RecordQuery("rag", hits, time.Since(start), err)
	}
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answer": answer.Text, "sources": answer.Sources})
}

func (rt *Router) recordQuery(kind string, result *domain.SearchResult, err error, start time.Time) {
	if rt.svc.Metrics == nil {
		return
	}
	hits := 0
	if result != nil {
		hits = len(result.Hits)
	}
	rt.svc.Metrics.RecordQuery(kind, hits, time.Since(start), err)
}

func decodeJSONBody(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(out)
}

// queryInt parses an optional integer query parameter; absent means zero.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
