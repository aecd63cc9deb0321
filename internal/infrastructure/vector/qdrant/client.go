package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/infrastructure/resilience"
)

type Options struct {
	APIKey       string
	VectorSize   int
	Distance     string
	BatchSize    int
	SnippetChars int
	// ScrollPageSize bounds each page of the unfiltered scan used when filtered delete fails.
	ScrollPageSize     int
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

// Client talks to the Qdrant REST API. Every point carries the doc_id payload key, which has a
// keyword index so document-scoped deletes do not scan the collection.
type Client struct {
	baseURL    string
	collection string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *slog.Logger

	vectorSize   int
	distance     string
	batchSize    int
	snippetChars int
	scrollPage   int

	ensureMu sync.Mutex
	ensured  bool
}

func New(baseURL, collection string, opts Options) *Client {
	if opts.Distance == "" {
		opts.Distance = "Cosine"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.SnippetChars <= 0 {
		opts.SnippetChars = 500
	}
	if opts.ScrollPageSize <= 0 {
		opts.ScrollPageSize = 1000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		collection:   collection,
		apiKey:       opts.APIKey,
		httpClient:   &http.Client{Timeout: opts.Timeout},
		executor:     opts.ResilienceExecutor,
		logger:       opts.Logger,
		vectorSize:   opts.VectorSize,
		distance:     opts.Distance,
		batchSize:    opts.BatchSize,
		snippetChars: opts.SnippetChars,
		scrollPage:   opts.ScrollPageSize,
	}
}

// EnsureReady creates the collection when absent, verifies its vector size and makes sure the
// doc_id payload index exists. Safe to call on every startup.
func (c *Client) EnsureReady(ctx context.Context) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensured {
		return nil
	}

	size, exists, err := c.collectionVectorSize(ctx)
	if err != nil {
		return c.wrap("qdrant get collection", err)
	}
	if !exists {
		if err := c.createCollection(ctx); err != nil {
			return c.wrap("qdrant create collection", err)
		}
	} else if c.vectorSize > 0 && size != c.vectorSize {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"qdrant ensure collection",
			fmt.Errorf("collection %s has vector size %d, configured %d", c.collection, size, c.vectorSize),
		)
	}

	if err := c.createPayloadIndex(ctx); err != nil {
		return c.wrap("qdrant create payload index", err)
	}
	c.ensured = true
	return nil
}

func (c *Client) collectionVectorSize(ctx context.Context) (int, bool, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors json.RawMessage `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := c.do(ctx, "qdrant.get_collection", http.MethodGet, "/collections/"+c.collection, nil, &resp)
	if err != nil {
		var statusErr *resilience.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}

	var single struct {
		Size int `json:"size"`
	}
	if err := json.Unmarshal(resp.Result.Config.Params.Vectors, &single); err != nil {
		return 0, true, fmt.Errorf("decode collection vectors config: %w", err)
	}
	return single.Size, true, nil
}

func (c *Client) createCollection(ctx context.Context) error {
	if c.vectorSize <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant create collection", errors.New("vector size is not configured"))
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.vectorSize,
			"distance": c.distance,
		},
	}
	err := c.do(ctx, "qdrant.create_collection", http.MethodPut, "/collections/"+c.collection, body, nil)
	var statusErr *resilience.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		return nil
	}
	return err
}

func (c *Client) createPayloadIndex(ctx context.Context) error {
	body := map[string]any{
		"field_name":   "doc_id",
		"field_schema": "keyword",
	}
	return c.do(ctx, "qdrant.create_index", http.MethodPut, c.collectionPath("/index?wait=true"), body, nil)
}

type point struct {
	ID      string              `json:"id"`
	Vector  []float32           `json:"vector"`
	Payload domain.ChunkPayload `json:"payload"`
}

// Upsert writes one point per chunk in batches. The first failing batch aborts the call.
func (c *Client) Upsert(ctx context.Context, documentID string, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors)))
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		if c.vectorSize > 0 && len(vectors[i]) != c.vectorSize {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("vector %d has size %d, expected %d", i, len(vectors[i]), c.vectorSize))
		}
		points = append(points, point{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: domain.ChunkPayload{
				DocumentID:  documentID,
				ChunkID:     chunk.ID,
				PageStart:   chunk.PageStart,
				PageEnd:     chunk.PageEnd,
				TextSnippet: snippet(chunk.Text, c.snippetChars),
			},
		})
	}

	for start := 0; start < len(points); start += c.batchSize {
		end := min(start+c.batchSize, len(points))
		body := map[string]any{"points": points[start:end]}
		if err := c.do(ctx, "qdrant.upsert", http.MethodPut, c.collectionPath("/points?wait=true"), body, nil); err != nil {
			return c.wrap(fmt.Sprintf("qdrant upsert batch %d-%d of %d", start, end, len(points)), err)
		}
	}
	return nil
}

// DeleteDocument removes every point of the document. When the filtered delete is rejected it
// falls back to scanning the collection and deleting matching ids.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	filterErr := c.deleteByFilter(ctx, documentID)
	if filterErr == nil {
		return nil
	}
	if errors.Is(filterErr, context.Canceled) {
		return filterErr
	}
	c.logger.Warn("qdrant filtered delete failed, falling back to scan", "document_id", documentID, "error", filterErr)

	ids, err := c.scrollDocumentPoints(ctx, documentID)
	if err != nil {
		return c.wrap("qdrant delete document", fmt.Errorf("filtered delete: %v; scroll: %w", filterErr, err))
	}
	for start := 0; start < len(ids); start += c.batchSize {
		end := min(start+c.batchSize, len(ids))
		body := map[string]any{"points": ids[start:end]}
		if err := c.do(ctx, "qdrant.delete", http.MethodPost, c.collectionPath("/points/delete?wait=true"), body, nil); err != nil {
			return c.wrap("qdrant delete document", fmt.Errorf("filtered delete: %v; delete by id: %w", filterErr, err))
		}
	}
	return nil
}

func (c *Client) deleteByFilter(ctx context.Context, documentID string) error {
	body := map[string]any{"filter": docFilter(documentID)}
	return c.do(ctx, "qdrant.delete", http.MethodPost, c.collectionPath("/points/delete?wait=true"), body, nil)
}

// scrollDocumentPoints keeps ids raw so numeric ids survive the round trip unchanged.
func (c *Client) scrollDocumentPoints(ctx context.Context, documentID string) ([]json.RawMessage, error) {
	var (
		ids    []json.RawMessage
		offset json.RawMessage
	)
	for {
		body := map[string]any{
			"limit":        c.scrollPage,
			"with_payload": []string{"doc_id"},
			"with_vector":  false,
		}
		if len(offset) > 0 {
			body["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points []struct {
					ID      json.RawMessage `json:"id"`
					Payload struct {
						DocumentID string `json:"doc_id"`
					} `json:"payload"`
				} `json:"points"`
				NextPageOffset json.RawMessage `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := c.do(ctx, "qdrant.scroll", http.MethodPost, c.collectionPath("/points/scroll"), body, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			if p.Payload.DocumentID == documentID {
				ids = append(ids, p.ID)
			}
		}
		next := bytes.TrimSpace(resp.Result.NextPageOffset)
		if len(next) == 0 || bytes.Equal(next, []byte("null")) || len(resp.Result.Points) == 0 {
			return ids, nil
		}
		offset = next
	}
}

func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.SearchHit, error) {
	body := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      json.RawMessage     `json:"id"`
			Score   float64             `json:"score"`
			Payload domain.ChunkPayload `json:"payload"`
		} `json:"result"`
	}
	if err := c.do(ctx, "qdrant.search", http.MethodPost, c.collectionPath("/points/search"), body, &resp); err != nil {
		return nil, c.wrap("qdrant search", err)
	}

	out := make([]domain.SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, domain.SearchHit{
			PointID: strings.Trim(string(r.ID), `"`),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return out, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.do(ctx, "qdrant.ping", http.MethodGet, "/collections", nil, nil); err != nil {
		return c.wrap("qdrant ping", err)
	}
	return nil
}

func (c *Client) collectionPath(suffix string) string {
	return "/collections/" + c.collection + suffix
}

func (c *Client) do(ctx context.Context, operation, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
	}

	_, err := resilience.Call(ctx, c.executor, operation, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("api-key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("%s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return struct{}{}, resilience.ReadStatusError(operation, resp)
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return struct{}{}, fmt.Errorf("decode %s response: %w", operation, err)
			}
		}
		return struct{}{}, nil
	}, resilience.ClassifyHTTP)
	return err
}

// wrap marks unreachable or failing index errors as domain.ErrIndexUnavailable.
func (c *Client) wrap(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrIndexUnavailable) || domain.IsKind(err, domain.ErrInvalidInput) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.WrapError(domain.ErrIndexUnavailable, operation, err)
}

func docFilter(documentID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key":   "doc_id",
				"match": map[string]any{"value": documentID},
			},
		},
	}
}

func snippet(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
