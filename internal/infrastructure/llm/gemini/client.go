package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/infrastructure/resilience"
)

const (
	defaultGenModel   = "gemini-1.5-flash"
	defaultEmbedModel = "gemini-embedding-001"
	embedBatchLimit   = 100
)

type Options struct {
	Temperature float32
	TopP        float32
	MaxTokens   int32
	Executor    *resilience.Executor
}

// Client wraps one genai client shared by the generator and the embedder.
type Client struct {
	client     *genai.Client
	genModel   string
	embedModel string
	opts       Options
}

func New(ctx context.Context, apiKey, genModel, embedModel string, opts Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "gemini client", fmt.Errorf("api key is required"))
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if genModel == "" {
		genModel = defaultGenModel
	}
	if embedModel == "" {
		embedModel = defaultEmbedModel
	}
	return &Client{client: cl, genModel: genModel, embedModel: embedModel, opts: opts}, nil
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

type Generator struct {
	c *Client
}

func NewGenerator(c *Client) *Generator {
	return &Generator{c: c}
}

func (g *Generator) Model() string {
	return g.c.genModel
}

func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	m := g.c.client.GenerativeModel(g.c.genModel)
	m.SetTemperature(g.c.opts.Temperature)
	m.SetTopP(g.c.opts.TopP)
	if g.c.opts.MaxTokens > 0 {
		m.SetMaxOutputTokens(g.c.opts.MaxTokens)
	}
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		m.ResponseMIMEType = "application/json"
	}

	resp, err := resilience.Call(ctx, g.c.opts.Executor, "gemini.generate", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return m.GenerateContent(ctx, genai.Text(req.Prompt))
	}, classify)
	if err != nil {
		return "", wrap("gemini generate", err)
	}
	return strings.TrimSpace(responseText(resp)), nil
}

func (g *Generator) Ping(ctx context.Context) error {
	if _, err := g.c.client.GenerativeModel(g.c.genModel).Info(ctx); err != nil {
		return wrap("gemini model info", err)
	}
	return nil
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// Embedder uses retrieval task types so document and query vectors share one space.
type Embedder struct {
	c *Client
}

func NewEmbedder(c *Client) *Embedder {
	return &Embedder{c: c}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := e.c.client.EmbeddingModel(e.c.embedModel)
	em.TaskType = genai.TaskTypeRetrievalDocument

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchLimit {
		end := min(start+embedBatchLimit, len(texts))
		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}
		resp, err := resilience.Call(ctx, e.c.opts.Executor, "gemini.embed", func(ctx context.Context) (*genai.BatchEmbedContentsResponse, error) {
			return em.BatchEmbedContents(ctx, batch)
		}, classify)
		if err != nil {
			return nil, wrap("gemini batch embed", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini embed returned %d vectors for %d inputs", len(resp.Embeddings), end-start)
		}
		for _, emb := range resp.Embeddings {
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	em := e.c.client.EmbeddingModel(e.c.embedModel)
	em.TaskType = genai.TaskTypeRetrievalQuery

	resp, err := resilience.Call(ctx, e.c.opts.Executor, "gemini.embed_query", func(ctx context.Context) (*genai.EmbedContentResponse, error) {
		return em.EmbedContent(ctx, genai.Text(text))
	}, classify)
	if err != nil {
		return nil, wrap("gemini embed query", err)
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("gemini embed query returned no embedding")
	}
	return resp.Embedding.Values, nil
}
