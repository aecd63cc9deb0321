package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/infrastructure/resilience"
)

type Options struct {
	Timeout     time.Duration
	Temperature float64
	TopP        float64
	MaxTokens   int
	Executor    *resilience.Executor
}

type Client struct {
	baseURL     string
	genModel    string
	embedModel  string
	temperature float64
	topP        float64
	maxTokens   int
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(baseURL, genModel, embedModel string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		genModel:    genModel,
		embedModel:  embedModel,
		temperature: opts.Temperature,
		topP:        opts.TopP,
		maxTokens:   opts.MaxTokens,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		executor:    opts.Executor,
	}
}

// Embedder returns raw model vectors; normalization is applied by the embedding package.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Model() string {
	return g.client.genModel
}

func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	options := map[string]any{
		"temperature": g.client.temperature,
		"top_p":       g.client.topP,
	}
	if g.client.maxTokens > 0 {
		options["num_predict"] = g.client.maxTokens
	}
	body := map[string]any{
		"model":   g.client.genModel,
		"prompt":  req.Prompt,
		"stream":  false,
		"options": options,
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if req.JSON {
		body["format"] = "json"
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := g.client.postJSON(ctx, "/api/generate", body, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

// Ping checks that the server answers and the generation model is pulled.
func (g *Generator) Ping(ctx context.Context) error {
	var response struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	if err := g.client.getJSON(ctx, "/api/tags", &response, "tags"); err != nil {
		return err
	}
	want := g.client.genModel
	for _, m := range response.Models {
		for _, name := range []string{m.Name, m.Model} {
			if name == want || strings.TrimSuffix(name, ":latest") == want {
				return nil
			}
		}
	}
	return fmt.Errorf("ollama model %s is not installed", want)
}
