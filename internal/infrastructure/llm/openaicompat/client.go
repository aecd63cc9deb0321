package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/infrastructure/resilience"
)

type Options struct {
	APIKey      string
	Timeout     time.Duration
	Temperature float64
	TopP        float64
	MaxTokens   int
	Executor    *resilience.Executor
}

// Generator talks to any server exposing the OpenAI chat completions API
// (OpenAI itself, vLLM, LM Studio, llama.cpp server).
type Generator struct {
	baseURL     string
	model       string
	apiKey      string
	temperature float64
	topP        float64
	maxTokens   int
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(baseURL, model string, opts Options) *Generator {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	return &Generator{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		apiKey:      opts.APIKey,
		temperature: opts.Temperature,
		topP:        opts.TopP,
		maxTokens:   opts.MaxTokens,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		executor:    opts.Executor,
	}
}

func (g *Generator) Model() string {
	return g.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := map[string]any{
		"model":       g.model,
		"messages":    messages,
		"temperature": g.temperature,
		"top_p":       g.topP,
	}
	if g.maxTokens > 0 {
		body["max_tokens"] = g.maxTokens
	}
	if req.JSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	var resp struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := g.do(ctx, http.MethodPost, "/v1/chat/completions", body, &resp, "chat"); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai-compatible chat returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (g *Generator) Ping(ctx context.Context) error {
	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := g.do(ctx, http.MethodGet, "/v1/models", nil, &resp, "models"); err != nil {
		return err
	}
	for _, m := range resp.Data {
		if m.ID == g.model {
			return nil
		}
	}
	return fmt.Errorf("model %s is not served by %s", g.model, g.baseURL)
}

func (g *Generator) do(ctx context.Context, method, path string, payload, out any, operation string) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
	}

	_, err := resilience.Call(ctx, g.executor, "openai."+operation, func(ctx context.Context) (struct{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
		if err != nil {
			return struct{}{}, fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("openai %s request: %w", operation, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return struct{}{}, resilience.ReadStatusError("openai "+operation, resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, fmt.Errorf("decode %s response: %w", operation, err)
		}
		return struct{}{}, nil
	}, resilience.ClassifyHTTP)
	return wrapError("openai "+operation, err)
}

func wrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var statusErr *resilience.StatusError
	if errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden) {
		return domain.WrapError(domain.ErrUnauthorized, operation, err)
	}
	if resilience.ClassifyHTTP(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
