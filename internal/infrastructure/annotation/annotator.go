package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

type Options struct {
	// Retries is the number of corrective attempts after the first one.
	Retries        int
	MaxPromptChars int
	Logger         *slog.Logger
}

// Annotator turns generation backend output into validated annotation parts.
type Annotator struct {
	generator      ports.Generator
	retries        int
	maxPromptChars int
	logger         *slog.Logger
}

func New(generator ports.Generator, opts Options) *Annotator {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.MaxPromptChars <= 0 {
		opts.MaxPromptChars = 8000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Annotator{
		generator:      generator,
		retries:        opts.Retries,
		maxPromptChars: opts.MaxPromptChars,
		logger:         opts.Logger,
	}
}

func (a *Annotator) Model() string {
	return a.generator.Model()
}

func (a *Annotator) Summarize(ctx context.Context, text string) (domain.Summary, error) {
	obj, err := a.generateJSON(ctx, "summarize", summaryPrompt(a.clip(text)), schemaSummary)
	if err != nil {
		return domain.Summary{}, err
	}

	var summary domain.Summary
	if err := remarshal(withDefaults(schemaSummary, obj), &summary); err != nil {
		return domain.Summary{}, domain.WrapError(domain.ErrSchemaValidation, "summarize", err)
	}
	return normalizeSummary(summary), nil
}

func (a *Annotator) Classify(ctx context.Context, text string) (domain.Classification, error) {
	obj, err := a.generateJSON(ctx, "classify", classificationPrompt(a.clip(text)), schemaClassification)
	if err != nil {
		return domain.Classification{}, err
	}

	var cls domain.Classification
	if err := remarshal(obj, &cls); err != nil {
		return domain.Classification{}, domain.WrapError(domain.ErrSchemaValidation, "classify", err)
	}
	cls.Label = domain.NormalizeLabel(strings.TrimSpace(cls.Label))
	cls.Confidence = clamp01(cls.Confidence)
	return cls, nil
}

// Extract returns an empty object for labels without an extraction schema, without calling the backend.
func (a *Annotator) Extract(ctx context.Context, text, label string) (map[string]any, error) {
	kind := domain.ExtractionKindFor(label)
	schema, ok := extractionSchemas[kind]
	if !ok {
		return map[string]any{}, nil
	}

	var prompt string
	switch kind {
	case domain.ExtractionSafety:
		prompt = safetyPrompt(a.clip(text))
	case domain.ExtractionInvoiceContract:
		prompt = invoiceContractPrompt(a.clip(text))
	}

	obj, err := a.generateJSON(ctx, "extract "+string(kind), prompt, schema)
	if err != nil {
		return nil, err
	}
	return withDefaults(schema, obj), nil
}

func (a *Annotator) Answer(ctx context.Context, question string, sources []domain.Source) (string, error) {
	if len(sources) == 0 {
		return domain.NoRelevantInformation, nil
	}
	answer, err := a.generator.Generate(ctx, domain.GenerationRequest{
		System: systemQA,
		Prompt: answerPrompt(question, sources),
	})
	if err != nil {
		return "", fmt.Errorf("answer generate: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return domain.NoRelevantInformation, nil
	}
	return answer, nil
}

// generateJSON asks for a JSON object and validates it against schema. Each rejected output
// leads to one more attempt with a corrective instruction, up to the retry budget. Backend
// failures are returned as is; the executor behind the generator owns transport retries.
func (a *Annotator) generateJSON(ctx context.Context, operation, prompt string, schema *openapi3.Schema) (map[string]any, error) {
	var (
		correction string
		lastErr    error
	)
	for attempt := 0; attempt <= a.retries; attempt++ {
		raw, err := a.generator.Generate(ctx, domain.GenerationRequest{
			System: systemJSON,
			Prompt: withCorrection(prompt, correction),
			JSON:   true,
		})
		if err != nil {
			return nil, fmt.Errorf("%s generate: %w", operation, err)
		}

		obj, err := decodeObject(raw)
		if err != nil {
			lastErr = err
			correction = correctionUnparsable
			a.logger.Warn("annotation output rejected", "operation", operation, "attempt", attempt, "reason", "unparsable", "error", err)
			continue
		}
		if err := schema.VisitJSON(obj); err != nil {
			lastErr = err
			correction = correctionSchema
			a.logger.Warn("annotation output rejected", "operation", operation, "attempt", attempt, "reason", "schema", "error", err)
			continue
		}
		return obj, nil
	}
	return nil, domain.WrapError(
		domain.ErrSchemaValidation,
		operation,
		fmt.Errorf("no valid output after %d attempts: %w", a.retries+1, lastErr),
	)
}

func (a *Annotator) clip(text string) string {
	return truncateRunes(text, a.maxPromptChars)
}

// decodeObject parses the first JSON object in raw. Models sometimes wrap it in prose or fences.
func decodeObject(raw string) (map[string]any, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON object in output")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("parse JSON object: %w", err)
	}
	return obj, nil
}

func remarshal(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func normalizeSummary(s domain.Summary) domain.Summary {
	bullets := make([]string, 0, len(s.Bullets))
	for _, b := range s.Bullets {
		if b = strings.TrimSpace(b); b != "" {
			bullets = append(bullets, b)
		}
	}
	citations := make([]domain.PageRange, 0, len(s.Citations))
	for _, c := range s.Citations {
		if c.PageEnd < c.PageStart {
			c.PageStart, c.PageEnd = c.PageEnd, c.PageStart
		}
		citations = append(citations, c)
	}
	return domain.Summary{Bullets: bullets, Citations: citations}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
