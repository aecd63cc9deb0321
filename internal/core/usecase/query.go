package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

const displaySnippetChars = 200

type QueryOptions struct {
	DefaultLimit int
	MaxLimit     int
	RAGTopK      int
}

type QueryUseCase struct {
	embedder  ports.Embedder
	index     ports.VectorIndex
	annotator ports.Annotator
	repo      ports.DocumentRepository

	defaultLimit int
	maxLimit     int
	ragTopK      int
}

func NewQueryUseCase(
	embedder ports.Embedder,
	index ports.VectorIndex,
	annotator ports.Annotator,
	repo ports.DocumentRepository,
	opts QueryOptions,
) *QueryUseCase {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 50
	}
	if opts.RAGTopK <= 0 {
		opts.RAGTopK = 5
	}
	return &QueryUseCase{
		embedder:     embedder,
		index:        index,
		annotator:    annotator,
		repo:         repo,
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
		ragTopK:      opts.RAGTopK,
	}
}

// Search returns scored hits with display-length snippets.
func (uc *QueryUseCase) Search(ctx context.Context, query string, limit int) (*domain.SearchResult, error) {
	limit, err := uc.resolveLimit(limit, uc.defaultLimit)
	if err != nil {
		return nil, err
	}
	hits, err := uc.retrieve(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	sources, err := uc.sources(ctx, hits)
	if err != nil {
		return nil, err
	}
	for i := range sources {
		sources[i].Snippet = truncateSnippet(sources[i].Snippet, displaySnippetChars)
	}
	return &domain.SearchResult{Query: query, Hits: sources}, nil
}

// Answer runs retrieval and asks the annotator to answer from the retrieved snippets only.
func (uc *QueryUseCase) Answer(ctx context.Context, question string, limit int) (*domain.Answer, error) {
	limit, err := uc.resolveLimit(limit, uc.ragTopK)
	if err != nil {
		return nil, err
	}
	hits, err := uc.retrieve(ctx, question, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return &domain.Answer{
			Question: question,
			Text:     domain.NoRelevantInformation,
			Sources:  []domain.Source{},
		}, nil
	}

	sources, err := uc.sources(ctx, hits)
	if err != nil {
		return nil, err
	}
	answerText, err := uc.annotator.Answer(ctx, question, sources)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &domain.Answer{
		Question: question,
		Text:     answerText,
		Sources:  sources,
	}, nil
}

func (uc *QueryUseCase) retrieve(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))
	}

	queryVector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := uc.index.Search(ctx, queryVector, limit)
	if err != nil {
		return nil, fmt.Errorf("search vector db: %w", err)
	}
	return hits, nil
}

func (uc *QueryUseCase) sources(ctx context.Context, hits []domain.SearchHit) ([]domain.Source, error) {
	ids := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, hit := range hits {
		if _, ok := seen[hit.Payload.DocumentID]; ok {
			continue
		}
		seen[hit.Payload.DocumentID] = struct{}{}
		ids = append(ids, hit.Payload.DocumentID)
	}

	filenames := map[string]string{}
	if len(ids) > 0 {
		var err error
		filenames, err = uc.repo.FilenamesByID(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve filenames: %w", err)
		}
	}

	sources := make([]domain.Source, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, domain.Source{
			DocumentID: hit.Payload.DocumentID,
			Filename:   filenames[hit.Payload.DocumentID],
			PageStart:  hit.Payload.PageStart,
			PageEnd:    hit.Payload.PageEnd,
			Score:      hit.Score,
			Snippet:    hit.Payload.TextSnippet,
		})
	}
	return sources, nil
}

func (uc *QueryUseCase) resolveLimit(limit, fallback int) (int, error) {
	if limit == 0 {
		limit = fallback
	}
	if limit < 1 || limit > uc.maxLimit {
		return 0, domain.WrapError(
			domain.ErrInvalidInput,
			"search",
			fmt.Errorf("k must be between 1 and %d", uc.maxLimit),
		)
	}
	return limit, nil
}

func truncateSnippet(text string, maxChars int) string {
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	return string([]rune(text)[:maxChars]) + "..."
}
