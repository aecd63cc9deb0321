package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

type DocumentsOptions struct {
	DefaultLimit int
	MaxLimit     int
	Logger       *slog.Logger
}

// DocumentsUseCase serves listing, detail and deletion.
type DocumentsUseCase struct {
	repo    ports.DocumentRepository
	index   ports.VectorIndex
	storage ports.ObjectStorage

	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

func NewDocumentsUseCase(
	repo ports.DocumentRepository,
	index ports.VectorIndex,
	storage ports.ObjectStorage,
	opts DocumentsOptions,
) *DocumentsUseCase {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 100
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 500
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &DocumentsUseCase{
		repo:         repo,
		index:        index,
		storage:      storage,
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
		logger:       opts.Logger,
	}
}

func (uc *DocumentsUseCase) List(ctx context.Context, limit, offset int) (*domain.DocumentPage, error) {
	if limit == 0 {
		limit = uc.defaultLimit
	}
	if limit < 1 || limit > uc.maxLimit {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("limit must be between 1 and %d", uc.maxLimit))
	}
	if offset < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("offset must not be negative"))
	}

	items, total, err := uc.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if items == nil {
		items = []domain.Document{}
	}
	return &domain.DocumentPage{Total: total, Items: items}, nil
}

func (uc *DocumentsUseCase) Detail(ctx context.Context, id string) (*domain.DocumentDetail, error) {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	pages, err := uc.repo.ListPages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	annotation, err := uc.repo.GetAnnotation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch annotation: %w", err)
	}

	detail := &domain.DocumentDetail{
		Document: *doc,
		Pages:    make([]domain.PageSummary, 0, len(pages)),
	}
	for _, p := range pages {
		detail.Pages = append(detail.Pages, domain.PageSummary{
			Number:    p.Number,
			TextLen:   utf8.RuneCountInString(p.Text()),
			Language:  p.Language,
			HasImages: p.HasImages,
			OCRUsed:   p.OCRApplied,
		})
	}
	if annotation != nil {
		detail.Summary = &annotation.Summary
		detail.Classification = &annotation.Classification
		detail.Extraction = annotation.Extraction
		detail.AnnotatedBy = annotation.Model
	}
	return detail, nil
}

// Delete removes vectors, relational rows and the stored file. Only the missing document row
// is reported as an error; vector and file cleanup are best effort.
func (uc *DocumentsUseCase) Delete(ctx context.Context, id string) error {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}

	if err := uc.index.DeleteDocument(ctx, id); err != nil {
		uc.logger.Warn("delete document vectors", "document_id", id, "error", err)
	}

	if err := uc.repo.Delete(ctx, id); err != nil && !domain.IsKind(err, domain.ErrDocumentNotFound) {
		return fmt.Errorf("delete document metadata: %w", err)
	}

	if doc.StoragePath != "" {
		if err := uc.storage.Delete(ctx, doc.StoragePath); err != nil {
			uc.logger.Warn("delete stored file", "document_id", id, "key", doc.StoragePath, "error", err)
		}
	}
	return nil
}
