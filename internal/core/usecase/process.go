package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

// StageObserver receives the duration and outcome of every pipeline stage.
type StageObserver interface {
	ObserveStage(stage string, duration time.Duration, err error)
}

type ProcessOptions struct {
	AggregateMaxChars int
	Logger            *slog.Logger
	Observer          StageObserver
}

// ProcessDocumentUseCase is the single ingestion pipeline shared by the inline upload path,
// the queue worker and operator reprocessing.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.VectorIndex
	annotator ports.Annotator

	aggregateMaxChars int
	logger            *slog.Logger
	observer          StageObserver
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	annotator ports.Annotator,
	opts ProcessOptions,
) *ProcessDocumentUseCase {
	if opts.AggregateMaxChars <= 0 {
		opts.AggregateMaxChars = 15000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ProcessDocumentUseCase{
		repo:              repo,
		extractor:         extractor,
		chunker:           chunker,
		embedder:          embedder,
		index:             index,
		annotator:         annotator,
		aggregateMaxChars: opts.AggregateMaxChars,
		logger:            opts.Logger,
		observer:          opts.Observer,
	}
}

// ProcessByID runs every stage starting from the stored raw file.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	return uc.run(ctx, documentID, false)
}

// ReprocessByID reuses persisted pages when present and redoes chunking, indexing and annotation.
func (uc *ProcessDocumentUseCase) ReprocessByID(ctx context.Context, documentID string) error {
	return uc.run(ctx, documentID, true)
}

func (uc *ProcessDocumentUseCase) run(ctx context.Context, documentID string, resume bool) error {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return err
	}

	err = uc.processPipeline(ctx, doc, resume)
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrDocumentNotFound) {
		uc.logger.Warn("document removed during processing", "document_id", documentID, "error", err)
		return err
	}
	if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
		// The row can vanish after the upsert and before the failure is recorded.
		uc.discardOrphanedVectors(ctx, documentID, failErr)
		return fmt.Errorf("%w; mark failed status: %w", err, failErr)
	}
	return err
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, doc *domain.Document, resume bool) error {
	pages, err := uc.loadOrExtractPages(ctx, doc, resume)
	if err != nil {
		return err
	}

	if err := uc.markStatus(ctx, doc.ID, domain.StatusIndexing, ""); err != nil {
		return err
	}

	chunks := uc.chunk(doc.ID, pages)

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return err
	}

	if err := uc.indexChunks(ctx, doc.ID, chunks, vectors); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return domain.WrapError(domain.ErrExtractionFailure, "chunk document", errors.New("no extractable text"))
	}

	if err := uc.markStatus(ctx, doc.ID, domain.StatusAnnotating, ""); err != nil {
		uc.discardOrphanedVectors(ctx, doc.ID, err)
		return err
	}

	annotation, err := uc.annotate(ctx, doc.ID, chunks)
	if err != nil {
		return err
	}

	if err := uc.persistAnnotation(ctx, annotation); err != nil {
		uc.discardOrphanedVectors(ctx, doc.ID, err)
		return err
	}

	if err := uc.markStatus(ctx, doc.ID, domain.StatusCompleted, ""); err != nil {
		uc.discardOrphanedVectors(ctx, doc.ID, err)
		return fmt.Errorf("set status=completed: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) loadOrExtractPages(ctx context.Context, doc *domain.Document, resume bool) ([]domain.Page, error) {
	if resume {
		pages, err := uc.repo.ListPages(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("load stored pages: %w", err)
		}
		if len(pages) > 0 {
			return pages, nil
		}
	}

	if err := uc.markStatus(ctx, doc.ID, domain.StatusExtracting, ""); err != nil {
		return nil, err
	}
	pages, meta, err := uc.extract(ctx, doc)
	if err != nil {
		return nil, err
	}

	if err := uc.markStatus(ctx, doc.ID, domain.StatusPersistingPage, ""); err != nil {
		return nil, err
	}
	if err := uc.persistPages(ctx, doc.ID, pages, meta); err != nil {
		return nil, err
	}
	return pages, nil
}

func (uc *ProcessDocumentUseCase) extract(ctx context.Context, doc *domain.Document) ([]domain.Page, domain.ExtractionMeta, error) {
	var (
		pages []domain.Page
		meta  domain.ExtractionMeta
	)
	err := uc.stage("extract", doc.ID, func() error {
		var err error
		pages, meta, err = uc.extractor.Extract(ctx, doc)
		if err != nil {
			return fmt.Errorf("extract text: %w", err)
		}
		return nil
	})
	return pages, meta, err
}

func (uc *ProcessDocumentUseCase) persistPages(ctx context.Context, documentID string, pages []domain.Page, meta domain.ExtractionMeta) error {
	return uc.stage("persist_pages", documentID, func() error {
		if err := uc.repo.ReplacePages(ctx, documentID, pages, meta); err != nil {
			return fmt.Errorf("persist pages: %w", err)
		}
		return nil
	})
}

func (uc *ProcessDocumentUseCase) chunk(documentID string, pages []domain.Page) []domain.Chunk {
	var chunks []domain.Chunk
	_ = uc.stage("chunk", documentID, func() error {
		chunks = uc.chunker.Chunk(pages, documentID)
		return nil
	})
	return chunks
}

func (uc *ProcessDocumentUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	var vectors [][]float32
	err := uc.stage("embed", chunks[0].DocumentID, func() error {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		var err error
		vectors, err = uc.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(chunks) {
			return domain.WrapError(
				domain.ErrInvalidInput,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
			)
		}
		return nil
	})
	return vectors, err
}

// indexChunks replaces every point of the document with the current chunk set.
func (uc *ProcessDocumentUseCase) indexChunks(ctx context.Context, documentID string, chunks []domain.Chunk, vectors [][]float32) error {
	return uc.stage("index", documentID, func() error {
		if err := uc.index.DeleteDocument(ctx, documentID); err != nil {
			return fmt.Errorf("remove previous vectors: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := uc.index.Upsert(ctx, documentID, chunks, vectors); err != nil {
			return fmt.Errorf("index chunks in vector db: %w", err)
		}
		return nil
	})
}

func (uc *ProcessDocumentUseCase) annotate(ctx context.Context, documentID string, chunks []domain.Chunk) (domain.Annotation, error) {
	annotation := domain.Annotation{DocumentID: documentID}
	err := uc.stage("annotate", documentID, func() error {
		text := AggregateChunks(chunks, uc.aggregateMaxChars)

		summary, err := uc.annotator.Summarize(ctx, text)
		if err != nil {
			return fmt.Errorf("summarize document: %w", err)
		}
		classification, err := uc.annotator.Classify(ctx, text)
		if err != nil {
			return fmt.Errorf("classify document: %w", err)
		}
		extraction, err := uc.annotator.Extract(ctx, text, classification.Label)
		if err != nil {
			return fmt.Errorf("extract fields: %w", err)
		}

		annotation.Summary = summary
		annotation.Classification = classification
		annotation.Extraction = extraction
		annotation.Model = uc.annotator.Model()
		annotation.CreatedAt = time.Now().UTC()
		return nil
	})
	return annotation, err
}

func (uc *ProcessDocumentUseCase) persistAnnotation(ctx context.Context, annotation domain.Annotation) error {
	if err := uc.repo.SaveAnnotation(ctx, annotation); err != nil {
		return fmt.Errorf("save annotation: %w", err)
	}
	return nil
}

// discardOrphanedVectors drops points written for a document whose row disappeared mid-run.
func (uc *ProcessDocumentUseCase) discardOrphanedVectors(ctx context.Context, documentID string, cause error) {
	if !domain.IsKind(cause, domain.ErrDocumentNotFound) {
		return
	}
	if err := uc.index.DeleteDocument(context.WithoutCancel(ctx), documentID); err != nil {
		uc.logger.Warn("discard vectors of deleted document", "document_id", documentID, "error", err)
	}
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	if err := uc.repo.UpdateStatus(ctx, documentID, status, errMessage); err != nil {
		return fmt.Errorf("set status=%s: %w", status, err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(context.WithoutCancel(ctx), documentID, domain.StatusFailed, processErr.Error())
}

func (uc *ProcessDocumentUseCase) stage(name, documentID string, fn func() error) error {
	startedAt := time.Now()
	err := fn()
	duration := time.Since(startedAt)
	if uc.observer != nil {
		uc.observer.ObserveStage(name, duration, err)
	}
	if err != nil {
		uc.logger.Error("pipeline stage failed", "document_id", documentID, "stage", name, "duration_ms", duration.Milliseconds(), "error", err)
		return err
	}
	uc.logger.Info("pipeline stage done", "document_id", documentID, "stage", name, "duration_ms", duration.Milliseconds())
	return nil
}
