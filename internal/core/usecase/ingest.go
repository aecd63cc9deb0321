package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

type IngestOptions struct {
	AllowedExtensions []string
	// InlineMaxBytes enables synchronous processing for uploads up to this size. Zero disables it.
	InlineMaxBytes int64
	// FormatSupported, when set, rejects allowed extensions that no extractor can read.
	FormatSupported func(filename string) bool
	Processor       ports.DocumentProcessor
	Logger          *slog.Logger
}

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue

	processor      ports.DocumentProcessor
	allowed        map[string]struct{}
	supported      func(filename string) bool
	inlineMaxBytes int64
	logger         *slog.Logger
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	opts IngestOptions,
) *IngestDocumentUseCase {
	allowed := make(map[string]struct{}, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	inlineMaxBytes := opts.InlineMaxBytes
	if opts.Processor == nil {
		inlineMaxBytes = 0
	}
	return &IngestDocumentUseCase{
		repo:           repo,
		storage:        storage,
		queue:          queue,
		processor:      opts.Processor,
		allowed:        allowed,
		supported:      opts.FormatSupported,
		inlineMaxBytes: inlineMaxBytes,
		logger:         opts.Logger,
	}
}

// UploadMany ingests every file independently and returns one result per file, in input order.
func (uc *IngestDocumentUseCase) UploadMany(ctx context.Context, files []domain.UploadFile) []domain.UploadResult {
	results := make([]domain.UploadResult, 0, len(files))
	for _, file := range files {
		results = append(results, uc.uploadOne(ctx, file))
	}
	return results
}

func (uc *IngestDocumentUseCase) uploadOne(ctx context.Context, file domain.UploadFile) domain.UploadResult {
	result := domain.UploadResult{Filename: file.Filename}

	doc, err := uc.Upload(ctx, file)
	if doc != nil {
		result.DocumentID = doc.ID
		result.Status = doc.Status
		result.PageCount = doc.PageCount
		result.OCRApplied = doc.OCRApplied
		result.LanguagePrimary = doc.LanguagePrimary
	}
	if err != nil {
		uc.logger.Warn("upload failed", "filename", file.Filename, "document_id", result.DocumentID, "error", err)
		msg := err.Error()
		result.Error = &msg
	}
	return result
}

// Upload validates and stores one file, then processes it inline or hands it to the queue.
// A non-nil document is returned with an error when the record was created but processing
// could not be completed or scheduled.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, file domain.UploadFile) (*domain.Document, error) {
	if err := uc.validate(file); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(file.Filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(file.Body)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    file.Filename,
		MimeType:    file.MimeType,
		StoragePath: storageKey,
		SizeBytes:   int64(len(file.Body)),
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		if delErr := uc.storage.Delete(context.WithoutCancel(ctx), storageKey); delErr != nil {
			uc.logger.Warn("remove stored file after failed create", "key", storageKey, "error", delErr)
		}
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if uc.inlineMaxBytes > 0 && doc.SizeBytes <= uc.inlineMaxBytes {
		return uc.processInline(ctx, doc)
	}

	if err := uc.queue.PublishDocumentJob(ctx, domain.ProcessingJob{DocumentID: doc.ID, EnqueuedAt: time.Now().UTC()}); err != nil {
		err = fmt.Errorf("publish ingestion event: %w", err)
		uc.failUnscheduled(ctx, doc, err)
		return doc, err
	}
	return doc, nil
}

// Reprocess schedules a resume run for an existing document.
func (uc *IngestDocumentUseCase) Reprocess(ctx context.Context, documentID string) error {
	if _, err := uc.repo.GetByID(ctx, documentID); err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusPending, ""); err != nil {
		return fmt.Errorf("set status=pending: %w", err)
	}
	if err := uc.queue.PublishDocumentJob(ctx, domain.ProcessingJob{DocumentID: documentID, Resume: true, EnqueuedAt: time.Now().UTC()}); err != nil {
		err = fmt.Errorf("publish reprocess event: %w", err)
		uc.failUnscheduled(ctx, &domain.Document{ID: documentID}, err)
		return err
	}
	return nil
}

func (uc *IngestDocumentUseCase) processInline(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	processErr := uc.processor.ProcessByID(ctx, doc.ID)

	current, err := uc.repo.GetByID(ctx, doc.ID)
	if err != nil {
		current = doc
		if processErr == nil {
			processErr = fmt.Errorf("reload processed document: %w", err)
		}
	}
	if processErr != nil {
		return current, fmt.Errorf("process document: %w", processErr)
	}
	return current, nil
}

func (uc *IngestDocumentUseCase) failUnscheduled(ctx context.Context, doc *domain.Document, cause error) {
	if err := uc.repo.UpdateStatus(context.WithoutCancel(ctx), doc.ID, domain.StatusFailed, cause.Error()); err != nil {
		uc.logger.Warn("mark unscheduled document failed", "document_id", doc.ID, "error", err)
		return
	}
	doc.Status = domain.StatusFailed
	doc.Error = cause.Error()
}

func (uc *IngestDocumentUseCase) validate(file domain.UploadFile) error {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, ok := uc.allowed[ext]; !ok {
		if ext == "" {
			ext = "(none)"
		}
		return domain.WrapError(domain.ErrUnsupportedFormat, "validate upload", fmt.Errorf("extension %s is not allowed", ext))
	}
	if uc.supported != nil && !uc.supported(file.Filename) {
		return domain.WrapError(domain.ErrUnsupportedFormat, "validate upload", fmt.Errorf("no extractor for extension %s", ext))
	}
	if len(file.Body) == 0 {
		return domain.WrapError(domain.ErrEmptyInput, "validate upload", errors.New("file is empty"))
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
