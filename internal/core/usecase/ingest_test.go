package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/docintel/internal/core/domain"
)

var testExtensions = []string{".pdf", ".docx", ".png", ".jpg", ".jpeg"}

type processorFake struct {
	repo    *repoFake
	err     error
	calls   []string
	resumes []string
}

func (f *processorFake) ProcessByID(ctx context.Context, id string) error {
	f.calls = append(f.calls, id)
	if f.err != nil {
		_ = f.repo.UpdateStatus(ctx, id, domain.StatusFailed, f.err.Error())
		return f.err
	}
	_ = f.repo.ReplacePages(ctx, id, twoPages(), domain.ExtractionMeta{OCRApplied: true, LanguagePrimary: strPtr("en")})
	return f.repo.UpdateStatus(ctx, id, domain.StatusCompleted, "")
}

func (f *processorFake) ReprocessByID(_ context.Context, id string) error {
	f.resumes = append(f.resumes, id)
	return nil
}

func TestIngestUploadSuccess(t *testing.T) {
	repo := newRepoFake()
	storage := newStorageFake()
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue, IngestOptions{AllowedExtensions: testExtensions})

	doc, err := uc.Upload(context.Background(), domain.UploadFile{Filename: "report 1.pdf", MimeType: "application/pdf", Body: []byte("%PDF")})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.ID == "" {
		t.Fatalf("expected document id")
	}
	if doc.Status != domain.StatusPending {
		t.Fatalf("expected status pending, got %s", doc.Status)
	}
	if _, err := repo.GetByID(context.Background(), doc.ID); err != nil {
		t.Fatalf("expected repo.Create call")
	}
	if len(queue.jobs) != 1 || queue.jobs[0].DocumentID != doc.ID || queue.jobs[0].Resume {
		t.Fatalf("unexpected queued jobs: %+v", queue.jobs)
	}
	if !strings.HasSuffix(doc.StoragePath, "_report_1.pdf") {
		t.Fatalf("expected sanitized key suffix, got %s", doc.StoragePath)
	}
	if string(storage.files[doc.StoragePath]) != "%PDF" {
		t.Fatalf("expected stored body")
	}
}

func TestIngestUploadQueueErrorMarksFailed(t *testing.T) {
	repo := newRepoFake()
	queue := &queueFake{err: errors.New("queue down")}
	uc := NewIngestDocumentUseCase(repo, newStorageFake(), queue, IngestOptions{AllowedExtensions: testExtensions})

	doc, err := uc.Upload(context.Background(), domain.UploadFile{Filename: "report.pdf", Body: []byte("x")})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "publish ingestion event") {
		t.Fatalf("expected publish error, got %v", err)
	}
	stored, _ := repo.GetByID(context.Background(), doc.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("expected unscheduled document to be failed, got %s", stored.Status)
	}
}

func TestIngestUploadManyReportsPerFileResults(t *testing.T) {
	repo := newRepoFake()
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, newStorageFake(), queue, IngestOptions{AllowedExtensions: testExtensions})

	results := uc.UploadMany(context.Background(), []domain.UploadFile{
		{Filename: "a.pdf", Body: []byte("a")},
		{Filename: "notes.exe", Body: []byte("b")},
		{Filename: "empty.docx"},
		{Filename: "scan.JPG", Body: []byte("c")},
	})

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
			if r.DocumentID != "" {
				t.Fatalf("failed result must not carry a doc id: %+v", r)
			}
			continue
		}
		if r.DocumentID == "" {
			t.Fatalf("expected doc id for %s", r.Filename)
		}
	}
	if failed != 2 {
		t.Fatalf("expected 2 failures, got %d", failed)
	}
	if results[1].Filename != "notes.exe" || !strings.Contains(*results[1].Error, "not allowed") {
		t.Fatalf("unexpected unsupported result: %+v", results[1])
	}
	if !strings.Contains(*results[2].Error, "empty") {
		t.Fatalf("unexpected empty result: %+v", results[2])
	}
	if len(queue.jobs) != 2 {
		t.Fatalf("expected 2 queued jobs, got %d", len(queue.jobs))
	}
}

func TestIngestUploadValidationKinds(t *testing.T) {
	uc := NewIngestDocumentUseCase(newRepoFake(), newStorageFake(), &queueFake{}, IngestOptions{AllowedExtensions: testExtensions})

	_, err := uc.Upload(context.Background(), domain.UploadFile{Filename: "a.txt", Body: []byte("x")})
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	_, err = uc.Upload(context.Background(), domain.UploadFile{Filename: "a.pdf"})
	if !domain.IsKind(err, domain.ErrEmptyInput) {
		t.Fatalf("expected empty input, got %v", err)
	}
}

func TestIngestUploadRejectsAllowedExtensionWithoutExtractor(t *testing.T) {
	repo := newRepoFake()
	uc := NewIngestDocumentUseCase(repo, newStorageFake(), &queueFake{}, IngestOptions{
		AllowedExtensions: testExtensions,
		FormatSupported:   func(name string) bool { return strings.HasSuffix(name, ".pdf") },
	})

	results := uc.UploadMany(context.Background(), []domain.UploadFile{
		{Filename: "scan.png", Body: []byte("img")},
		{Filename: "a.pdf", Body: []byte("%PDF")},
	})

	if results[0].Error == nil || results[0].DocumentID != "" {
		t.Fatalf("expected png to be rejected at intake, got %+v", results[0])
	}
	if !strings.Contains(*results[0].Error, "no extractor") {
		t.Fatalf("unexpected error message %q", *results[0].Error)
	}
	if results[1].Error != nil {
		t.Fatalf("expected pdf to be accepted, got %s", *results[1].Error)
	}
	if len(repo.docs) != 1 {
		t.Fatalf("expected one stored document, got %d", len(repo.docs))
	}
}

func TestIngestUploadInlineProcessesSmallFiles(t *testing.T) {
	repo := newRepoFake()
	queue := &queueFake{}
	processor := &processorFake{repo: repo}
	uc := NewIngestDocumentUseCase(repo, newStorageFake(), queue, IngestOptions{
		AllowedExtensions: testExtensions,
		InlineMaxBytes:    10,
		Processor:         processor,
	})

	results := uc.UploadMany(context.Background(), []domain.UploadFile{
		{Filename: "small.pdf", Body: []byte("tiny")},
		{Filename: "large.pdf", Body: []byte(strings.Repeat("x", 11))},
	})

	if len(processor.calls) != 1 || processor.calls[0] != results[0].DocumentID {
		t.Fatalf("expected inline processing of the small file, calls=%v", processor.calls)
	}
	if results[0].Status != domain.StatusCompleted || results[0].PageCount != 2 || !results[0].OCRApplied {
		t.Fatalf("unexpected inline result: %+v", results[0])
	}
	if len(queue.jobs) != 1 || queue.jobs[0].DocumentID != results[1].DocumentID {
		t.Fatalf("expected large file to be queued, jobs=%+v", queue.jobs)
	}
}

func TestIngestUploadInlineFailureKeepsDocumentID(t *testing.T) {
	repo := newRepoFake()
	processor := &processorFake{repo: repo, err: errors.New("boom")}
	uc := NewIngestDocumentUseCase(repo, newStorageFake(), &queueFake{}, IngestOptions{
		AllowedExtensions: testExtensions,
		InlineMaxBytes:    1024,
		Processor:         processor,
	})

	results := uc.UploadMany(context.Background(), []domain.UploadFile{{Filename: "a.pdf", Body: []byte("a")}})
	if results[0].Error == nil || results[0].DocumentID == "" || results[0].Status != domain.StatusFailed {
		t.Fatalf("unexpected result: %+v", results[0])
	}
}

func TestIngestReprocessQueuesResumeJob(t *testing.T) {
	repo := newRepoFake(&domain.Document{ID: "doc-1", Status: domain.StatusFailed})
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, newStorageFake(), queue, IngestOptions{AllowedExtensions: testExtensions})

	if err := uc.Reprocess(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if len(queue.jobs) != 1 || !queue.jobs[0].Resume {
		t.Fatalf("expected resume job, got %+v", queue.jobs)
	}
	if err := uc.Reprocess(context.Background(), "missing"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "passwd",
		"отчёт 1.pdf":      "______1.pdf",
		"":                 "document.bin",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
