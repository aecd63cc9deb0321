package ports

import (
	"context"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// DocumentIngestor is the inbound contract for upload orchestration.
type DocumentIngestor interface {
	UploadMany(ctx context.Context, files []domain.UploadFile) []domain.UploadResult
	Reprocess(ctx context.Context, documentID string) error
}

// DocumentProcessor runs the ingestion pipeline for one document.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
	ReprocessByID(ctx context.Context, documentID string) error
}

// DocumentQueryService is the inbound contract for search and RAG.
type DocumentQueryService interface {
	Search(ctx context.Context, query string, limit int) (*domain.SearchResult, error)
	Answer(ctx context.Context, question string, limit int) (*domain.Answer, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	List(ctx context.Context, limit, offset int) (*domain.DocumentPage, error)
	Detail(ctx context.Context, id string) (*domain.DocumentDetail, error)
}

// DocumentRemover deletes a document with all dependent state.
type DocumentRemover interface {
	Delete(ctx context.Context, id string) error
}

// HealthChecker reports collaborator availability.
type HealthChecker interface {
	Check(ctx context.Context) domain.HealthReport
}
