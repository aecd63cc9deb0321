package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// DocumentRepository persists document, page and annotation records.
// Writes for a document id that no longer exists fail with domain.ErrDocumentNotFound.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	ReplacePages(ctx context.Context, id string, pages []domain.Page, meta domain.ExtractionMeta) error
	ListPages(ctx context.Context, id string) ([]domain.Page, error)
	SaveAnnotation(ctx context.Context, annotation domain.Annotation) error
	GetAnnotation(ctx context.Context, id string) (*domain.Annotation, error)
	List(ctx context.Context, limit, offset int) ([]domain.Document, int, error)
	FilenamesByID(ctx context.Context, ids []string) (map[string]string, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// ObjectStorage stores source documents. Delete of a missing key succeeds.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes document processing jobs.
type MessageQueue interface {
	PublishDocumentJob(ctx context.Context, job domain.ProcessingJob) error
	SubscribeDocumentJobs(ctx context.Context, handler func(context.Context, domain.ProcessingJob) error) error
}

// TextExtractor turns a stored source file into ordered pages.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) ([]domain.Page, domain.ExtractionMeta, error)
}

// Chunker splits pages into provenance-tagged chunks.
type Chunker interface {
	Chunk(pages []domain.Page, documentID string) []domain.Chunk
}

// Embedder builds L2-normalized vectors for chunk and query text, order preserving.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex stores chunk vectors and serves nearest-neighbor search.
type VectorIndex interface {
	EnsureReady(ctx context.Context) error
	Upsert(ctx context.Context, documentID string, chunks []domain.Chunk, vectors [][]float32) error
	DeleteDocument(ctx context.Context, documentID string) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.SearchHit, error)
	Ping(ctx context.Context) error
}

// Generator is a text/JSON generation backend.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
	Model() string
	Ping(ctx context.Context) error
}

// Annotator produces summaries, labels and structured extraction from aggregated text.
type Annotator interface {
	Summarize(ctx context.Context, text string) (domain.Summary, error)
	Classify(ctx context.Context, text string) (domain.Classification, error)
	Extract(ctx context.Context, text, label string) (map[string]any, error)
	Answer(ctx context.Context, question string, snippets []domain.Source) (string, error)
	Model() string
}
