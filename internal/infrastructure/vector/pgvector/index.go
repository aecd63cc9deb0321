package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/docintel/internal/core/domain"
)

type Options struct {
	VectorSize   int
	BatchSize    int
	SnippetChars int
}

// Index stores chunk vectors in the chunk_vectors table next to the metadata store.
// Similarity is cosine, reported as 1 - cosine distance.
type Index struct {
	db           *sql.DB
	vectorSize   int
	batchSize    int
	snippetChars int
}

func New(db *sql.DB, opts Options) *Index {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.SnippetChars <= 0 {
		opts.SnippetChars = 500
	}
	return &Index{
		db:           db,
		vectorSize:   opts.VectorSize,
		batchSize:    opts.BatchSize,
		snippetChars: opts.SnippetChars,
	}
}

func (i *Index) EnsureReady(ctx context.Context) error {
	if i.vectorSize <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "pgvector ensure", errors.New("vector size is not configured"))
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("pgvector begin schema tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101502)); err != nil {
		return unavailable("pgvector schema lock", err)
	}
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS chunk_vectors (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	chunk_id TEXT NOT NULL,
	page_start INTEGER NOT NULL,
	page_end INTEGER NOT NULL,
	text_snippet TEXT NOT NULL,
	embedding vector(%d) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunk_vectors_document ON chunk_vectors(document_id);
`, i.vectorSize)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return unavailable("pgvector schema ddl", err)
	}

	var existing int
	err = tx.QueryRowContext(ctx, `
SELECT atttypmod FROM pg_attribute
WHERE attrelid = 'chunk_vectors'::regclass AND attname = 'embedding'
`).Scan(&existing)
	if err != nil {
		return unavailable("pgvector read dimension", err)
	}
	if existing != i.vectorSize {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"pgvector ensure",
			fmt.Errorf("chunk_vectors has dimension %d, configured %d", existing, i.vectorSize),
		)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("pgvector commit schema tx", err)
	}
	return nil
}

// Upsert inserts all points in one transaction, batch by batch; any failed batch rolls back the call.
func (i *Index) Upsert(ctx context.Context, documentID string, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return domain.WrapError(domain.ErrInvalidInput, "pgvector upsert", fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors)))
	}
	if len(chunks) == 0 {
		return nil
	}
	for n, v := range vectors {
		if i.vectorSize > 0 && len(v) != i.vectorSize {
			return domain.WrapError(domain.ErrInvalidInput, "pgvector upsert", fmt.Errorf("vector %d has size %d, expected %d", n, len(v), i.vectorSize))
		}
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("pgvector begin upsert", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for start := 0; start < len(chunks); start += i.batchSize {
		end := min(start+i.batchSize, len(chunks))
		query, args := i.insertBatch(documentID, chunks[start:end], vectors[start:end])
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return unavailable(fmt.Sprintf("pgvector upsert batch %d-%d of %d", start, end, len(chunks)), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("pgvector commit upsert", err)
	}
	return nil
}

func (i *Index) insertBatch(documentID string, chunks []domain.Chunk, vectors [][]float32) (string, []any) {
	const cols = 7
	var b strings.Builder
	b.WriteString(`INSERT INTO chunk_vectors (id, document_id, chunk_id, page_start, page_end, text_snippet, embedding) VALUES `)
	args := make([]any, 0, len(chunks)*cols)
	for n, chunk := range chunks {
		if n > 0 {
			b.WriteString(",")
		}
		base := n * cols
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args,
			uuid.NewString(), documentID, chunk.ID, chunk.PageStart, chunk.PageEnd,
			snippet(chunk.Text, i.snippetChars), pgvector.NewVector(vectors[n]),
		)
	}
	return b.String(), args
}

func (i *Index) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := i.db.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE document_id = $1`, documentID); err != nil {
		return unavailable("pgvector delete document", err)
	}
	return nil
}

func (i *Index) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.SearchHit, error) {
	rows, err := i.db.QueryContext(ctx, `
SELECT id, document_id, chunk_id, page_start, page_end, text_snippet, 1 - (embedding <=> $1) AS score
FROM chunk_vectors
ORDER BY embedding <=> $1
LIMIT $2
`, pgvector.NewVector(queryVector), limit)
	if err != nil {
		return nil, unavailable("pgvector search", err)
	}
	defer rows.Close()

	hits := make([]domain.SearchHit, 0, limit)
	for rows.Next() {
		var h domain.SearchHit
		if err := rows.Scan(
			&h.PointID, &h.Payload.DocumentID, &h.Payload.ChunkID, &h.Payload.PageStart,
			&h.Payload.PageEnd, &h.Payload.TextSnippet, &h.Score,
		); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("pgvector search", err)
	}
	return hits, nil
}

func (i *Index) Ping(ctx context.Context) error {
	if err := i.db.PingContext(ctx); err != nil {
		return unavailable("pgvector ping", err)
	}
	return nil
}

func unavailable(operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.WrapError(domain.ErrIndexUnavailable, operation, err)
}

func snippet(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
