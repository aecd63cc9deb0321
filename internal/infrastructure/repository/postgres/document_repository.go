package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const pgForeignKeyViolation = "23503"

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	language_primary TEXT,
	ocr_applied BOOLEAN NOT NULL DEFAULT FALSE,
	page_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);

CREATE TABLE IF NOT EXISTS pages (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	page_number INTEGER NOT NULL,
	text_raw TEXT,
	text_ocr TEXT,
	language TEXT,
	has_images BOOLEAN NOT NULL DEFAULT FALSE,
	ocr_applied BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (document_id, page_number)
);

CREATE TABLE IF NOT EXISTS annotations (
	document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
	summary JSONB NOT NULL,
	classification JSONB NOT NULL,
	extraction JSONB NOT NULL DEFAULT '{}'::jsonb,
	model TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, filename, mime_type, storage_path, size_bytes, language_primary, ocr_applied, page_count, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		doc.ID, doc.Filename, doc.MimeType, doc.StoragePath, doc.SizeBytes, doc.LanguagePrimary,
		doc.OCRApplied, doc.PageCount, string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const documentColumns = `id, filename, mime_type, storage_path, size_bytes, language_primary, ocr_applied, page_count, status, error_message, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var (
		doc    domain.Document
		lang   sql.NullString
		status string
	)
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.SizeBytes, &lang,
		&doc.OCRApplied, &doc.PageCount, &status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}
	doc.LanguagePrimary = nullableString(lang)
	doc.Status = domain.DocumentStatus(status)
	return doc, nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("document %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireAffected(res, "update document status", id)
}

// ReplacePages swaps the page set of a document and its extraction metadata in one transaction.
func (r *DocumentRepository) ReplacePages(ctx context.Context, id string, pages []domain.Page, meta domain.ExtractionMeta) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pages tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrDocumentNotFound, "replace pages", fmt.Errorf("document %s", id))
		}
		return fmt.Errorf("lock document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("delete pages: %w", err)
	}
	for _, p := range pages {
		_, err := tx.ExecContext(ctx, `
INSERT INTO pages (document_id, page_number, text_raw, text_ocr, language, has_images, ocr_applied)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, id, p.Number, p.TextRaw, p.TextOCR, p.Language, p.HasImages, p.OCRApplied)
		if err != nil {
			return fmt.Errorf("insert page %d: %w", p.Number, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
UPDATE documents
SET page_count = $2, language_primary = $3, ocr_applied = $4, updated_at = $5
WHERE id = $1
`, id, len(pages), meta.LanguagePrimary, meta.OCRApplied, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update extraction meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pages tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListPages(ctx context.Context, id string) ([]domain.Page, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT page_number, text_raw, text_ocr, language, has_images, ocr_applied
FROM pages
WHERE document_id = $1
ORDER BY page_number
`, id)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	pages := make([]domain.Page, 0)
	for rows.Next() {
		var (
			p                   domain.Page
			raw, ocrText, langs sql.NullString
		)
		if err := rows.Scan(&p.Number, &raw, &ocrText, &langs, &p.HasImages, &p.OCRApplied); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		p.TextRaw = nullableString(raw)
		p.TextOCR = nullableString(ocrText)
		p.Language = nullableString(langs)
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

// SaveAnnotation replaces the single annotation of a document.
func (r *DocumentRepository) SaveAnnotation(ctx context.Context, a domain.Annotation) error {
	summaryJSON, err := json.Marshal(a.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	classificationJSON, err := json.Marshal(a.Classification)
	if err != nil {
		return fmt.Errorf("marshal classification: %w", err)
	}
	extraction := a.Extraction
	if extraction == nil {
		extraction = map[string]any{}
	}
	extractionJSON, err := json.Marshal(extraction)
	if err != nil {
		return fmt.Errorf("marshal extraction: %w", err)
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO annotations (document_id, summary, classification, extraction, model, created_at)
SELECT $1, $2, $3, $4, $5, $6
WHERE EXISTS (SELECT 1 FROM documents WHERE id = $1)
ON CONFLICT (document_id) DO UPDATE
SET summary = EXCLUDED.summary,
	classification = EXCLUDED.classification,
	extraction = EXCLUDED.extraction,
	model = EXCLUDED.model,
	created_at = EXCLUDED.created_at
`, a.DocumentID, summaryJSON, classificationJSON, extractionJSON, a.Model, createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return domain.WrapError(domain.ErrDocumentNotFound, "save annotation", err)
		}
		return fmt.Errorf("save annotation: %w", err)
	}
	return requireAffected(res, "save annotation", a.DocumentID)
}

// GetAnnotation returns nil without error when the document has not been annotated yet.
func (r *DocumentRepository) GetAnnotation(ctx context.Context, id string) (*domain.Annotation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT document_id, summary, classification, extraction, model, created_at
FROM annotations
WHERE document_id = $1
`, id)

	var (
		a                                  domain.Annotation
		summaryRaw, classRaw, extractedRaw []byte
	)
	if err := row.Scan(&a.DocumentID, &summaryRaw, &classRaw, &extractedRaw, &a.Model, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan annotation: %w", err)
	}
	if err := json.Unmarshal(summaryRaw, &a.Summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	if err := json.Unmarshal(classRaw, &a.Classification); err != nil {
		return nil, fmt.Errorf("unmarshal classification: %w", err)
	}
	if err := json.Unmarshal(extractedRaw, &a.Extraction); err != nil {
		return nil, fmt.Errorf("unmarshal extraction: %w", err)
	}
	return &a, nil
}

// List returns documents newest first together with the total count.
func (r *DocumentRepository) List(ctx context.Context, limit, offset int) ([]domain.Document, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, total, nil
}

func (r *DocumentRepository) FilenamesByID(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, filename FROM documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query filenames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, filename string
		if err := rows.Scan(&id, &filename); err != nil {
			return nil, fmt.Errorf("scan filename: %w", err)
		}
		out[id] = filename
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filenames: %w", err)
	}
	return out, nil
}

// Delete removes the document; pages and annotation go with it through ON DELETE CASCADE.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireAffected(res, "delete document", id)
}

func (r *DocumentRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func requireAffected(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("document %s", id))
	}
	return nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
