package pgvector

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func newIndexWithMock(t *testing.T, opts Options) (*Index, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, opts), mock
}

func chunksOf(n int) ([]domain.Chunk, [][]float32) {
	chunks := make([]domain.Chunk, n)
	vectors := make([][]float32, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{ID: "c", PageStart: 1, PageEnd: 1, Text: "text"}
		vectors[i] = []float32{1, 0}
	}
	return chunks, vectors
}

func TestEnsureReadyChecksDimension(t *testing.T) {
	idx, mock := newIndexWithMock(t, Options{VectorSize: 2})

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS chunk_vectors").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT atttypmod").WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}).AddRow(768))
	mock.ExpectRollback()

	err := idx.EnsureReady(context.Background())
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureReadyCommitsWhenDimensionMatches(t *testing.T) {
	idx, mock := newIndexWithMock(t, Options{VectorSize: 2})

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("vector\\(2\\)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT atttypmod").WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}).AddRow(2))
	mock.ExpectCommit()

	require.NoError(t, idx.EnsureReady(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchesInOneTransaction(t *testing.T) {
	idx, mock := newIndexWithMock(t, Options{VectorSize: 2, BatchSize: 2})
	chunks, vectors := chunksOf(3)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chunk_vectors").
		WithArgs(sqlmock.AnyArg(), "doc-1", "c", 1, 1, "text", "[1,0]",
			sqlmock.AnyArg(), "doc-1", "c", 1, 1, "text", "[1,0]").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO chunk_vectors").
		WithArgs(sqlmock.AnyArg(), "doc-1", "c", 1, 1, "text", "[1,0]").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, idx.Upsert(context.Background(), "doc-1", chunks, vectors))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchFailureRollsBack(t *testing.T) {
	idx, mock := newIndexWithMock(t, Options{VectorSize: 2, BatchSize: 1})
	chunks, vectors := chunksOf(3)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chunk_vectors").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO chunk_vectors").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := idx.Upsert(context.Background(), "doc-1", chunks, vectors)
	assert.True(t, domain.IsKind(err, domain.ErrIndexUnavailable), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	idx, mock := newIndexWithMock(t, Options{VectorSize: 3})
	chunks, vectors := chunksOf(1)

	err := idx.Upsert(context.Background(), "doc-1", chunks, vectors)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDocumentIsNoOpForUnknownDocument(t *testing.T) {
	idx, mock := newIndexWithMock(t, Options{VectorSize: 2})

	mock.ExpectExec("DELETE FROM chunk_vectors").WithArgs("doc-x").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, idx.DeleteDocument(context.Background(), "doc-x"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchScansHits(t *testing.T) {
	idx, mock := newIndexWithMock(t, Options{VectorSize: 2})

	mock.ExpectQuery("ORDER BY embedding <=>").
		WithArgs("[0,1]", 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "chunk_id", "page_start", "page_end", "text_snippet", "score"}).
			AddRow("p1", "doc-1", "c1", 2, 2, "snippet", 0.92))

	hits, err := idx.Search(context.Background(), []float32{0, 1}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].Payload.DocumentID)
	assert.Equal(t, 2, hits[0].Payload.PageStart)
	assert.InDelta(t, 0.92, hits[0].Score, 1e-9)
}

func TestSearchEmptyIsNotAnError(t *testing.T) {
	idx, mock := newIndexWithMock(t, Options{VectorSize: 2})

	mock.ExpectQuery("ORDER BY embedding").
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "chunk_id", "page_start", "page_end", "text_snippet", "score"}))

	hits, err := idx.Search(context.Background(), []float32{0, 1}, 3)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}
