package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/kirillkom/docintel/internal/core/domain"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type repoFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	pages       map[string][]domain.Page
	annotations map[string]domain.Annotation
	statusCalls []statusCall

	createErr      error
	replacePageErr error
	saveAnnErr     error
	listErr        error
	// deleteOnStatus removes the document right before the given status is written.
	deleteOnStatus domain.DocumentStatus
}

func newRepoFake(docs ...*domain.Document) *repoFake {
	f := &repoFake{
		docs:        map[string]*domain.Document{},
		pages:       map[string][]domain.Page{},
		annotations: map[string]domain.Annotation{},
	}
	for _, d := range docs {
		copyDoc := *d
		f.docs[d.ID] = &copyDoc
	}
	return f
}

func notFound(op string) error {
	return domain.WrapError(domain.ErrDocumentNotFound, op, errors.New("no rows"))
}

func (f *repoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, notFound("get document")
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *repoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteOnStatus != "" && status == f.deleteOnStatus {
		f.deleteLocked(id)
	}
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	doc, ok := f.docs[id]
	if !ok {
		return notFound("update status")
	}
	doc.Status = status
	doc.Error = errMessage
	return nil
}

func (f *repoFake) ReplacePages(_ context.Context, id string, pages []domain.Page, meta domain.ExtractionMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replacePageErr != nil {
		return f.replacePageErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return notFound("replace pages")
	}
	f.pages[id] = append([]domain.Page(nil), pages...)
	doc.PageCount = len(pages)
	doc.OCRApplied = meta.OCRApplied
	doc.LanguagePrimary = meta.LanguagePrimary
	return nil
}

func (f *repoFake) ListPages(_ context.Context, id string) ([]domain.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Page(nil), f.pages[id]...), nil
}

func (f *repoFake) SaveAnnotation(_ context.Context, annotation domain.Annotation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveAnnErr != nil {
		return f.saveAnnErr
	}
	if _, ok := f.docs[annotation.DocumentID]; !ok {
		return notFound("save annotation")
	}
	f.annotations[annotation.DocumentID] = annotation
	return nil
}

func (f *repoFake) GetAnnotation(_ context.Context, id string) (*domain.Annotation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.annotations[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *repoFake) List(_ context.Context, limit, offset int) ([]domain.Document, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	all := make([]domain.Document, 0, len(f.docs))
	for _, d := range f.docs {
		all = append(all, *d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (f *repoFake) FilenamesByID(_ context.Context, ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if d, ok := f.docs[id]; ok {
			out[id] = d.Filename
		}
	}
	return out, nil
}

func (f *repoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return notFound("delete document")
	}
	f.deleteLocked(id)
	return nil
}

func (f *repoFake) deleteLocked(id string) {
	delete(f.docs, id)
	delete(f.pages, id)
	delete(f.annotations, id)
}

func (f *repoFake) Ping(context.Context) error { return nil }

func (f *repoFake) statuses() []domain.DocumentStatus {
	out := make([]domain.DocumentStatus, 0, len(f.statusCalls))
	for _, c := range f.statusCalls {
		out = append(out, c.status)
	}
	return out
}

type extractorFake struct {
	pages []domain.Page
	meta  domain.ExtractionMeta
	err   error
	calls int
}

func (f *extractorFake) Extract(context.Context, *domain.Document) ([]domain.Page, domain.ExtractionMeta, error) {
	f.calls++
	if f.err != nil {
		return nil, domain.ExtractionMeta{}, f.err
	}
	return f.pages, f.meta, nil
}

// chunkerFake emits one chunk per non-empty page.
type chunkerFake struct{}

func (chunkerFake) Chunk(pages []domain.Page, documentID string) []domain.Chunk {
	var out []domain.Chunk
	for _, p := range pages {
		text := p.Text()
		if text == "" {
			continue
		}
		out = append(out, domain.Chunk{
			ID:         documentID + "-chunk",
			DocumentID: documentID,
			PageStart:  p.Number,
			PageEnd:    p.Number,
			CharEnd:    len([]rune(text)),
			Text:       text,
		})
	}
	return out
}

type embedderFake struct {
	err      error
	truncate bool
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	if f.truncate && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type indexFake struct {
	mu          sync.Mutex
	points      map[string]int
	deleteCalls []string
	upsertErr   error
	deleteErr   error
	searchErr   error
	hits        []domain.SearchHit
	searchLimit int
}

func newIndexFake() *indexFake {
	return &indexFake{points: map[string]int{}}
}

func (f *indexFake) EnsureReady(context.Context) error { return nil }

func (f *indexFake) Upsert(_ context.Context, documentID string, chunks []domain.Chunk, _ [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.points[documentID] += len(chunks)
	return nil
}

func (f *indexFake) DeleteDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, documentID)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.points, documentID)
	return nil
}

func (f *indexFake) Search(_ context.Context, _ []float32, limit int) ([]domain.SearchHit, error) {
	f.searchLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *indexFake) Ping(context.Context) error { return nil }

type annotatorFake struct {
	summary        domain.Summary
	classification domain.Classification
	extraction     map[string]any
	classifyErr    error
	// beforeClassify runs at the start of Classify.
	beforeClassify func()
	answer         string
	answerCalls    int
	extractLabel   string
	summarizedText string
}

func (f *annotatorFake) Summarize(_ context.Context, text string) (domain.Summary, error) {
	f.summarizedText = text
	return f.summary, nil
}

func (f *annotatorFake) Classify(context.Context, string) (domain.Classification, error) {
	if f.beforeClassify != nil {
		f.beforeClassify()
	}
	if f.classifyErr != nil {
		return domain.Classification{}, f.classifyErr
	}
	return f.classification, nil
}

func (f *annotatorFake) Extract(_ context.Context, _ string, label string) (map[string]any, error) {
	f.extractLabel = label
	if f.extraction == nil {
		return map[string]any{}, nil
	}
	return f.extraction, nil
}

func (f *annotatorFake) Answer(context.Context, string, []domain.Source) (string, error) {
	f.answerCalls++
	return f.answer, nil
}

func (f *annotatorFake) Model() string { return "test-model" }

type storageFake struct {
	mu      sync.Mutex
	files   map[string][]byte
	saveErr error
	deleted []string
}

func newStorageFake() *storageFake {
	return &storageFake{files: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.files[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.files[key]
	if !ok {
		return nil, errors.New("missing")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	delete(f.files, key)
	return nil
}

type queueFake struct {
	jobs []domain.ProcessingJob
	err  error
}

func (f *queueFake) PublishDocumentJob(_ context.Context, job domain.ProcessingJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *queueFake) SubscribeDocumentJobs(context.Context, func(context.Context, domain.ProcessingJob) error) error {
	return errors.New("not implemented")
}

func strPtr(s string) *string { return &s }
