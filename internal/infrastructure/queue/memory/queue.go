package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// ErrClosed is returned when publishing after the consumer has stopped.
var ErrClosed = errors.New("memory queue closed")

// DropFunc is told about a job that was accepted but will never be handled.
type DropFunc func(ctx context.Context, job domain.ProcessingJob)

type Option func(*Queue)

// WithDropHandler sets the callback for jobs still buffered at shutdown.
func WithDropHandler(fn DropFunc) Option {
	return func(q *Queue) { q.onDrop = fn }
}

// Queue is an in-process job queue with a bounded buffer and a fixed worker pool.
// It serves single-binary deployments where api and worker run together.
type Queue struct {
	jobs    chan domain.ProcessingJob
	workers int
	logger  *slog.Logger
	onDrop  DropFunc

	// mu is held for reading by publishers and for writing while the queue closes,
	// so no job can enter the buffer after it has been drained.
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

func New(buffer, workers int, logger *slog.Logger, opts ...Option) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		jobs:    make(chan domain.ProcessingJob, buffer),
		workers: workers,
		logger:  logger,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PublishDocumentJob blocks while the buffer is full, until ctx is done.
func (q *Queue) PublishDocumentJob(ctx context.Context, job domain.ProcessingJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return domain.WrapError(domain.ErrTemporary, "memory publish", ErrClosed)
	}
	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return domain.WrapError(domain.ErrTemporary, "memory publish", ErrClosed)
	case <-ctx.Done():
		return domain.WrapError(domain.ErrTemporary, "memory publish", ctx.Err())
	}
}

// SubscribeDocumentJobs runs the worker pool until ctx is done. Jobs that have not started
// by then are handed to the drop handler.
func (q *Queue) SubscribeDocumentJobs(ctx context.Context, handler func(context.Context, domain.ProcessingJob) error) error {
	dropCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-q.jobs:
					if ctx.Err() != nil {
						q.drop(dropCtx, job)
						return
					}
					if err := handler(ctx, job); err != nil {
						q.logger.Error("worker handler error", "document_id", job.DocumentID, "error", err)
					}
				}
			}
		}()
	}
	<-ctx.Done()

	q.shutdown()
	wg.Wait()
	q.drain(dropCtx)
	return nil
}

// Close stops accepting jobs and drops whatever is still buffered. It is needed when no
// subscriber runs in this process.
func (q *Queue) Close() {
	q.shutdown()
	q.drain(context.Background())
}

func (q *Queue) shutdown() {
	q.closeOnce.Do(func() { close(q.done) })
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case job := <-q.jobs:
			q.drop(ctx, job)
		default:
			return
		}
	}
}

func (q *Queue) drop(ctx context.Context, job domain.ProcessingJob) {
	q.logger.Warn("dropping queued job at shutdown", "document_id", job.DocumentID)
	if q.onDrop != nil {
		q.onDrop(ctx, job)
	}
}
