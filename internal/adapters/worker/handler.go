package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

// Observer records per-document outcomes and queue latency.
type Observer interface {
	StartDocument()
	FinishDocument(duration time.Duration, err error)
	ObserveQueueLag(lag time.Duration)
}

type Options struct {
	// DocumentTimeout bounds one pipeline run. Zero means no bound beyond the subscription context.
	DocumentTimeout time.Duration
	Observer        Observer
	Logger          *slog.Logger
	Now             func() time.Time
}

// Handler runs queued processing jobs against the pipeline.
type Handler struct {
	processor ports.DocumentProcessor
	timeout   time.Duration
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

func NewHandler(processor ports.DocumentProcessor, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		processor: processor,
		timeout:   opts.DocumentTimeout,
		observer:  opts.Observer,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// Handle processes one job. Resume jobs skip extraction when pages are already stored.
func (h *Handler) Handle(ctx context.Context, job domain.ProcessingJob) error {
	start := h.now()
	if h.observer != nil {
		if !job.EnqueuedAt.IsZero() {
			h.observer.ObserveQueueLag(start.Sub(job.EnqueuedAt))
		}
		h.observer.StartDocument()
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	var err error
	if job.Resume {
		err = h.processor.ReprocessByID(ctx, job.DocumentID)
	} else {
		err = h.processor.ProcessByID(ctx, job.DocumentID)
	}

	elapsed := h.now().Sub(start)
	if h.observer != nil {
		h.observer.FinishDocument(elapsed, err)
	}
	if err != nil {
		h.logger.Error("document processing failed",
			"document_id", job.DocumentID,
			"resume", job.Resume,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return err
	}
	h.logger.Info("document processed",
		"document_id", job.DocumentID,
		"resume", job.Resume,
		"duration_ms", elapsed.Milliseconds(),
	)
	return nil
}
