package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docintel/internal/config"
	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
	"github.com/kirillkom/docintel/internal/core/usecase"
	"github.com/kirillkom/docintel/internal/infrastructure/annotation"
	"github.com/kirillkom/docintel/internal/infrastructure/chunking"
	"github.com/kirillkom/docintel/internal/infrastructure/embedding"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/docx"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/image"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/spreadsheet"
	"github.com/kirillkom/docintel/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/docintel/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docintel/internal/infrastructure/llm/openaicompat"
	"github.com/kirillkom/docintel/internal/infrastructure/ocr/tesseract"
	"github.com/kirillkom/docintel/internal/infrastructure/queue/memory"
	"github.com/kirillkom/docintel/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docintel/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docintel/internal/infrastructure/resilience"
	"github.com/kirillkom/docintel/internal/infrastructure/storage/localfs"
	s3storage "github.com/kirillkom/docintel/internal/infrastructure/storage/s3"
	"github.com/kirillkom/docintel/internal/infrastructure/vector/pgvector"
	"github.com/kirillkom/docintel/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/docintel/internal/observability/metrics"
)

// App holds the wired use cases shared by the api, worker and docctl binaries.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	Index     ports.VectorIndex
	Ingest    *usecase.IngestDocumentUseCase
	Process   *usecase.ProcessDocumentUseCase
	Query     *usecase.QueryUseCase
	Documents *usecase.DocumentsUseCase
	Health    *usecase.HealthUseCase

	// Models lists the registered generation models of the active runtime.
	Models        []config.ModelSpec
	WorkerMetrics *metrics.WorkerMetrics

	closers []func() error
}

// New wires every backend selected by cfg. The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (app *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	app = &App{
		Config:        cfg,
		Logger:        logger,
		WorkerMetrics: metrics.NewWorkerMetrics("docintel-worker"),
	}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	registry, err := config.LoadModelRegistry(cfg.ModelRegistryPath)
	if err != nil {
		return nil, fmt.Errorf("load model registry: %w", err)
	}
	spec, err := registry.Lookup(cfg.GenRuntime, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("resolve generation model: %w", err)
	}
	app.Models = registry.Models(cfg.GenRuntime)

	executor := resilience.NewExecutor(cfg.Resilience(), logger)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(db.Close)
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	app.Repo = repo

	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := app.newQueue(cfg, executor)
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.Queue = queue

	generator, backendEmbedder, err := app.newModels(ctx, cfg, spec, executor)
	if err != nil {
		return nil, err
	}
	embedder := embedding.NewNormalizing(backendEmbedder, embedding.Options{
		Dimension:   cfg.EmbedDim,
		BatchSize:   cfg.EmbedBatchSize,
		Parallelism: cfg.EmbedParallelism,
	})
	if err := embedder.Probe(ctx); err != nil {
		return nil, fmt.Errorf("probe embedding dimension: %w", err)
	}

	index := newIndex(cfg, db, embedder.Dimension(), executor, logger)
	if err := index.EnsureReady(ctx); err != nil {
		return nil, fmt.Errorf("ensure vector index: %w", err)
	}
	app.Index = index

	annotator := annotation.New(generator, annotation.Options{
		Retries:        cfg.AnnotationRetries,
		MaxPromptChars: cfg.AggregateMaxChars,
		Logger:         logger,
	})

	ocr := tesseract.New(cfg.OCRLanguages...)
	textExtractor := extractor.New(storage, map[string]extractor.Parser{
		".pdf": pdf.NewParser(ocr, pdf.NewPopplerRasterizer(cfg.PDFRasterizer), pdf.Options{
			MinTextChars: cfg.OCRMinTextChars,
			DPI:          cfg.OCRDPI,
			Logger:       logger,
		}),
		".docx": docx.NewParser(),
		".xlsx": spreadsheet.NewParser(),
		".png":  image.NewParser(ocr),
		".jpg":  image.NewParser(ocr),
		".jpeg": image.NewParser(ocr),
		".txt":  plaintext.NewParser(),
		".md":   plaintext.NewParser(),
	}, extractor.Options{
		LanguagePrefix: cfg.LangDetectPrefix,
		Logger:         logger,
	})

	app.Process = usecase.NewProcessDocumentUseCase(
		repo,
		textExtractor,
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		index,
		annotator,
		usecase.ProcessOptions{
			AggregateMaxChars: cfg.AggregateMaxChars,
			Logger:            logger,
			Observer:          app.WorkerMetrics,
		},
	)
	app.Ingest = usecase.NewIngestDocumentUseCase(repo, storage, queue, usecase.IngestOptions{
		AllowedExtensions: cfg.AllowedExtensions,
		InlineMaxBytes:    cfg.InlineMaxBytes,
		FormatSupported:   textExtractor.Supports,
		Processor:         app.Process,
		Logger:            logger,
	})
	app.Query = usecase.NewQueryUseCase(embedder, index, annotator, repo, usecase.QueryOptions{
		DefaultLimit: cfg.SearchDefaultK,
		MaxLimit:     cfg.SearchMaxK,
		RAGTopK:      cfg.RAGTopK,
	})
	app.Documents = usecase.NewDocumentsUseCase(repo, index, storage, usecase.DocumentsOptions{
		DefaultLimit: cfg.ListDefaultLimit,
		MaxLimit:     cfg.ListMaxLimit,
		Logger:       logger,
	})
	app.Health = usecase.NewHealthUseCase(repo, index, generator, cfg.HealthCheckTimeout)

	logger.Info("bootstrap complete",
		"queue", cfg.QueueBackend,
		"storage", cfg.StorageBackend,
		"vector_backend", cfg.VectorBackend,
		"gen_runtime", cfg.GenRuntime,
		"gen_model", cfg.GenModel,
		"embed_runtime", cfg.EmbedRuntime,
		"embed_dim", embedder.Dimension(),
	)
	return app, nil
}

// Close releases backends in reverse order of construction.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil && a.Logger != nil {
		a.Logger.Warn("close backends", "error", err)
	}
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func newStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	if cfg.StorageBackend == "s3" {
		return s3storage.New(ctx, s3storage.Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
			// Custom endpoints are usually MinIO or similar, which reject the default checksums.
			ChecksumWhenRequired: cfg.S3Endpoint != "",
			Prefix:               cfg.S3Prefix,
		})
	}
	return localfs.New(cfg.StoragePath)
}

func (a *App) newQueue(cfg config.Config, executor *resilience.Executor) (ports.MessageQueue, error) {
	if cfg.QueueBackend == "memory" {
		queue := memory.New(cfg.MemoryQueueBuffer, cfg.MemoryQueueWorkers, a.Logger,
			memory.WithDropHandler(a.failDroppedJob),
		)
		a.onClose(func() error {
			queue.Close()
			return nil
		})
		return queue, nil
	}
	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             a.Logger,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(func() error {
		queue.Close()
		return nil
	})
	return queue, nil
}

// failDroppedJob records a job the memory queue discarded at shutdown, so the document
// does not stay pending with nothing left to process it.
func (a *App) failDroppedJob(ctx context.Context, job domain.ProcessingJob) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	reason := "processing job dropped at shutdown; reprocess to retry"
	if err := a.Repo.UpdateStatus(ctx, job.DocumentID, domain.StatusFailed, reason); err != nil {
		a.Logger.Warn("mark dropped job failed", "document_id", job.DocumentID, "error", err)
	}
}

// newModels builds the generation backend from the registry entry and the raw embedding backend.
// A single gemini client is shared when both runtimes are gemini.
func (a *App) newModels(
	ctx context.Context,
	cfg config.Config,
	spec config.ModelSpec,
	executor *resilience.Executor,
) (ports.Generator, ports.Embedder, error) {
	var geminiClient *gemini.Client
	geminiFor := func() (*gemini.Client, error) {
		if geminiClient != nil {
			return geminiClient, nil
		}
		c, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GenModel, cfg.EmbedModel, gemini.Options{
			Temperature: float32(spec.Temperature),
			TopP:        float32(spec.TopP),
			MaxTokens:   int32(spec.MaxTokens),
			Executor:    executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		a.onClose(c.Close)
		geminiClient = c
		return c, nil
	}
	ollamaClient := ollama.New(cfg.OllamaURL, cfg.GenModel, cfg.EmbedModel, ollama.Options{
		Timeout:     cfg.LLMTimeout,
		Temperature: spec.Temperature,
		TopP:        spec.TopP,
		MaxTokens:   spec.MaxTokens,
		Executor:    executor,
	})

	var generator ports.Generator
	switch cfg.GenRuntime {
	case config.RuntimeGemini:
		c, err := geminiFor()
		if err != nil {
			return nil, nil, err
		}
		generator = gemini.NewGenerator(c)
	case config.RuntimeOpenAI:
		generator = openaicompat.New(cfg.OpenAICompatURL, cfg.GenModel, openaicompat.Options{
			APIKey:      cfg.OpenAICompatKey,
			Timeout:     cfg.LLMTimeout,
			Temperature: spec.Temperature,
			TopP:        spec.TopP,
			MaxTokens:   spec.MaxTokens,
			Executor:    executor,
		})
	default:
		generator = ollama.NewGenerator(ollamaClient)
	}

	var embedder ports.Embedder
	switch cfg.EmbedRuntime {
	case config.RuntimeGemini:
		c, err := geminiFor()
		if err != nil {
			return nil, nil, err
		}
		embedder = gemini.NewEmbedder(c)
	default:
		embedder = ollama.NewEmbedder(ollamaClient)
	}
	return generator, embedder, nil
}

func newIndex(
	cfg config.Config,
	db *sql.DB,
	dimension int,
	executor *resilience.Executor,
	logger *slog.Logger,
) ports.VectorIndex {
	if cfg.VectorBackend == "pgvector" {
		return pgvector.New(db, pgvector.Options{
			VectorSize:   dimension,
			BatchSize:    cfg.QdrantBatchSize,
			SnippetChars: cfg.TextSnippetChars,
		})
	}
	return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
		APIKey:             cfg.QdrantAPIKey,
		VectorSize:         dimension,
		BatchSize:          cfg.QdrantBatchSize,
		SnippetChars:       cfg.TextSnippetChars,
		Timeout:            cfg.QdrantTimeout,
		ResilienceExecutor: executor,
		Logger:             logger,
	})
}
