package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/docintel/internal/adapters/worker"
	"github.com/kirillkom/docintel/internal/bootstrap"
	"github.com/kirillkom/docintel/internal/config"
	"github.com/kirillkom/docintel/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("docintel-worker", cfg.LogLevel)

	if cfg.QueueBackend == "memory" {
		logger.Error("the memory queue is served by the api process; set QUEUE_BACKEND=nats to run a separate worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.WorkerMetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server failed", "error", err)
		}
	}()

	handler := worker.NewHandler(app.Process, worker.Options{
		DocumentTimeout: cfg.WorkerDocTimeout,
		Observer:        app.WorkerMetrics,
		Logger:          logger,
	})

	logger.Info("worker subscribed",
		"subject", cfg.NATSSubject,
		"metrics_port", cfg.WorkerMetricsPort,
		"document_timeout", cfg.WorkerDocTimeout.String(),
	)
	if err := app.Queue.SubscribeDocumentJobs(ctx, handler.Handle); err != nil {
		logger.Error("worker subscription failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("worker metrics shutdown incomplete", "error", err)
	}
	logger.Info("worker stopped")
}
