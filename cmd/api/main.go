package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/docintel/internal/adapters/http"
	"github.com/kirillkom/docintel/internal/adapters/worker"
	"github.com/kirillkom/docintel/internal/bootstrap"
	"github.com/kirillkom/docintel/internal/config"
	"github.com/kirillkom/docintel/internal/observability/logging"
	"github.com/kirillkom/docintel/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("docintel-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Ingest:    app.Ingest,
		Query:     app.Query,
		Documents: app.Documents,
		Remover:   app.Documents,
		Health:    app.Health,
		Models:    app.Models,
		Metrics:   metrics.NewHTTPServerMetrics("docintel-api"),
		Logger:    logger,
	})
	server := &http.Server{
		Handler:      router.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		logger.Error("api listen failed", "port", cfg.APIPort, "error", err)
		os.Exit(1)
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	// The memory queue only reaches consumers in this process, so the api runs the workers itself.
	workerDone := make(chan struct{})
	var workerMetricsServer *http.Server
	if cfg.QueueBackend == "memory" {
		workerMetricsServer = &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           app.WorkerMetrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := workerMetricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("worker metrics server failed", "error", err)
			}
		}()
		handler := worker.NewHandler(app.Process, worker.Options{
			DocumentTimeout: cfg.WorkerDocTimeout,
			Observer:        app.WorkerMetrics,
			Logger:          logger,
		})
		go func() {
			defer close(workerDone)
			if err := app.Queue.SubscribeDocumentJobs(ctx, handler.Handle); err != nil {
				logger.Error("in-process worker stopped", "error", err)
			}
		}()
	} else {
		close(workerDone)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api listening",
			"port", cfg.APIPort,
			"queue", cfg.QueueBackend,
			"max_connections", cfg.APIMaxConnections,
		)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("api server failed", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown incomplete", "error", err)
	}
	if workerMetricsServer != nil {
		_ = workerMetricsServer.Shutdown(shutdownCtx)
	}
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn("in-process worker did not stop within grace period")
	}
	logger.Info("api stopped")
}
