package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kirillkom/docintel/internal/config"
	"github.com/kirillkom/docintel/internal/core/ports"
	"github.com/kirillkom/docintel/internal/observability/metrics"
)

const defaultMaxUploadBytes = 100 << 20

// Services are the inbound ports served over HTTP. Metrics and Logger are optional.
type Services struct {
	Ingest    ports.DocumentIngestor
	Query     ports.DocumentQueryService
	Documents ports.DocumentReader
	Remover   ports.DocumentRemover
	Health    ports.HealthChecker
	Models    []config.ModelSpec
	Metrics   *metrics.HTTPServerMetrics
	Logger    *slog.Logger
}

type Router struct {
	cfg config.Config
	svc Services

	logger         *slog.Logger
	maxUploadBytes int64
}

func NewRouter(cfg config.Config, svc Services) *Router {
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.APIMaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &Router{
		cfg:            cfg,
		svc:            svc,
		logger:         logger,
		maxUploadBytes: maxUpload,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(rt.logger))
	if rt.svc.Metrics != nil {
		r.Use(rt.svc.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", rt.svc.Metrics.Handler())
	}
	if len(rt.cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: rt.cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", rt.health)
	r.Get("/openapi.json", rt.openAPI)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(rateLimitMiddleware(rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst))
		v1.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.cfg.APIBackpressureMax, rt.backpressureWait())
		})
		v1.Use(apiKeyMiddleware(rt.cfg.APIKey))

		v1.Post("/documents", rt.uploadDocuments)
		v1.Get("/documents", rt.listDocuments)
		v1.Get("/documents/{id}", rt.getDocument)
		v1.Delete("/documents/{id}", rt.deleteDocument)
		v1.Post("/documents/{id}/reprocess", rt.reprocessDocument)
		v1.Get("/search", rt.search)
		v1.Post("/search/rag", rt.ask)
		v1.Get("/models", rt.listModels)
	})
	return r
}

func (rt *Router) backpressureWait() time.Duration {
	if rt.cfg.APIBackpressureWait > 0 {
		return rt.cfg.APIBackpressureWait
	}
	return 250 * time.Millisecond
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	report := rt.svc.Health.Check(r.Context())
	status := http.StatusOK
	if !report.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (rt *Router) listModels(w http.ResponseWriter, _ *http.Request) {
	models := rt.svc.Models
	if models == nil {
		models = []config.ModelSpec{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runtime": rt.cfg.GenRuntime,
		"active":  rt.cfg.GenModel,
		"models":  models,
	})
}

// writeServiceError maps a use case error to a status and logs server-side failures.
func (rt *Router) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
