package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"CHUNK_SIZE", "CHUNK_OVERLAP", "EMBED_DIM", "QDRANT_COLLECTION", "ALLOWED_EXTENSIONS", "WORKER_DOCUMENT_TIMEOUT", "VECTOR_BACKEND"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.ChunkSize != 2000 || cfg.ChunkOverlap != 200 {
		t.Fatalf("unexpected chunk defaults: %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.EmbedDim != 768 {
		t.Fatalf("expected default embedding dim 768, got %d", cfg.EmbedDim)
	}
	if cfg.QdrantCollection != "trinetra_chunks" {
		t.Fatalf("unexpected collection default %q", cfg.QdrantCollection)
	}
	if len(cfg.AllowedExtensions) != 6 || cfg.AllowedExtensions[0] != ".pdf" {
		t.Fatalf("unexpected allowed extensions %v", cfg.AllowedExtensions)
	}
	if cfg.WorkerDocTimeout != 10*time.Minute {
		t.Fatalf("expected 10m worker timeout, got %s", cfg.WorkerDocTimeout)
	}
	if cfg.VectorBackend != "qdrant" {
		t.Fatalf("expected qdrant backend, got %q", cfg.VectorBackend)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("OCR_LANGUAGES", "eng, deu ,")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("QDRANT_TIMEOUT", "5s")
	t.Setenv("S3_USE_PATH_STYLE", "true")
	t.Setenv("VECTOR_BACKEND", "PGVector")

	cfg := Load()
	if cfg.ChunkSize != 500 {
		t.Fatalf("expected chunk size 500, got %d", cfg.ChunkSize)
	}
	if strings.Join(cfg.OCRLanguages, "+") != "eng+deu" {
		t.Fatalf("unexpected ocr languages %v", cfg.OCRLanguages)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.QdrantTimeout != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %s", cfg.QdrantTimeout)
	}
	if !cfg.S3UsePathStyle {
		t.Fatalf("expected path style addressing")
	}
	if cfg.VectorBackend != "pgvector" {
		t.Fatalf("expected lower-cased backend, got %q", cfg.VectorBackend)
	}
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	t.Setenv("CHUNK_OVERLAP", "lots")
	t.Setenv("RESILIENCE_BREAKER_ENABLED", "maybe")
	t.Setenv("HEALTH_CHECK_TIMEOUT", "soon")

	cfg := Load()
	if cfg.ChunkOverlap != 200 {
		t.Fatalf("expected fallback overlap, got %d", cfg.ChunkOverlap)
	}
	if !cfg.BreakerEnabled {
		t.Fatalf("expected fallback breaker flag")
	}
	if cfg.HealthCheckTimeout != 3*time.Second {
		t.Fatalf("expected fallback health timeout, got %s", cfg.HealthCheckTimeout)
	}
}

func TestValidateRejectsInvalidSettings(t *testing.T) {
	cfg := Load()
	cfg.ChunkSize = 0
	cfg.EmbedDim = -1
	cfg.QueueBackend = "kafka"
	cfg.StorageBackend = "s3"
	cfg.S3Bucket = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"CHUNK_SIZE", "EMBED_DIM", "QUEUE_BACKEND", "S3_BUCKET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
}

func TestValidateAllowsOverlapNotSmallerThanChunk(t *testing.T) {
	cfg := Load()
	cfg.ChunkSize = 100
	cfg.ChunkOverlap = 100
	if err := cfg.Validate(); err != nil {
		t.Fatalf("overlap >= size is clamped by the chunker, got %v", err)
	}
}

func TestResilienceMapping(t *testing.T) {
	t.Setenv("RESILIENCE_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("RESILIENCE_BREAKER_MIN_REQUESTS", "-3")

	rc := Load().Resilience()
	if rc.RetryMaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", rc.RetryMaxAttempts)
	}
	if rc.BreakerMinRequests != 0 {
		t.Fatalf("negative min requests must map to zero, got %d", rc.BreakerMinRequests)
	}
}

func TestEmbeddedModelRegistry(t *testing.T) {
	registry, err := LoadModelRegistry("")
	if err != nil {
		t.Fatalf("LoadModelRegistry() error = %v", err)
	}
	spec, err := registry.Lookup(RuntimeOllama, "llama3.1:8b")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if spec.Temperature != 0.1 || spec.TopP != 0.9 {
		t.Fatalf("unexpected sampling params %+v", spec)
	}
	if _, err := registry.Lookup(RuntimeGemini, "gemini-1.5-flash"); err != nil {
		t.Fatalf("expected gemini default to be registered: %v", err)
	}
	if _, err := registry.Lookup(RuntimeOllama, "unknown:1b"); err == nil || !strings.Contains(err.Error(), "llama3.1:8b") {
		t.Fatalf("expected unknown model error listing known models, got %v", err)
	}
}

func TestModelRegistryOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	content := "openai:\n  - name: local-vllm\n    temperature: 0.3\n    top_p: 0.8\n    max_tokens: 256\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write registry: %v", err)
	}

	registry, err := LoadModelRegistry(path)
	if err != nil {
		t.Fatalf("LoadModelRegistry() error = %v", err)
	}
	spec, err := registry.Lookup(RuntimeOpenAI, "local-vllm")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if spec.MaxTokens != 256 {
		t.Fatalf("unexpected spec %+v", spec)
	}
	if len(registry.Models(RuntimeOllama)) != 0 {
		t.Fatalf("override replaces the embedded registry")
	}
}

func TestModelRegistryRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"missing name": "ollama:\n  - description: x\n",
		"duplicate":    "ollama:\n  - name: a\n  - name: a\n",
		"bad top_p":    "ollama:\n  - name: a\n    top_p: 1.5\n",
		"not yaml":     "ollama: [",
	}
	for name, raw := range cases {
		if _, err := parseModelRegistry([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
