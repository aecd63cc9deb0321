package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

type Options struct {
	AllowedExtensions []string
	// Debounce is how long a path must stay quiet after its last write before it is uploaded.
	Debounce time.Duration
	// MaxFileBytes skips larger files. Zero means no limit.
	MaxFileBytes int64
	Logger       *slog.Logger
}

// Watcher uploads files that appear or change in a directory.
type Watcher struct {
	dir      string
	ingestor ports.DocumentIngestor
	allowed  map[string]struct{}
	debounce time.Duration
	maxBytes int64
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

func New(dir string, ingestor ports.DocumentIngestor, opts Options) *Watcher {
	allowed := make(map[string]struct{}, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		ingestor: ingestor,
		allowed:  allowed,
		debounce: opts.Debounce,
		maxBytes: opts.MaxFileBytes,
		logger:   opts.Logger,
		pending:  make(map[string]time.Time),
	}
}

// Run watches the directory until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching directory", "dir", w.dir, "debounce", w.debounce.String())

	ticker := time.NewTicker(max(w.debounce/2, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, time.Now())
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

// handleEvent queues created or written files; every other operation is ignored.
func (w *Watcher) handleEvent(event fsnotify.Event, now time.Time) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.shouldIngest(event.Name) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = now
	w.mu.Unlock()
}

func (w *Watcher) shouldIngest(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	_, ok := w.allowed[strings.ToLower(filepath.Ext(base))]
	return ok
}

// flush uploads every pending path that has been quiet for the debounce period.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.mu.Lock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()
	if len(ready) == 0 {
		return
	}
	sort.Strings(ready)

	files := make([]domain.UploadFile, 0, len(ready))
	for _, path := range ready {
		file, err := w.readFile(path)
		if err != nil {
			w.logger.Warn("skip watched file", "path", path, "error", err)
			continue
		}
		files = append(files, file)
	}
	if len(files) == 0 {
		return
	}

	for _, res := range w.ingestor.UploadMany(ctx, files) {
		if res.Error != nil {
			w.logger.Warn("watched file rejected", "filename", res.Filename, "error", *res.Error)
			continue
		}
		w.logger.Info("watched file ingested",
			"filename", res.Filename,
			"document_id", res.DocumentID,
			"status", res.Status,
		)
	}
}

func (w *Watcher) readFile(path string) (domain.UploadFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.UploadFile{}, err
	}
	if w.maxBytes > 0 && info.Size() > w.maxBytes {
		return domain.UploadFile{}, fmt.Errorf("file is %d bytes, limit is %d", info.Size(), w.maxBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.UploadFile{}, err
	}
	return domain.UploadFile{
		Filename: filepath.Base(path),
		MimeType: mime.TypeByExtension(filepath.Ext(path)),
		Size:     int64(len(data)),
		Body:     data,
	}, nil
}
