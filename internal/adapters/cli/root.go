package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docintel/internal/core/ports"
)

// Services are the use cases the commands operate on.
type Services struct {
	Ingest    ports.DocumentIngestor
	Query     ports.DocumentQueryService
	Documents ports.DocumentReader
	Remover   ports.DocumentRemover
	Index     interface{ EnsureReady(ctx context.Context) error }

	AllowedExtensions []string
	MaxUploadBytes    int64
	Logger            *slog.Logger
}

// Loader builds Services on first use. The returned func releases them.
type Loader func(ctx context.Context) (*Services, func(), error)

type runtime struct {
	load     Loader
	services *Services
	release  func()
}

func (r *runtime) get(ctx context.Context) (*Services, error) {
	if r.services != nil {
		return r.services, nil
	}
	if r.load == nil {
		return nil, errors.New("services not configured")
	}
	svc, release, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if svc.Logger == nil {
		svc.Logger = slog.Default()
	}
	r.services, r.release = svc, release
	return svc, nil
}

func (r *runtime) close() {
	if r.release != nil {
		r.release()
	}
	r.services, r.release = nil, nil
}

// Execute runs docctl with os.Args. Services are loaded lazily so that help output needs no backends.
func Execute(ctx context.Context, load Loader) error {
	rt := &runtime{load: load}
	defer rt.close()
	root := newRootCommand(rt)
	root.SetOut(os.Stdout)
	return root.ExecuteContext(ctx)
}

func newRootCommand(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "docctl",
		Short:         "Operate the document ingestion pipeline",
		Long:          `Upload, inspect, search and maintain documents without going through the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newUploadCmd(rt),
		newListCmd(rt),
		newShowCmd(rt),
		newDeleteCmd(rt),
		newReprocessCmd(rt),
		newSearchCmd(rt),
		newAskCmd(rt),
		newEnsureIndexCmd(rt),
		newWatchCmd(rt),
		newMCPCmd(rt),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
