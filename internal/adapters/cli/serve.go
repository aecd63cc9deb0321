package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/docintel/internal/adapters/mcp"
	"github.com/kirillkom/docintel/internal/adapters/watcher"
)

func newWatchCmd(rt *runtime) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Upload files as they appear in a directory",
		Long: `Watches a directory (not recursively) and uploads created or modified files whose
extension is allowed once they have been quiet for the debounce period.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := rt.get(ctx)
			if err != nil {
				return err
			}
			w := watcher.New(args[0], svc.Ingest, watcher.Options{
				AllowedExtensions: svc.AllowedExtensions,
				Debounce:          debounce,
				MaxFileBytes:      svc.MaxUploadBytes,
				Logger:            svc.Logger,
			})
			return w.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "quiet period before a changed file is uploaded")
	return cmd
}

func newMCPCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve search and question answering as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.get(cmd.Context())
			if err != nil {
				return err
			}
			return mcpadapter.New(svc.Query, svc.Documents, svc.Logger).ServeStdio()
		},
	}
}
