package cli

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func newUploadCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload local files",
		Long:  `Uploads each file independently. A rejected file does not stop the others.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.get(cmd.Context())
			if err != nil {
				return err
			}

			files := make([]domain.UploadFile, 0, len(args))
			for _, path := range args {
				file, err := readUpload(path, svc.MaxUploadBytes)
				if err != nil {
					return err
				}
				files = append(files, file)
			}

			failed := 0
			for _, res := range svc.Ingest.UploadMany(cmd.Context(), files) {
				if res.Error != nil {
					failed++
					cmd.Printf("%s  %s  %s\n", errorStyle.Render("rejected"), res.Filename, *res.Error)
					continue
				}
				cmd.Printf("%s  %s  %s\n", statusText(res.Status), res.Filename, mutedStyle.Render(res.DocumentID))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files rejected", failed, len(files))
			}
			return nil
		},
	}
}

func readUpload(path string, maxBytes int64) (domain.UploadFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.UploadFile{}, err
	}
	if info.IsDir() {
		return domain.UploadFile{}, fmt.Errorf("%s is a directory", path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return domain.UploadFile{}, fmt.Errorf("%s is %d bytes, limit is %d", path, info.Size(), maxBytes)
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

func newListCmd(rt *runtime) *cobra.Command {
	var limit, offset int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.get(cmd.Context())
			if err != nil {
				return err
			}
			page, err := svc.Documents.List(cmd.Context(), limit, offset)
			if err != nil {
				return fmt.Errorf("list documents: %w", err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), page)
			}
			if len(page.Items) == 0 {
				cmd.Println("No documents.")
				return nil
			}
			for _, doc := range page.Items {
				cmd.Printf("%s  %-28s  %s  %s\n",
					mutedStyle.Render(doc.ID),
					statusText(doc.Status),
					doc.Filename,
					mutedStyle.Render(shortTime(doc.CreatedAt)),
				)
			}
			cmd.Printf("\n%d of %d documents\n", len(page.Items), page.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (0 uses the server default)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of documents to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw page as JSON")
	return cmd
}

func newShowCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show <doc-id>",
		Short: "Show a document with its pages and annotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.get(cmd.Context())
			if err != nil {
				return err
			}
			detail, err := svc.Documents.Detail(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get document: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), detail)
		},
	}
}

func newDeleteCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <doc-id>...",
		Short: "Delete documents with their vectors and stored files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.get(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := svc.Remover.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				cmd.Printf("deleted %s\n", id)
			}
			return nil
		},
	}
}

func newReprocessCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <doc-id>...",
		Short: "Queue documents for a resume run",
		Long:  `Resume runs reuse stored pages when present and redo chunking, embedding, indexing and annotation.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.get(cmd.Context())
			if err != nil {
				return err
			}
			var failed []string
			for _, id := range args {
				if err := svc.Ingest.Reprocess(cmd.Context(), id); err != nil {
					failed = append(failed, id)
					cmd.PrintErrf("%s %s: %v\n", errorStyle.Render("failed"), id, err)
					continue
				}
				cmd.Printf("queued %s\n", id)
			}
			if len(failed) > 0 {
				return fmt.Errorf("could not queue %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
}

func newEnsureIndexCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-index",
		Short: "Create the vector collection if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.get(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Index == nil {
				return fmt.Errorf("vector index not configured")
			}
			if err := svc.Index.EnsureReady(cmd.Context()); err != nil {
				return fmt.Errorf("ensure index: %w", err)
			}
			cmd.Println("vector index ready")
			return nil
		},
	}
}
