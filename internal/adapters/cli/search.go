package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func newSearchCmd(rt *runtime) *cobra.Command {
	var k int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over indexed chunks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.get(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.Query.Search(cmd.Context(), strings.Join(args, " "), k)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}
			if len(result.Hits) == 0 {
				cmd.Println("No results.")
				return nil
			}
			for i, hit := range result.Hits {
				printSource(cmd, i+1, hit)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of results (0 uses the server default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw result as JSON")
	return cmd
}

func newAskCmd(rt *runtime) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.get(cmd.Context())
			if err != nil {
				return err
			}
			answer, err := svc.Query.Answer(cmd.Context(), strings.Join(args, " "), k)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			cmd.Println(answer.Text)
			if len(answer.Sources) == 0 {
				return nil
			}
			cmd.Println()
			cmd.Println(headerStyle.Render("Sources"))
			for i, src := range answer.Sources {
				printSource(cmd, i+1, src)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of chunks used as context (0 uses the configured default)")
	return cmd
}

func printSource(cmd *cobra.Command, rank int, src domain.Source) {
	pages := fmt.Sprintf("p.%d", src.PageStart)
	if src.PageEnd != src.PageStart {
		pages = fmt.Sprintf("pp.%d-%d", src.PageStart, src.PageEnd)
	}
	name := src.Filename
	if name == "" {
		name = src.DocumentID
	}
	cmd.Printf("%d. %s %s %s\n", rank, headerStyle.Render(name), mutedStyle.Render(pages), scoreStyle.Render(fmt.Sprintf("%.3f", src.Score)))
	if snippet := strings.TrimSpace(src.Snippet); snippet != "" {
		cmd.Printf("   %s\n", snippet)
	}
}
