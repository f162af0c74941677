package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"knowledgebase/internal/kb"
	"knowledgebase/internal/search"
)

func newFindCmd() *cobra.Command {
	var (
		limit     int
		threshold float64
		hybrid    bool
	)

	cmd := &cobra.Command{
		Use:   "find <query>",
		Short: "Search the knowledgebase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			client, _, err := a.searchClient()
			if err != nil {
				return err
			}

			query := args[0]
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			opts := kb.SearchOptions{Limit: limit, Threshold: threshold}

			fmt.Fprintf(out, "\nSearching: %s\n\n", accentStyle.Render(query))

			var results []search.Result
			if hybrid {
				results, err = search.SearchHybrid(ctx, client, query, opts)
			} else {
				results, err = search.Search(ctx, client, query, opts)
			}
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Fprintln(out, warnStyle.Render("No results found."))
				return nil
			}

			for i, r := range results {
				title := r.Title
				if title == "" {
					title = "Untitled"
				}
				content := r.Content
				if runes := []rune(content); len(runes) > 300 {
					content = string(runes[:300]) + "..."
				}

				fmt.Fprintf(out, "%s [%.2f] %s\n", titleStyle.Render(fmt.Sprintf("%d.", i+1)), r.Similarity, accentStyle.Render(title))
				if r.URL != "" {
					fmt.Fprintf(out, "   %s\n", dimStyle.Render(r.URL))
				}
				fmt.Fprintf(out, "   %s\n\n", content)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "number of results")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0.5, "similarity threshold")
	cmd.Flags().BoolVar(&hybrid, "hybrid", false, "use hybrid search")
	return cmd
}
