package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check connection status and show statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out)
			fmt.Fprintln(out, titleStyle.Render("Knowledgebase Status"))
			fmt.Fprintln(out)

			provider, err := a.provider()
			if err != nil {
				fmt.Fprintf(out, "  %s %s\n", failStyle.Render("✗"), err)
			} else if msg, err := provider.Ping(ctx); err != nil {
				fmt.Fprintf(out, "  %s %s: %s\n", failStyle.Render("✗"), provider.Name(), err)
			} else {
				fmt.Fprintf(out, "  %s %s: %s\n", okStyle.Render("✓"), provider.Name(), msg)
			}

			client, err := a.client(nil)
			if err != nil {
				fmt.Fprintf(out, "  %s Database: %s\n\n", failStyle.Render("✗"), err)
				return nil
			}
			stats, err := client.Stats(ctx)
			if err != nil {
				fmt.Fprintf(out, "  %s Database: %s\n\n", failStyle.Render("✗"), err)
				return nil
			}
			fmt.Fprintf(out, "  %s Database: connected\n\n", okStyle.Render("✓"))

			fmt.Fprintf(out, "  %s%d\n", metricStyle.Render("Sources"), stats.TotalSources)
			fmt.Fprintf(out, "  %s%d\n", metricStyle.Render("Total chunks"), stats.TotalChunks)
			fmt.Fprintf(out, "  %s%d\n", metricStyle.Render("With embeddings"), stats.ChunksWithEmbeddings)
			fmt.Fprintf(out, "  %s%d\n", metricStyle.Render("Without embeddings"), stats.ChunksWithoutEmbeddings)
			fmt.Fprintln(out)
			return nil
		},
	}
}
