package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEmbedCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Generate embeddings for chunks that don't have them",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			pipeline, _, err := a.pipeline()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			done, err := pipeline.EmbedMissing(ctx, batchSize, func(done, total int) {
				fmt.Fprintf(out, "\r  embedding %d/%d", done, total)
			})
			if done > 0 {
				fmt.Fprintln(out)
			}
			if err != nil {
				return err
			}

			if done == 0 {
				fmt.Fprintln(out, okStyle.Render("All chunks have embeddings."))
			} else {
				fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("Embedded %d chunks.", done)))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 50, "chunks per batch")
	return cmd
}
