package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"knowledgebase/internal/parser"
)

func newIngestCmd() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest a local file or directory",
		Long: "Parse local documents and store them as chunks. Supported formats: " +
			fmt.Sprintf("%v.", parser.SupportedFormats()),
		Args: cobra.ExactArgs(1),
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
			path := args[0]

			info, err := os.Stat(path)
			if err != nil {
				return err
			}

			chunks := 0
			ingestOne := func(doc *parser.Document) error {
				n, err := pipeline.IngestDocument(ctx, doc)
				if err != nil {
					return err
				}
				chunks += n
				fmt.Fprintf(out, "  %s %s (%d chunks)\n", okStyle.Render("✓"), doc.Path, n)
				return nil
			}

			docs := 0
			if info.IsDir() {
				docs, err = parser.ParseDir(ctx, path, recursive, ingestOne)
				if err != nil {
					return err
				}
			} else {
				doc, err := parser.ParseFile(path)
				if err != nil {
					return err
				}
				if err := ingestOne(doc); err != nil {
					return err
				}
				docs = 1
			}

			fmt.Fprintf(out, "\n%s\n", okStyle.Render(fmt.Sprintf("Ingested %d documents, %d chunks.", docs, chunks)))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", true, "recurse into subdirectories")
	return cmd
}
