// Package cli implements the kb command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kb",
		Short:         "Self-hosted RAG knowledgebase",
		Long:          "kb manages a self-hosted RAG knowledgebase: crawl and ingest content,\ngenerate embeddings, search, and serve the web UI.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newStatusCmd(),
		newFindCmd(),
		newEmbedCmd(),
		newSourcesCmd(),
		newCrawlCmd(),
		newIngestCmd(),
		newMemoryCmd(),
		newKeygenCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and returns its error.
func Execute() error {
	return NewRootCmd().Execute()
}
