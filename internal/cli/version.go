package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is injected at build time via ldflags.
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "kb %s (%s/%s)\n", Version, runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
