package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"knowledgebase/internal/memory"
)

func newKeygenCmd() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an agent API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := memory.GenerateAPIKey(prefix)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "oc", "key prefix")
	return cmd
}
