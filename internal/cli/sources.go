package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"knowledgebase/internal/kb"
)

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage knowledgebase sources",
	}
	cmd.AddCommand(newSourcesListCmd(), newSourcesDeleteCmd())
	return cmd
}

func newSourcesListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			client, err := a.client(nil)
			if err != nil {
				return err
			}

			sources, err := client.ListSources(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(sources) == 0 {
				fmt.Fprintln(out, warnStyle.Render("No sources."))
				return nil
			}
			for _, src := range sources {
				title := src.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Fprintf(out, "%s  %s  %s\n",
					dimStyle.Render(fmt.Sprintf("%-8s", src.ID)),
					accentStyle.Render(fmt.Sprintf("%-10s", src.SourceType)),
					title,
				)
				fmt.Fprintf(out, "%s  %s\n", dimStyle.Render("        "), dimStyle.Render(src.URL))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum sources to list")
	return cmd
}

func newSourcesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <source-id>",
		Short: "Delete a source and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			client, err := a.client(nil)
			if err != nil {
				return err
			}

			id := kb.ID(args[0])
			if err := client.DeleteSource(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Deleted source %s.", id)))
			return nil
		},
	}
}
