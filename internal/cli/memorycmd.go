package cli

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"knowledgebase/internal/memory"
)

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Agent memory operations",
	}
	cmd.AddCommand(
		newMemoryRegisterCmd(),
		newMemoryRememberCmd(),
		newMemoryRecallCmd(),
		newMemoryForgetCmd(),
		newMemoryStatsCmd(),
	)
	return cmd
}

func newMemoryRegisterCmd() *cobra.Command {
	var (
		displayName string
		agentType   string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register this agent with the memory backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			mem, err := a.memoryClient()
			if err != nil {
				return err
			}

			agent, err := mem.Register(cmd.Context(), displayName, agentType, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Registered agent %s (%s).", agent.Name, agent.ID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "display-name", "", "human readable agent name")
	cmd.Flags().StringVar(&agentType, "type", "", "agent type")
	return cmd
}

func newMemoryRememberCmd() *cobra.Command {
	var (
		memType    string
		scope      string
		namespace  string
		tags       []string
		importance float64
	)

	cmd := &cobra.Command{
		Use:   "remember <content>",
		Short: "Store a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			mem, err := a.memoryClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if _, err := mem.Authenticate(ctx); err != nil {
				return err
			}

			entry, err := mem.Remember(ctx, args[0], memory.RememberOptions{
				Type:       memory.MemoryType(memType),
				Scope:      memory.Scope(scope),
				Namespace:  namespace,
				Tags:       tags,
				Importance: importance,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Stored memory %s.", entry.ID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&memType, "type", "", "memory type: episodic, semantic, procedural")
	cmd.Flags().StringVar(&scope, "scope", "", "scope: private, team, global")
	cmd.Flags().StringVar(&namespace, "namespace", "", "memory namespace")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().Float64Var(&importance, "importance", 0, "importance 0-1")
	return cmd
}

func newMemoryRecallCmd() *cobra.Command {
	var (
		limit     int
		threshold float64
		namespace string
		all       bool
	)

	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Search stored memories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			mem, err := a.memoryClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if _, err := mem.Authenticate(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if all {
				results, err := mem.RecallAll(ctx, args[0], limit, threshold)
				if err != nil {
					return err
				}
				if len(results) == 0 {
					fmt.Fprintln(out, warnStyle.Render("No results."))
					return nil
				}
				for _, r := range results {
					fmt.Fprintf(out, "%s [%.2f] %s\n   %s\n\n",
						accentStyle.Render(r.ResultType), r.Similarity, dimStyle.Render(r.ResultID), r.Content)
				}
				return nil
			}

			entries, err := mem.Recall(ctx, args[0], memory.RecallOptions{
				Limit:     limit,
				Threshold: threshold,
				Namespace: namespace,
			})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, warnStyle.Render("No memories found."))
				return nil
			}
			for _, e := range entries {
				sim := 0.0
				if e.Similarity != nil {
					sim = *e.Similarity
				}
				fmt.Fprintf(out, "%s [%.2f] %s %s\n   %s\n\n",
					accentStyle.Render(string(e.Type)), sim, dimStyle.Render(e.ID.String()), dimStyle.Render(string(e.Scope)), e.Content)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0.5, "similarity threshold")
	cmd.Flags().StringVar(&namespace, "namespace", "", "restrict to a namespace")
	cmd.Flags().BoolVar(&all, "all", false, "search memories and knowledgebase together")
	return cmd
}

func newMemoryForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <memory-id>",
		Short: "Delete one of this agent's memories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid memory id %q: %w", args[0], err)
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			mem, err := a.memoryClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if _, err := mem.Authenticate(ctx); err != nil {
				return err
			}

			if err := mem.Forget(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Memory deleted."))
			return nil
		},
	}
}

func newMemoryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show this agent's memory statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			mem, err := a.memoryClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if _, err := mem.Authenticate(ctx); err != nil {
				return err
			}

			stats, err := mem.Stats(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}
