package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teamgrid/workspace-client/internal/conflict"
	"github.com/teamgrid/workspace-client/internal/models"
)

// NewConflictsCommand groups conflict inspection and resolution.
func NewConflictsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Inspect and resolve sync conflicts",
	}
	cmd.AddCommand(newConflictsListCommand(opts))
	cmd.AddCommand(newConflictsResolveCommand(opts))
	return cmd
}

func newConflictsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List unresolved conflicts, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer eng.Close()

			conflicts, err := eng.Conflicts(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(conflicts) == 0 {
				fmt.Fprintln(out, "no conflicts")
				return nil
			}
			for _, c := range conflicts {
				fmt.Fprintf(out, "%-36s %-8s %-36s %s\n",
					c.ID, c.Kind, c.EntityID, c.DetectedAtTime().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newConflictsResolveCommand(opts *RootOptions) *cobra.Command {
	var strategyFlag string

	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Resolve a conflict with local, server, or merge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, err := conflict.ParseStrategy(strategyFlag)
			if err != nil {
				return err
			}

			eng, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.Resolve(cmd.Context(), models.UUID(args[0]), strategy); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "conflict %s resolved with %s\n", args[0], strategy)
			return nil
		},
	}

	cmd.Flags().StringVar(&strategyFlag, "strategy", "merge", "resolution strategy (local|server|merge)")
	return cmd
}
