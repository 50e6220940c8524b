package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teamgrid/workspace-client/internal/models"
)

// NewStatusCommand reports queue depth, unsynced records, and open
// conflicts, plus a one-shot reachability check.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync engine state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx := cmd.Context()

			size, err := eng.QueueSize(ctx)
			if err != nil {
				return err
			}
			pending, err := eng.Pending(ctx)
			if err != nil {
				return err
			}
			conflicts, err := eng.Conflicts(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "queued mutations:  %d\n", size)
			fmt.Fprintf(out, "unsynced records:  %d\n", len(pending))
			fmt.Fprintf(out, "open conflicts:    %d\n", len(conflicts))
			return nil
		},
	}
}

// NewPendingCommand lists records awaiting server acknowledgment.
func NewPendingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List records not yet acknowledged by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer eng.Close()

			records, err := eng.Pending(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "nothing pending")
				return nil
			}
			for _, rec := range records {
				state := "modified"
				if rec.Deleted {
					state = "deleted"
				}
				fmt.Fprintf(out, "%-8s %-36s %-9s %s\n",
					rec.Kind, rec.ID, state, rec.LocalTime().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func kindNames() []string {
	kinds := models.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}
