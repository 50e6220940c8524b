package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teamgrid/workspace-client/internal/models"
	"github.com/teamgrid/workspace-client/internal/processor"
)

// NewSyncCommand runs one drain pass against the remote API.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one drain pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx := cmd.Context()
			if err := eng.Reconcile(ctx); err != nil {
				return err
			}

			result, err := eng.SyncNow(ctx)
			if err != nil {
				return err
			}

			printPassResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

// printPassResult reports one drain pass. A nil result means another
// pass was already in flight and this trigger was a no-op.
func printPassResult(out io.Writer, result *processor.PassResult) {
	if result == nil {
		fmt.Fprintln(out, "a drain pass is already running")
		return
	}
	fmt.Fprintf(out, "delivered: %d  retried: %d  dropped: %d  conflicts: %d\n",
		result.Delivered, result.Retried, result.Dropped, result.Conflicts)
}

// NewLoginCommand stores the bearer token used for remote calls.
func NewLoginCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login <token>",
		Short: "Store the bearer token for remote calls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.SetToken(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token stored")
			return nil
		},
	}
}

// NewListCommand prints live records of one kind in natural order.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <kind>",
		Short: fmt.Sprintf("List records of a kind (%s)", strings.Join(kindNames(), ", ")),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseEntityKind(args[0])
			if err != nil {
				return err
			}

			eng, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer eng.Close()

			records, err := eng.List(cmd.Context(), kind)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, rec := range records {
				synced := "synced"
				if !rec.Synced {
					synced = "pending"
				}
				fmt.Fprintf(out, "%-36s %-8s %s\n", rec.ID, synced, rec.Payload)
			}
			return nil
		},
	}
}
