// Package cli implements the syncctl command line tool for inspecting
// and driving the local sync engine.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/teamgrid/workspace-client/internal/config"
	"github.com/teamgrid/workspace-client/internal/engine"
	"github.com/teamgrid/workspace-client/internal/logging"
)

// RootOptions holds global flags shared by all subcommands.
type RootOptions struct {
	ConfigPath string

	cfg *config.Config
}

// Config returns the loaded configuration.
func (o *RootOptions) Config() *config.Config {
	return o.cfg
}

// NewRootCommand creates the syncctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Inspect and drive the local offline sync engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			logging.Init(os.Stderr, cfg.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file")

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewConflictsCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))

	return cmd
}

// openEngine assembles an engine for a one-shot command. The caller
// closes it; connectivity monitoring is not started.
func openEngine(opts *RootOptions) (*engine.Engine, error) {
	return engine.New(opts.Config())
}
