// Package cli implements the saferun command-line interface: execute
// typed actions, run sandboxed code, restore snapshots, and inspect
// operation history against a local engine instance.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string
	Policy   string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the saferun CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "saferun",
		Short: "saferun - reversible action execution",
		Long: `An action execution engine with snapshot-based rollback.

Typed actions run through a permission gate, are tracked as operations,
and leave one reversible snapshot each. Free-form generated code runs
in a sandbox with a deny-list and a wall-clock timeout.

Configuration comes from SAFERUN_* environment variables; flags
override the environment.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from SAFERUN_DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.Policy, "policy", "", "path to CUE policy file (default: embedded policy)")

	cmd.AddCommand(NewExecuteCommand(opts))
	cmd.AddCommand(NewRunCodeCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewSnapshotsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
