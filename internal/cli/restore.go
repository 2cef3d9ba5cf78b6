package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/undolab/saferun/internal/state"
)

// RestoreOptions holds flags for the restore command.
type RestoreOptions struct {
	*RootOptions
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RestoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "restore <snapshot-id>",
		Short: "Roll back to a snapshot",
		Long: `Replay a snapshot's inverse instructions, returning every target
the recorded operation touched to its before-state.

An expired or missing snapshot cannot be restored; the command reports
that a full backup is needed instead. A partial failure reports how
many instructions applied and which one failed.

Examples:
  saferun restore 0192f3a1-...
  saferun restore 0192f3a1-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(opts, args[0], cmd)
		},
	}

	return cmd
}

func runRestore(opts *RestoreOptions, snapshotID string, cmd *cobra.Command) error {
	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result := app.rollback.Restore(context.Background(), snapshotID)

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		if result.Success {
			fmt.Fprintf(w, "OK: %s\n", result.Message)
			for key, value := range result.PreviousState {
				fmt.Fprintf(w, "  %s -> %v\n", key, state.ToGo(value))
			}
		} else {
			fmt.Fprintf(w, "FAILED [%s]: %s\n", result.Code, result.Error)
			if result.FailedOp != "" {
				fmt.Fprintf(w, "  Applied: %d, failed at: %s\n", result.Applied, result.FailedOp)
			}
			if result.Message != "" {
				fmt.Fprintf(w, "  %s\n", result.Message)
			}
		}
	}

	if !result.Success {
		return NewExitError(ExitFailure, result.Error)
	}
	return nil
}
