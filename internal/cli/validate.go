package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/undolab/saferun/internal/policy"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <policy-file>",
		Short: "Validate a CUE policy file",
		Long: `Compile and validate a CUE policy file without running anything.

Checks that every allowed action is in the vocabulary, every
capability is known, the deny-list is non-empty, and limits are
positive.

Examples:
  saferun validate policy.cue
  saferun validate policy.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	pol, err := policy.LoadFile(path)
	if err != nil {
		var ce *policy.CompileError
		if errors.As(err, &ce) {
			if outErr := formatter.Error("policy_invalid", ce.Message, ce.Field); outErr != nil {
				return outErr
			}
			return NewExitError(ExitFailure, ce.Message)
		}
		return WrapExitError(ExitCommandError, "failed to load policy", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"valid":                   true,
			"allowed_actions":         pol.AllowedActions,
			"forbidden_symbols":       len(pol.ForbiddenSymbols),
			"code_timeout_seconds":    pol.CodeTimeoutSeconds,
			"snapshot_retention_days": pol.SnapshotRetentionDays,
			"snapshot_max_size_mb":    pol.SnapshotMaxSizeMB,
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Policy %s is valid\n", path)
	fmt.Fprintf(w, "  Allowed actions:  %d\n", len(pol.AllowedActions))
	for _, t := range pol.AllowedActions {
		fmt.Fprintf(w, "    %s (%s)\n", t, pol.Capabilities[t])
	}
	fmt.Fprintf(w, "  Forbidden symbols: %d\n", len(pol.ForbiddenSymbols))
	fmt.Fprintf(w, "  Code timeout:      %ds\n", pol.CodeTimeoutSeconds)
	fmt.Fprintf(w, "  Retention:         %d days, %d MB\n", pol.SnapshotRetentionDays, pol.SnapshotMaxSizeMB)
	return nil
}
