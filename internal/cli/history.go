package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/undolab/saferun/internal/record"
	"github.com/undolab/saferun/internal/state"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <operation-id>",
		Short: "Show an operation's record and step log",
		Long: `Show one tracked operation: its status, result, linked snapshot,
and the ordered step log with elapsed-time markers.

Examples:
  saferun history 0192f3a1-...
  saferun history 0192f3a1-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	return cmd
}

func runHistory(opts *HistoryOptions, operationID string, cmd *cobra.Command) error {
	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	op, steps, err := app.tracker.Get(context.Background(), operationID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load operation", err)
	}

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(historyDetail(op, steps))
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Operation: %s\n", op.ID)
	fmt.Fprintf(w, "  Action:   %s\n", op.ActionType)
	if op.Target != "" {
		fmt.Fprintf(w, "  Target:   %s\n", op.Target)
	}
	fmt.Fprintf(w, "  Status:   %s\n", op.Status)
	fmt.Fprintf(w, "  Created:  %s\n", time.UnixMilli(op.CreatedAt).UTC().Format(time.RFC3339))
	if op.CompletedAt != 0 {
		fmt.Fprintf(w, "  Finished: %s\n", time.UnixMilli(op.CompletedAt).UTC().Format(time.RFC3339))
	}
	if op.SnapshotID != "" {
		fmt.Fprintf(w, "  Snapshot: %s\n", op.SnapshotID)
	}
	if op.Error != "" {
		fmt.Fprintf(w, "  Error:    %s\n", op.Error)
	}
	if len(op.Result) > 0 {
		fmt.Fprintf(w, "  Result:   %v\n", state.ToGo(op.Result))
	}
	fmt.Fprintln(w, "  Steps:")
	if len(steps) == 0 {
		fmt.Fprintln(w, "    (none)")
	}
	for _, s := range steps {
		fmt.Fprintf(w, "    [%d] +%dms %s\n", s.Seq, s.ElapsedMS, s.Name)
	}
	return nil
}

func historyDetail(op record.Operation, steps []record.Step) map[string]any {
	detail := map[string]any{
		"id":          op.ID,
		"action_type": op.ActionType,
		"status":      string(op.Status),
		"created_at":  time.UnixMilli(op.CreatedAt).UTC().Format(time.RFC3339),
		"steps":       steps,
	}
	if op.Target != "" {
		detail["target"] = op.Target
	}
	if op.SnapshotID != "" {
		detail["snapshot_id"] = op.SnapshotID
	}
	if op.Error != "" {
		detail["error"] = op.Error
	}
	if len(op.Result) > 0 {
		detail["result"] = op.Result
	}
	if op.CompletedAt != 0 {
		detail["completed_at"] = time.UnixMilli(op.CompletedAt).UTC().Format(time.RFC3339)
	}
	return detail
}
