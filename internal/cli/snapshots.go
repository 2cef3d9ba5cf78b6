package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/undolab/saferun/internal/record"
)

// SnapshotsOptions holds flags for the snapshots command group.
type SnapshotsOptions struct {
	*RootOptions
	ContextID string
}

// NewSnapshotsCommand creates the snapshots command group.
func NewSnapshotsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect stored snapshots",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List live snapshots, oldest first",
		Long: `List live snapshots, oldest first.

Examples:
  saferun snapshots list --context session-42
  saferun snapshots list --context session-42 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotsList(opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.ContextID, "context", "", "correlation context id to list")

	show := &cobra.Command{
		Use:           "show <snapshot-id>",
		Short:         "Show one snapshot's deltas and rollback instructions",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotsShow(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(list)
	cmd.AddCommand(show)

	return cmd
}

func runSnapshotsList(opts *SnapshotsOptions, cmd *cobra.Command) error {
	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	snaps, err := app.snapshots.List(context.Background(), opts.ContextID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list snapshots", err)
	}

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(snapshotSummaries(snaps))
	}

	w := cmd.OutOrStdout()
	if len(snaps) == 0 {
		fmt.Fprintln(w, "(no snapshots)")
		return nil
	}
	for _, s := range snaps {
		fmt.Fprintf(w, "%s  op=%s  kind=%s  size=%dB  %s\n",
			s.ID, s.OperationID, s.Kind, s.SizeBytes,
			time.UnixMilli(s.CreatedAt).UTC().Format(time.RFC3339))
	}
	return nil
}

func runSnapshotsShow(opts *SnapshotsOptions, snapshotID string, cmd *cobra.Command) error {
	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	snap, err := app.snapshots.Get(context.Background(), snapshotID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load snapshot", err)
	}

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(snapshotDetail(snap))
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Snapshot: %s\n", snap.ID)
	fmt.Fprintf(w, "  Operation:   %s\n", snap.OperationID)
	fmt.Fprintf(w, "  Kind:        %s\n", snap.Kind)
	fmt.Fprintf(w, "  StorageRef:  %s\n", snap.StorageRef)
	fmt.Fprintf(w, "  Size:        %d bytes\n", snap.SizeBytes)
	fmt.Fprintf(w, "  Created:     %s\n", time.UnixMilli(snap.CreatedAt).UTC().Format(time.RFC3339))
	if snap.Deleted {
		fmt.Fprintf(w, "  Deleted:     %s (expired)\n", time.UnixMilli(snap.DeletedAt).UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(w, "  Deltas:")
	for _, d := range snap.Operations {
		fmt.Fprintf(w, "    %s target=%s", d.Type, d.Target)
		if d.Key != "" {
			fmt.Fprintf(w, " key=%s", d.Key)
		}
		fmt.Fprintf(w, " status=%s\n", d.Status)
	}
	fmt.Fprintln(w, "  Rollback instructions:")
	for i, inst := range snap.RollbackInstructions {
		fmt.Fprintf(w, "    [%d] %s target=%s", i, inst.Op, inst.Target)
		if inst.Key != "" {
			fmt.Fprintf(w, " key=%s", inst.Key)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// snapshotSummary is the JSON list shape: metadata only, no payloads.
type snapshotSummary struct {
	ID          string `json:"id"`
	OperationID string `json:"operation_id"`
	ContextID   string `json:"context_id,omitempty"`
	Kind        string `json:"kind"`
	SizeBytes   int64  `json:"size_bytes"`
	CreatedAt   string `json:"created_at"`
}

func snapshotSummaries(snaps []record.Snapshot) []snapshotSummary {
	out := make([]snapshotSummary, len(snaps))
	for i, s := range snaps {
		out[i] = snapshotSummary{
			ID:          s.ID,
			OperationID: s.OperationID,
			ContextID:   s.ContextID,
			Kind:        string(s.Kind),
			SizeBytes:   s.SizeBytes,
			CreatedAt:   time.UnixMilli(s.CreatedAt).UTC().Format(time.RFC3339),
		}
	}
	return out
}

func snapshotDetail(snap record.Snapshot) map[string]any {
	detail := map[string]any{
		"id":           snap.ID,
		"operation_id": snap.OperationID,
		"kind":         string(snap.Kind),
		"storage_ref":  snap.StorageRef,
		"size_bytes":   snap.SizeBytes,
		"created_at":   time.UnixMilli(snap.CreatedAt).UTC().Format(time.RFC3339),
		"deltas":       snap.Operations,
		"instructions": snap.RollbackInstructions,
	}
	if snap.ContextID != "" {
		detail["context_id"] = snap.ContextID
	}
	if snap.Deleted {
		detail["deleted_at"] = time.UnixMilli(snap.DeletedAt).UTC().Format(time.RFC3339)
	}
	return detail
}
