// Package rollback replays a snapshot's inverse instructions against
// the content store, returning each delta's target to its recorded
// before-state.
package rollback

import (
	"context"
	"errors"
	"fmt"

	"github.com/undolab/saferun/internal/audit"
	"github.com/undolab/saferun/internal/content"
	"github.com/undolab/saferun/internal/record"
	"github.com/undolab/saferun/internal/snapshot"
	"github.com/undolab/saferun/internal/state"
	"github.com/undolab/saferun/internal/store"
	"github.com/undolab/saferun/internal/track"
)

// Result is the outcome of a restore request.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	// Applied counts instructions that succeeded before any failure.
	Applied int `json:"applied"`
	// FailedOp names the instruction that stopped a partial rollback.
	FailedOp string `json:"failed_op,omitempty"`
	// PreviousState maps each restored target to the state it was
	// returned to (Null for targets that were deleted).
	PreviousState map[string]state.Value `json:"previous_state,omitempty"`
}

// Engine applies rollbacks. It never attempts compensating actions
// for a failed rollback: a partial failure is reported with a
// recommendation to use an external backup.
type Engine struct {
	snapshots *snapshot.Manager
	content   content.Store
	tracker   *track.Tracker
	audit     *audit.Handler
}

// New creates a rollback Engine.
func New(snapshots *snapshot.Manager, cs content.Store, tracker *track.Tracker, auditor *audit.Handler) *Engine {
	if auditor == nil {
		auditor = audit.NewHandler(nil)
	}
	return &Engine{snapshots: snapshots, content: cs, tracker: tracker, audit: auditor}
}

// Restore replays a snapshot's rollback instructions in order.
//
// A missing or soft-deleted snapshot is an unrecoverable request, not
// a fatal engine error: the caller is told to fall back to a full
// backup. Partial failures report exactly which instruction failed
// and how many applied before it.
func (e *Engine) Restore(ctx context.Context, snapshotID string) Result {
	snap, err := e.snapshots.Get(ctx, snapshotID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		// Storage failure, not an expired snapshot. Still
		// unrecoverable for this request.
		e.audit.Failure(ctx, audit.NewError(audit.CodeRollbackFailed, err.Error(), "", ""), "", "", map[string]any{
			"snapshot_id": snapshotID,
		})
		return Result{
			Success: false,
			Code:    string(audit.CodeRollbackFailed),
			Error:   err.Error(),
		}
	}
	if err != nil || snap.Deleted {
		msg := "snapshot expired, use full backup"
		e.audit.Failure(ctx, audit.NewError(audit.CodeRollbackFailed, msg, "", ""), "", "", map[string]any{
			"snapshot_id": snapshotID,
		})
		return Result{
			Success: false,
			Code:    string(audit.CodeRollbackFailed),
			Error:   msg,
		}
	}

	previous := make(map[string]state.Value, len(snap.RollbackInstructions))
	for i, inst := range snap.RollbackInstructions {
		if err := e.apply(ctx, inst); err != nil {
			result := Result{
				Success:       false,
				Code:          string(audit.CodeRollbackFailed),
				Applied:       i,
				FailedOp:      inst.Op,
				PreviousState: previous,
				Error:         fmt.Sprintf("instruction %d (%s on %s) failed: %v", i, inst.Op, inst.Target, err),
				Message:       "rollback partially applied; recover remaining changes from an external backup",
			}
			e.audit.Failure(ctx, audit.NewError(audit.CodeRollbackFailed, result.Error, "", inst.Target), "", inst.Target, map[string]any{
				"snapshot_id": snapshotID,
				"applied":     i,
				"failed_op":   inst.Op,
			})
			return result
		}
		if isDeleteOp(inst.Op) {
			previous[instructionKey(inst)] = state.Null{}
		} else {
			previous[instructionKey(inst)] = inst.State
		}
	}

	// The operation status update is best-effort bookkeeping; the
	// content store is already restored.
	if err := e.tracker.MarkRolledBack(ctx, snap.OperationID); err != nil {
		e.audit.Warn(ctx, "rollback_status_update_failed", map[string]any{
			"snapshot_id":  snapshotID,
			"operation_id": snap.OperationID,
			"error":        err.Error(),
		})
	}

	e.audit.Event(ctx, "rollback_completed", map[string]any{
		"snapshot_id":  snapshotID,
		"operation_id": snap.OperationID,
		"instructions": len(snap.RollbackInstructions),
	})

	return Result{
		Success:       true,
		Applied:       len(snap.RollbackInstructions),
		PreviousState: previous,
		Message:       fmt.Sprintf("restored %d change(s)", len(snap.RollbackInstructions)),
	}
}

// Exists reports whether a live snapshot can still be restored.
func (e *Engine) Exists(ctx context.Context, snapshotID string) (bool, error) {
	return e.snapshots.Exists(ctx, snapshotID)
}

// apply dispatches one inverse instruction to the content store.
func (e *Engine) apply(ctx context.Context, inst record.Instruction) error {
	switch inst.Op {
	case record.OpRestorePost:
		fields, err := instructionObject(inst)
		if err != nil {
			return err
		}
		return e.content.RestorePost(ctx, inst.Target, fields)
	case record.OpDeletePost:
		return e.content.DeletePost(ctx, inst.Target)
	case record.OpRestorePostMeta:
		return e.content.SetPostMeta(ctx, inst.Target, inst.Key, metaValue(inst.State))
	case record.OpDeletePostMeta:
		return e.content.DeletePostMeta(ctx, inst.Target, inst.Key)
	case record.OpRestoreOption:
		return e.content.SetOption(ctx, inst.Key, metaValue(inst.State))
	case record.OpDeleteOption:
		return e.content.DeleteOption(ctx, inst.Key)
	case record.OpRestoreWidget:
		fields, err := instructionObject(inst)
		if err != nil {
			return err
		}
		return e.content.RestoreWidget(ctx, inst.Target, fields)
	case record.OpDeleteWidget:
		return e.content.DeleteWidget(ctx, inst.Target)
	default:
		return fmt.Errorf("unknown rollback op %q", inst.Op)
	}
}

// instructionObject extracts the entity field set carried by a
// restore instruction.
func instructionObject(inst record.Instruction) (state.Object, error) {
	obj, ok := inst.State.(state.Object)
	if !ok {
		return nil, fmt.Errorf("%s on %s: before-state is %T, want object", inst.Op, inst.Target, inst.State)
	}
	return obj, nil
}

// metaValue unwraps the {key, value} capture shape used for meta and
// option deltas; a bare value passes through unchanged.
func metaValue(v state.Value) state.Value {
	if obj, ok := v.(state.Object); ok {
		if inner, present := obj["value"]; present {
			return inner
		}
	}
	return v
}

func instructionKey(inst record.Instruction) string {
	if inst.Key != "" && inst.Target != "" && inst.Target != inst.Key {
		return inst.Target + ":" + inst.Key
	}
	if inst.Key != "" {
		return inst.Key
	}
	return inst.Target
}

func isDeleteOp(op string) bool {
	switch op {
	case record.OpDeletePost, record.OpDeletePostMeta, record.OpDeleteOption, record.OpDeleteWidget:
		return true
	}
	return false
}
