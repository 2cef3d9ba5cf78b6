package engine

import (
	"context"
	"fmt"

	"github.com/undolab/saferun/internal/action"
	"github.com/undolab/saferun/internal/audit"
	"github.com/undolab/saferun/internal/content"
	"github.com/undolab/saferun/internal/gate"
	"github.com/undolab/saferun/internal/record"
	"github.com/undolab/saferun/internal/sandbox"
	"github.com/undolab/saferun/internal/snapshot"
	"github.com/undolab/saferun/internal/state"
	"github.com/undolab/saferun/internal/track"
)

func init() {
	// The handler and capturer tables must cover the vocabulary
	// pairwise. A missing side is a programming error caught at
	// package load, not at dispatch time.
	for _, spec := range action.Vocabulary {
		if _, ok := handlers[spec.Type]; !ok {
			panic(fmt.Sprintf("engine: no handler registered for %s", spec.Type))
		}
		if _, ok := capturers[spec.Type]; !ok {
			panic(fmt.Sprintf("engine: no capturer registered for %s", spec.Type))
		}
	}
	if len(handlers) != len(action.Vocabulary) || len(capturers) != len(action.Vocabulary) {
		panic("engine: handler/capturer tables larger than the vocabulary")
	}
}

// Engine executes typed actions: permission gate, operation tracking,
// before/after capture, effect dispatch, snapshot persistence. One
// Engine serves all callers; it is safe for concurrent use.
type Engine struct {
	gate      *gate.Gate
	tracker   *track.Tracker
	snapshots *snapshot.Manager
	runner    *sandbox.Runner
	content   content.Store
	audit     *audit.Handler
	locks     *targetLocks
}

// New wires an Engine from its collaborators. runner may be nil when
// code execution is not needed.
func New(g *gate.Gate, tracker *track.Tracker, snapshots *snapshot.Manager, runner *sandbox.Runner, cs content.Store, auditor *audit.Handler) *Engine {
	if auditor == nil {
		auditor = audit.NewHandler(nil)
	}
	return &Engine{
		gate:      g,
		tracker:   tracker,
		snapshots: snapshots,
		runner:    runner,
		content:   cs,
		audit:     auditor,
		locks:     newTargetLocks(),
	}
}

// Execute runs one action through the full pipeline.
//
// Ordering is load-bearing: the vocabulary check and the permission
// gate run before any record is written, so denied and unknown actions
// leave no trace beyond the audit log. The operation record is created
// before any effect, so a crash mid-execution leaves a running record
// rather than an untracked mutation. Exactly one snapshot exists for
// each success; none for any failure.
func (e *Engine) Execute(ctx context.Context, act action.Action, caller gate.Caller, execCtx track.Context) action.Result {
	spec, ok := action.Lookup(act.Type)
	if !ok {
		err := audit.NewError(audit.CodeUnknownActionType,
			fmt.Sprintf("unknown action type %q", act.Type), string(act.Type), act.Target)
		e.audit.Failure(ctx, err, string(act.Type), act.Target, nil)
		return action.Failed(string(audit.CodeUnknownActionType), err.Message)
	}

	if decision := e.gate.Check(act.Type, caller); !decision.Allowed {
		err := audit.NewError(audit.CodePermissionDenied, decision.Reason, string(act.Type), act.Target)
		e.audit.Failure(ctx, err, string(act.Type), act.Target, map[string]any{
			"capability": decision.Capability,
		})
		return action.Failed(string(audit.CodePermissionDenied), decision.Reason)
	}

	handle, err := e.tracker.Start(ctx, string(act.Type), act.Target, execCtx)
	if err != nil {
		classified := e.audit.Failure(ctx, err, string(act.Type), act.Target, nil)
		return action.Failed(string(audit.CodeOperationError), classified.Message)
	}

	if err := act.ValidateParams(); err != nil {
		return e.fail(ctx, handle, act, audit.CodeParameterError, err)
	}

	release := e.locks.acquire(lockKey(act))
	defer release()

	e.step(ctx, handle, "capture_before", nil)
	capturer := capturers[act.Type]
	before, err := capturer.Before(ctx, e.content, act)
	if err != nil {
		return e.fail(ctx, handle, act, audit.CodeExecutionError, err)
	}

	e.step(ctx, handle, "apply", nil)
	data, target, err := handlers[act.Type](ctx, e.content, act)
	if err != nil {
		return e.fail(ctx, handle, act, audit.CodeExecutionError, err)
	}

	applied := act
	applied.Target = target
	after, err := capturer.After(ctx, e.content, applied, action.Result{Target: target})
	if err != nil {
		// The effect is applied but unrecorded; without an after-state
		// there is no reversible snapshot, so the operation fails.
		return e.fail(ctx, handle, act, audit.CodeExecutionError,
			fmt.Errorf("effect applied but state capture failed, no snapshot recorded: %w", err))
	}

	hash, err := state.DeltaHash(string(act.Type), target, before, after)
	if err != nil {
		return e.fail(ctx, handle, act, audit.CodeOperationError, err)
	}
	delta := record.Delta{
		Type:   string(act.Type),
		Target: target,
		Key:    act.StringParam("key"),
		Before: before,
		After:  after,
		Status: record.DeltaCompleted,
		Hash:   hash,
	}

	e.step(ctx, handle, "snapshot", nil)
	snapshotID, err := e.snapshots.Create(ctx, execCtx.ContextID, execCtx.MessageID, handle.ID(), []record.Delta{delta})
	if err != nil {
		return e.fail(ctx, handle, act, audit.CodeOperationError, err)
	}

	if err := handle.Complete(ctx, snapshotID, data); err != nil {
		// Effect and snapshot are durable; only the status row is
		// stale. Surface the snapshot id so the caller can restore.
		classified := e.audit.Failure(ctx, err, string(act.Type), target, map[string]any{
			"operation_id": handle.ID(),
			"snapshot_id":  snapshotID,
		})
		res := action.Failed(string(audit.CodeOperationError), classified.Message)
		res.OperationID = handle.ID()
		res.SnapshotID = snapshotID
		res.Target = target
		return res
	}

	e.audit.Event(ctx, "action_executed", map[string]any{
		"action_type":  string(act.Type),
		"target":       target,
		"operation_id": handle.ID(),
		"snapshot_id":  snapshotID,
	})

	res := action.OK(data, successMessage(spec, target))
	res.OperationID = handle.ID()
	res.SnapshotID = snapshotID
	res.Target = target
	return res
}

// RunCode executes free-form generated code in the sandbox. Code runs
// produce no snapshot: only typed actions are reversible.
func (e *Engine) RunCode(ctx context.Context, source string) (sandbox.RunResult, error) {
	if e.runner == nil {
		return sandbox.RunResult{}, audit.NewError(audit.CodeExecutionError,
			"code execution is not enabled", "run_code", "")
	}
	return e.runner.Run(ctx, source)
}

// fail records a classified failure on the operation and returns the
// caller-facing result. The step log and status row are best-effort;
// the classification is what callers branch on.
func (e *Engine) fail(ctx context.Context, handle *track.Handle, act action.Action, code audit.Code, cause error) action.Result {
	err := cause
	if audit.CodeOf(cause) != code {
		err = audit.NewError(code, cause.Error(), string(act.Type), act.Target)
	}
	classified := e.audit.Failure(ctx, err, string(act.Type), act.Target, map[string]any{
		"operation_id": handle.ID(),
	})
	if ferr := handle.Fail(ctx, classified.Message); ferr != nil {
		e.audit.Warn(ctx, "operation_status_update_failed", map[string]any{
			"operation_id": handle.ID(),
			"error":        ferr.Error(),
		})
	}
	res := action.Failed(string(classified.Code), classified.Message)
	res.OperationID = handle.ID()
	res.Target = act.Target
	return res
}

// step appends to the operation's step log; failures are warnings,
// never control flow.
func (e *Engine) step(ctx context.Context, handle *track.Handle, name string, data state.Object) {
	if err := handle.AddStep(ctx, name, data); err != nil {
		e.audit.Warn(ctx, "step_log_write_failed", map[string]any{
			"operation_id": handle.ID(),
			"step":         name,
			"error":        err.Error(),
		})
	}
}

// lockKey derives the advisory lock key for an action. Options have no
// entity target, so the option key is namespaced to avoid colliding
// with entity ids. Creates return "" and take no lock: the target does
// not exist until the handler mints it.
func lockKey(act action.Action) string {
	switch act.Type {
	case action.SetOption, action.DeleteOption:
		return "option:" + act.StringParam("key")
	default:
		return act.Target
	}
}

func successMessage(spec action.Spec, target string) string {
	switch spec.Mutation {
	case action.MutationCreate:
		return fmt.Sprintf("%s created %s", spec.Type, target)
	case action.MutationDelete:
		return fmt.Sprintf("%s removed %s", spec.Type, target)
	default:
		return fmt.Sprintf("%s applied to %s", spec.Type, target)
	}
}
