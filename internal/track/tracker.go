// Package track records the lifecycle of execution attempts: one
// Operation per attempt, with an append-only step log and monotonic
// status transitions. The step log is the audit trail operators see
// and the input to the "can this still be rolled back?" decision.
package track

import (
	"context"
	"fmt"
	"time"

	"github.com/undolab/saferun/internal/record"
	"github.com/undolab/saferun/internal/state"
	"github.com/undolab/saferun/internal/store"
)

// Tracker creates and advances operation records. All mutation of an
// operation's persisted state goes through here.
type Tracker struct {
	store *store.Store
	ids   IDGenerator
	now   func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithIDGenerator replaces the id generator (tests use
// FixedGenerator).
func WithIDGenerator(g IDGenerator) Option {
	return func(t *Tracker) { t.ids = g }
}

// WithNow replaces the clock (tests use a fixed clock).
func WithNow(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker over the store.
func New(s *store.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store: s,
		ids:   UUIDv7Generator{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Context carries the caller-side correlation ids for an execution.
type Context struct {
	ContextID string
	MessageID string
}

// Handle is a live operation being tracked. It is not safe for
// concurrent use; one execution owns it for its duration.
type Handle struct {
	tracker   *Tracker
	op        record.Operation
	stepSeq   int
	startedAt time.Time
}

// Start creates the tracking record for a new execution attempt and
// moves it pending → running. A nil Handle with a non-nil error means
// the persistence layer could not create the record; the caller must
// abort before any effect runs.
func (t *Tracker) Start(ctx context.Context, actionType, target string, execCtx Context) (*Handle, error) {
	startedAt := t.now()
	op := record.Operation{
		ID:         t.ids.Generate(),
		ActionType: actionType,
		Target:     target,
		ContextID:  execCtx.ContextID,
		MessageID:  execCtx.MessageID,
		Status:     record.StatusPending,
		CreatedAt:  startedAt.UnixMilli(),
	}

	if err := t.store.InsertOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("start operation: %w", err)
	}

	ok, err := t.store.TransitionOperation(ctx, op.ID, record.StatusPending, record.StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("start operation: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("start operation: %s did not transition to running", op.ID)
	}
	op.Status = record.StatusRunning

	return &Handle{tracker: t, op: op, startedAt: startedAt}, nil
}

// ID returns the operation id.
func (h *Handle) ID() string { return h.op.ID }

// AddStep appends to the operation's ordered step log with an
// elapsed-time marker measured from Start. Steps are audit trail, not
// control flow: a step-log write failure is returned but does not
// fail the operation.
func (h *Handle) AddStep(ctx context.Context, name string, data state.Object) error {
	h.stepSeq++
	step := record.Step{
		Seq:       h.stepSeq,
		Name:      name,
		ElapsedMS: h.tracker.now().Sub(h.startedAt).Milliseconds(),
		Data:      data,
	}
	if err := h.tracker.store.AppendStep(ctx, h.op.ID, step); err != nil {
		return fmt.Errorf("add step %q: %w", name, err)
	}
	return nil
}

// Complete marks the operation completed, linking its snapshot and
// result payload.
func (h *Handle) Complete(ctx context.Context, snapshotID string, result state.Object) error {
	resultJSON := ""
	if len(result) > 0 {
		data, err := state.MarshalCanonical(result)
		if err != nil {
			return fmt.Errorf("complete operation: %w", err)
		}
		resultJSON = string(data)
	}

	ok, err := h.tracker.store.CompleteOperation(ctx, h.op.ID, snapshotID, resultJSON, h.tracker.now().UnixMilli())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("complete operation: %s was not running", h.op.ID)
	}
	h.op.Status = record.StatusCompleted
	h.op.SnapshotID = snapshotID
	return nil
}

// Fail marks the operation failed with an error message.
func (h *Handle) Fail(ctx context.Context, errMsg string) error {
	ok, err := h.tracker.store.FailOperation(ctx, h.op.ID, errMsg, h.tracker.now().UnixMilli())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("fail operation: %s was not running", h.op.ID)
	}
	h.op.Status = record.StatusFailed
	return nil
}

// Get returns a persisted operation with its step log.
func (t *Tracker) Get(ctx context.Context, id string) (record.Operation, []record.Step, error) {
	op, err := t.store.GetOperation(ctx, id)
	if err != nil {
		return record.Operation{}, nil, err
	}
	steps, err := t.store.ListSteps(ctx, id)
	if err != nil {
		return record.Operation{}, nil, err
	}
	return op, steps, nil
}

// MarkRolledBack moves a completed operation to rolled_back after a
// successful restore.
func (t *Tracker) MarkRolledBack(ctx context.Context, id string) error {
	ok, err := t.store.MarkOperationRolledBack(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("mark rolled back: operation %s was not completed", id)
	}
	return nil
}
