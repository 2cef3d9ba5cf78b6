// Package record defines the persisted record types shared by the
// operation tracker, snapshot manager, and rollback engine: one
// tracked Operation per execution attempt, one Delta per effect, one
// Snapshot per successfully completed operation.
package record

import "github.com/undolab/saferun/internal/state"

// OperationStatus is the lifecycle state of one execution attempt.
// Transitions are monotonic: pending → running → {completed | failed},
// and completed → rolled_back after a successful restore. No
// transition ever moves backwards.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusRunning    OperationStatus = "running"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
	StatusRolledBack OperationStatus = "rolled_back"
)

// NextStatuses defines the legal transitions. The store enforces these
// with guarded UPDATEs; an illegal transition affects zero rows.
var NextStatuses = map[OperationStatus][]OperationStatus{
	StatusPending:   {StatusRunning},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusRolledBack},
}

// CanTransition reports whether from → to is a legal status change.
func CanTransition(from, to OperationStatus) bool {
	for _, next := range NextStatuses[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Operation is one tracked attempt to execute an action. Created when
// execution begins; mutated only by the tracker; never deleted by the
// engine.
type Operation struct {
	ID         string
	ActionType string
	Target     string
	ContextID  string
	MessageID  string
	Status     OperationStatus
	// SnapshotID links the snapshot persisted for this operation;
	// empty for failed operations.
	SnapshotID string
	// Result is the handler's success payload, if any.
	Result state.Object
	// Error is the failure message for failed operations.
	Error string
	// CreatedAt and CompletedAt are Unix milliseconds. CompletedAt is
	// zero while the operation is pending or running.
	CreatedAt   int64
	CompletedAt int64
}

// Step is one entry in an operation's append-only step log. ElapsedMS
// is measured from the operation's CreatedAt, so the log doubles as a
// timing trace.
type Step struct {
	Seq       int
	Name      string
	ElapsedMS int64
	Data      state.Object
}

// DeltaStatus records whether the effect behind a delta completed.
type DeltaStatus string

const (
	DeltaCompleted DeltaStatus = "completed"
	DeltaFailed    DeltaStatus = "failed"
)

// Delta is the recorded before/after pair for one effect. Before is
// Null for creates; After is Null for deletes.
type Delta struct {
	Type   string
	Target string
	// Key qualifies meta and option deltas (the meta key or option
	// name); empty for whole-entity deltas.
	Key    string
	Before state.Value
	After  state.Value
	Status DeltaStatus
	// Hash is the content-addressed hash of (type, target, before,
	// after), computed at capture time for audit integrity.
	Hash string
}

// Instruction ops. Each reverses exactly one delta when applied to the
// content store.
const (
	OpRestorePost     = "restore_post"
	OpDeletePost      = "delete_post"
	OpRestorePostMeta = "restore_post_meta"
	OpDeletePostMeta  = "delete_post_meta"
	OpRestoreOption   = "restore_option"
	OpDeleteOption    = "delete_option"
	OpRestoreWidget   = "restore_widget"
	OpDeleteWidget    = "delete_widget"
)

// Instruction is one machine-generated inverse-action descriptor.
// Replaying a snapshot's instructions in order reproduces the before
// state of every delta.
type Instruction struct {
	Op     string
	Target string
	// Key qualifies meta and option instructions.
	Key string
	// State is the before-state to reapply; Null for delete ops.
	State state.Value
}

// SnapshotKind distinguishes per-operation delta snapshots from full
// backups. The engine only ever writes delta snapshots; FULL exists so
// externally imported full backups share the table.
type SnapshotKind string

const (
	KindDelta SnapshotKind = "DELTA"
	KindFull  SnapshotKind = "FULL"
)

// Snapshot is the durable, retrievable bundle of deltas and inverse
// instructions for one completed operation. Exactly one exists per
// successfully completed operation; none for failed ones.
type Snapshot struct {
	ID          string
	ContextID   string
	MessageID   string
	OperationID string
	Kind        SnapshotKind
	Operations  []Delta
	// RollbackInstructions replay in order against the content store.
	RollbackInstructions []Instruction
	// StorageRef is the content-addressed fingerprint of the
	// serialized record.
	StorageRef string
	SizeBytes  int64
	Deleted    bool
	// DeletedAt and CreatedAt are Unix milliseconds; DeletedAt is
	// zero while the snapshot is live.
	DeletedAt int64
	CreatedAt int64
}
