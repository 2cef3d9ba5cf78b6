package store

import (
	"context"
	"fmt"

	"github.com/undolab/saferun/internal/record"
)

// InsertOperation inserts a new operation row in pending status.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are
// silently ignored.
func (s *Store) InsertOperation(ctx context.Context, op record.Operation) error {
	status := op.Status
	if status == "" {
		status = record.StatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations
		(id, action_type, target, context_id, message_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		op.ID,
		op.ActionType,
		op.Target,
		op.ContextID,
		op.MessageID,
		string(status),
		op.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}

	return nil
}

// TransitionOperation moves an operation from one status to another
// with a guarded UPDATE. Returns false if the operation was not in
// the expected status - the transition did not happen. This is how
// status monotonicity is enforced at the storage layer.
func (s *Store) TransitionOperation(ctx context.Context, id string, from, to record.OperationStatus) (bool, error) {
	if !record.CanTransition(from, to) {
		return false, fmt.Errorf("transition operation: illegal transition %s -> %s", from, to)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE operations SET status = ? WHERE id = ? AND status = ?
	`, string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition operation: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition operation: %w", err)
	}
	return n == 1, nil
}

// CompleteOperation marks a running operation completed, linking its
// snapshot and recording the result payload. Returns false if the
// operation was not running.
func (s *Store) CompleteOperation(ctx context.Context, id, snapshotID string, result string, completedAt int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE operations
		SET status = ?, snapshot_id = ?, result = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, string(record.StatusCompleted), snapshotID, result, completedAt, id, string(record.StatusRunning))
	if err != nil {
		return false, fmt.Errorf("complete operation: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete operation: %w", err)
	}
	return n == 1, nil
}

// FailOperation marks a running operation failed with an error
// message. Returns false if the operation was not running.
func (s *Store) FailOperation(ctx context.Context, id, errMsg string, completedAt int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE operations
		SET status = ?, error = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, string(record.StatusFailed), errMsg, completedAt, id, string(record.StatusRunning))
	if err != nil {
		return false, fmt.Errorf("fail operation: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail operation: %w", err)
	}
	return n == 1, nil
}

// MarkOperationRolledBack moves a completed operation to rolled_back.
// Returns false if the operation was not completed.
func (s *Store) MarkOperationRolledBack(ctx context.Context, id string) (bool, error) {
	return s.TransitionOperation(ctx, id, record.StatusCompleted, record.StatusRolledBack)
}

// AppendStep appends one entry to an operation's step log. Seq must be
// strictly increasing per operation; the primary key rejects reuse.
func (s *Store) AppendStep(ctx context.Context, operationID string, step record.Step) error {
	data, err := marshalStepData(step.Data)
	if err != nil {
		return fmt.Errorf("append step: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO operation_steps (operation_id, seq, name, elapsed_ms, data)
		VALUES (?, ?, ?, ?, ?)
	`, operationID, step.Seq, step.Name, step.ElapsedMS, data)
	if err != nil {
		return fmt.Errorf("append step: %w", err)
	}

	return nil
}

// InsertSnapshot inserts a snapshot row. Returns inserted=false when a
// snapshot already exists for the operation (ON CONFLICT DO NOTHING on
// both the id and the operation_id uniqueness).
func (s *Store) InsertSnapshot(ctx context.Context, snap record.Snapshot) (inserted bool, err error) {
	operationsJSON, err := marshalDeltas(snap.Operations)
	if err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}

	instructionsJSON, err := marshalInstructions(snap.RollbackInstructions)
	if err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots
		(id, context_id, message_id, operation_id, kind, operations,
		 rollback_instructions, storage_ref, size_bytes, deleted, deleted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)
		ON CONFLICT DO NOTHING
	`,
		snap.ID,
		snap.ContextID,
		snap.MessageID,
		snap.OperationID,
		string(snap.Kind),
		operationsJSON,
		instructionsJSON,
		snap.StorageRef,
		snap.SizeBytes,
		snap.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}
	return n == 1, nil
}

// SoftDeleteSnapshot marks a snapshot deleted without removing the
// row. Idempotent: re-deleting a deleted snapshot changes nothing.
func (s *Store) SoftDeleteSnapshot(ctx context.Context, id string, deletedAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE snapshots SET deleted = 1, deleted_at = ?
		WHERE id = ? AND deleted = 0
	`, deletedAt, id)
	if err != nil {
		return fmt.Errorf("soft delete snapshot: %w", err)
	}
	return nil
}

// PurgeSnapshots physically removes soft-deleted snapshots whose
// deletion is older than the cutoff. Returns the number of rows
// removed.
func (s *Store) PurgeSnapshots(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE deleted = 1 AND deleted_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge snapshots: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge snapshots: %w", err)
	}
	return n, nil
}
