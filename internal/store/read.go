package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/undolab/saferun/internal/record"
)

// GetOperation returns one operation by id, without its step log.
// Returns ErrNotFound if no row exists.
func (s *Store) GetOperation(ctx context.Context, id string) (record.Operation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, action_type, target, context_id, message_id, status,
		       snapshot_id, result, error, created_at, completed_at
		FROM operations WHERE id = ?
	`, id)

	var op record.Operation
	var status, result string
	err := row.Scan(&op.ID, &op.ActionType, &op.Target, &op.ContextID,
		&op.MessageID, &status, &op.SnapshotID, &result, &op.Error,
		&op.CreatedAt, &op.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Operation{}, fmt.Errorf("operation %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return record.Operation{}, fmt.Errorf("get operation: %w", err)
	}

	op.Status = record.OperationStatus(status)
	op.Result, err = unmarshalResult(result)
	if err != nil {
		return record.Operation{}, fmt.Errorf("get operation: %w", err)
	}

	return op, nil
}

// ListSteps returns an operation's step log in append order.
// Returns an empty slice (not nil) for an unknown operation.
func (s *Store) ListSteps(ctx context.Context, operationID string) ([]record.Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, name, elapsed_ms, data
		FROM operation_steps
		WHERE operation_id = ?
		ORDER BY seq ASC
	`, operationID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	steps := []record.Step{}
	for rows.Next() {
		var step record.Step
		var data string
		if err := rows.Scan(&step.Seq, &step.Name, &step.ElapsedMS, &data); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.Data, err = unmarshalResult(data)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

// GetSnapshot returns one snapshot by id, including soft-deleted rows
// (callers decide how to treat the deleted flag). Returns ErrNotFound
// if no row exists.
func (s *Store) GetSnapshot(ctx context.Context, id string) (record.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, context_id, message_id, operation_id, kind, operations,
		       rollback_instructions, storage_ref, size_bytes, deleted,
		       deleted_at, created_at
		FROM snapshots WHERE id = ?
	`, id)

	snap, err := scanSnapshot(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Snapshot{}, fmt.Errorf("snapshot %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return record.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// SnapshotExists reports whether a live (not soft-deleted) snapshot
// exists for the id.
func (s *Store) SnapshotExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM snapshots WHERE id = ? AND deleted = 0
	`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("snapshot exists: %w", err)
	}
	return n > 0, nil
}

// ListSnapshots returns live snapshots for a context, oldest first.
// Returns an empty slice (not nil) if none exist.
func (s *Store) ListSnapshots(ctx context.Context, contextID string) ([]record.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, context_id, message_id, operation_id, kind, operations,
		       rollback_instructions, storage_ref, size_bytes, deleted,
		       deleted_at, created_at
		FROM snapshots
		WHERE context_id = ? AND deleted = 0
		ORDER BY created_at ASC, id ASC
	`, contextID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []record.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		snapshots = append(snapshots, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snapshots, nil
}

// SnapshotSizeRow is the slim projection the retention sweep works
// over.
type SnapshotSizeRow struct {
	ID        string
	SizeBytes int64
	CreatedAt int64
}

// ListLiveSnapshotSizes returns (id, size, created_at) for every live
// snapshot, oldest first. The sweep walks this to enforce the
// cumulative size bound.
func (s *Store) ListLiveSnapshotSizes(ctx context.Context) ([]SnapshotSizeRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, size_bytes, created_at
		FROM snapshots
		WHERE deleted = 0
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshot sizes: %w", err)
	}
	defer rows.Close()

	out := []SnapshotSizeRow{}
	for rows.Next() {
		var r SnapshotSizeRow
		if err := rows.Scan(&r.ID, &r.SizeBytes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot size: %w", err)
		}
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot sizes: %w", err)
	}
	return out, nil
}

// scanSnapshot builds a Snapshot from one row's columns.
func scanSnapshot(scan func(dest ...any) error) (record.Snapshot, error) {
	var snap record.Snapshot
	var kind, operations, instructions string
	var deleted int

	err := scan(&snap.ID, &snap.ContextID, &snap.MessageID, &snap.OperationID,
		&kind, &operations, &instructions, &snap.StorageRef, &snap.SizeBytes,
		&deleted, &snap.DeletedAt, &snap.CreatedAt)
	if err != nil {
		return record.Snapshot{}, err
	}

	snap.Kind = record.SnapshotKind(kind)
	snap.Deleted = deleted != 0

	snap.Operations, err = unmarshalDeltas(operations)
	if err != nil {
		return record.Snapshot{}, err
	}
	snap.RollbackInstructions, err = unmarshalInstructions(instructions)
	if err != nil {
		return record.Snapshot{}, err
	}

	return snap, nil
}
