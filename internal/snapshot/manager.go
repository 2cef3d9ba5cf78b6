// Package snapshot persists reversible records of executed actions.
// One snapshot exists per successfully completed operation: the delta
// list, the machine-generated inverse instructions, and retention
// bookkeeping.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/undolab/saferun/internal/audit"
	"github.com/undolab/saferun/internal/record"
	"github.com/undolab/saferun/internal/state"
	"github.com/undolab/saferun/internal/store"
	"github.com/undolab/saferun/internal/track"
)

// Retention bounds stored snapshots by age and cumulative size.
type Retention struct {
	// MaxAge bounds snapshot age; older snapshots are soft-deleted.
	MaxAge time.Duration
	// MaxTotalBytes bounds cumulative live snapshot size; the sweep
	// soft-deletes oldest-first until under the bound.
	MaxTotalBytes int64
	// PurgeGrace is how long a soft-deleted snapshot survives before
	// physical removal.
	PurgeGrace time.Duration
}

// Manager creates, retrieves, and expires snapshots.
type Manager struct {
	store     *store.Store
	ids       track.IDGenerator
	now       func() time.Time
	retention Retention
	audit     *audit.Handler
}

// Option configures a Manager.
type Option func(*Manager)

// WithIDGenerator replaces the id generator.
func WithIDGenerator(g track.IDGenerator) Option {
	return func(m *Manager) { m.ids = g }
}

// WithNow replaces the clock.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager.
func New(s *store.Store, retention Retention, auditor *audit.Handler, opts ...Option) *Manager {
	if auditor == nil {
		auditor = audit.NewHandler(nil)
	}
	m := &Manager{
		store:     s,
		ids:       track.UUIDv7Generator{},
		now:       time.Now,
		retention: retention,
		audit:     auditor,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create builds and persists the snapshot for one completed
// operation: derives rollback instructions by inverting each delta,
// fingerprints the serialized record, then runs the retention sweep.
// Returns the new snapshot id.
func (m *Manager) Create(ctx context.Context, contextID, messageID, operationID string, deltas []record.Delta) (string, error) {
	if len(deltas) == 0 {
		return "", fmt.Errorf("create snapshot: no deltas for operation %s", operationID)
	}

	instructions := make([]record.Instruction, 0, len(deltas))
	for _, d := range deltas {
		inst, err := Invert(d)
		if err != nil {
			return "", fmt.Errorf("create snapshot: %w", err)
		}
		instructions = append(instructions, inst)
	}

	operationsJSON, instructionsJSON, err := serialize(deltas, instructions)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}

	snap := record.Snapshot{
		ID:                   m.ids.Generate(),
		ContextID:            contextID,
		MessageID:            messageID,
		OperationID:          operationID,
		Kind:                 record.KindDelta,
		Operations:           deltas,
		RollbackInstructions: instructions,
		StorageRef:           state.SnapshotFingerprint(operationsJSON, instructionsJSON),
		SizeBytes:            int64(len(operationsJSON) + len(instructionsJSON)),
		CreatedAt:            m.now().UnixMilli(),
	}

	inserted, err := m.store.InsertSnapshot(ctx, snap)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	if !inserted {
		return "", fmt.Errorf("create snapshot: operation %s already has a snapshot", operationID)
	}

	// Retention runs after every create. Sweep failures are audited
	// but do not fail the execution that triggered them: the snapshot
	// is already durable.
	if err := m.sweep(ctx, snap.ID); err != nil {
		m.audit.Warn(ctx, "retention_sweep_failed", map[string]any{
			"snapshot_id": snap.ID,
			"error":       err.Error(),
		})
	}

	return snap.ID, nil
}

// serialize produces the canonical JSON forms used for fingerprinting
// and size accounting. Must stay in sync with what the store writes;
// both go through state.MarshalCanonical.
func serialize(deltas []record.Delta, instructions []record.Instruction) ([]byte, []byte, error) {
	deltaArr := make(state.Array, len(deltas))
	for i, d := range deltas {
		obj := state.Object{
			"type":   state.String(d.Type),
			"target": state.String(d.Target),
			"status": state.String(d.Status),
			"hash":   state.String(d.Hash),
		}
		if d.Key != "" {
			obj["key"] = state.String(d.Key)
		}
		if state.IsNull(d.Before) {
			obj["before"] = state.Null{}
		} else {
			obj["before"] = d.Before
		}
		if state.IsNull(d.After) {
			obj["after"] = state.Null{}
		} else {
			obj["after"] = d.After
		}
		deltaArr[i] = obj
	}
	operationsJSON, err := state.MarshalCanonical(deltaArr)
	if err != nil {
		return nil, nil, err
	}

	instArr := make(state.Array, len(instructions))
	for i, inst := range instructions {
		obj := state.Object{
			"op":     state.String(inst.Op),
			"target": state.String(inst.Target),
		}
		if inst.Key != "" {
			obj["key"] = state.String(inst.Key)
		}
		if state.IsNull(inst.State) {
			obj["state"] = state.Null{}
		} else {
			obj["state"] = inst.State
		}
		instArr[i] = obj
	}
	instructionsJSON, err := state.MarshalCanonical(instArr)
	if err != nil {
		return nil, nil, err
	}

	return operationsJSON, instructionsJSON, nil
}

// Get returns a snapshot by id, including soft-deleted ones; callers
// check the Deleted flag.
func (m *Manager) Get(ctx context.Context, id string) (record.Snapshot, error) {
	return m.store.GetSnapshot(ctx, id)
}

// Exists reports whether a live snapshot exists for the id.
func (m *Manager) Exists(ctx context.Context, id string) (bool, error) {
	return m.store.SnapshotExists(ctx, id)
}

// List returns live snapshots for a context, oldest first.
func (m *Manager) List(ctx context.Context, contextID string) ([]record.Snapshot, error) {
	return m.store.ListSnapshots(ctx, contextID)
}

// sweep enforces retention: soft-delete snapshots past the age bound,
// soft-delete oldest-first while cumulative size exceeds the bound,
// purge soft-deleted rows past the grace period. The snapshot just
// created (keepID) is exempt from the size sweep so a single oversized
// record cannot delete itself.
func (m *Manager) sweep(ctx context.Context, keepID string) error {
	now := m.now()
	nowMS := now.UnixMilli()

	rows, err := m.store.ListLiveSnapshotSizes(ctx)
	if err != nil {
		return err
	}

	ageCutoff := now.Add(-m.retention.MaxAge).UnixMilli()
	var total int64
	live := rows[:0]
	for _, r := range rows {
		if m.retention.MaxAge > 0 && r.CreatedAt < ageCutoff && r.ID != keepID {
			if err := m.store.SoftDeleteSnapshot(ctx, r.ID, nowMS); err != nil {
				return err
			}
			m.audit.Event(ctx, "snapshot_expired", map[string]any{
				"snapshot_id": r.ID,
				"reason":      "age",
			})
			continue
		}
		total += r.SizeBytes
		live = append(live, r)
	}

	if m.retention.MaxTotalBytes > 0 {
		for _, r := range live {
			if total <= m.retention.MaxTotalBytes {
				break
			}
			if r.ID == keepID {
				continue
			}
			if err := m.store.SoftDeleteSnapshot(ctx, r.ID, nowMS); err != nil {
				return err
			}
			total -= r.SizeBytes
			m.audit.Event(ctx, "snapshot_expired", map[string]any{
				"snapshot_id": r.ID,
				"reason":      "size",
			})
		}
	}

	if m.retention.PurgeGrace > 0 {
		purgeCutoff := now.Add(-m.retention.PurgeGrace).UnixMilli()
		purged, err := m.store.PurgeSnapshots(ctx, purgeCutoff)
		if err != nil {
			return err
		}
		if purged > 0 {
			m.audit.Event(ctx, "snapshots_purged", map[string]any{"count": purged})
		}
	}

	return nil
}
