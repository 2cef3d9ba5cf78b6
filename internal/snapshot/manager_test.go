package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undolab/saferun/internal/record"
	"github.com/undolab/saferun/internal/state"
	"github.com/undolab/saferun/internal/store"
	"github.com/undolab/saferun/internal/testutil"
	"github.com/undolab/saferun/internal/track"
)

func newTestManager(t *testing.T, retention Retention, ids ...string) (*Manager, *store.Store, *testutil.Clock) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewClock(time.UnixMilli(1700000000000))
	m := New(s, retention, nil,
		WithIDGenerator(track.NewFixedGenerator(ids...)),
		WithNow(clock.Now),
	)
	return m, s, clock
}

func updateDelta(target, from, to string) record.Delta {
	return record.Delta{
		Type:   "update_post",
		Target: target,
		Before: state.Object{"title": state.String(from)},
		After:  state.Object{"title": state.String(to)},
		Status: record.DeltaCompleted,
		Hash:   "h-" + target,
	}
}

func TestCreateSnapshot(t *testing.T) {
	m, _, _ := newTestManager(t, Retention{}, "snap-1")
	ctx := context.Background()

	id, err := m.Create(ctx, "ctx-1", "msg-1", "op-1", []record.Delta{updateDelta("post-1", "Old", "New")})
	require.NoError(t, err)
	assert.Equal(t, "snap-1", id)

	snap, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, record.KindDelta, snap.Kind)
	assert.Equal(t, "op-1", snap.OperationID)
	assert.NotEmpty(t, snap.StorageRef)
	assert.Positive(t, snap.SizeBytes)

	require.Len(t, snap.RollbackInstructions, 1)
	inst := snap.RollbackInstructions[0]
	assert.Equal(t, record.OpRestorePost, inst.Op)
	assert.Equal(t, "post-1", inst.Target)
	assert.True(t, state.Equal(inst.State, state.Object{"title": state.String("Old")}))

	exists, err := m.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	// Round-trip preserves the fingerprint.
	opsJSON, instJSON, err := serialize(snap.Operations, snap.RollbackInstructions)
	require.NoError(t, err)
	assert.Equal(t, snap.StorageRef, state.SnapshotFingerprint(opsJSON, instJSON))
}

func TestCreateSnapshotRejectsEmpty(t *testing.T) {
	m, _, _ := newTestManager(t, Retention{}, "snap-1")
	_, err := m.Create(context.Background(), "", "", "op-1", nil)
	assert.Error(t, err)
}

func TestCreateSnapshotOnePerOperation(t *testing.T) {
	m, _, _ := newTestManager(t, Retention{}, "snap-1", "snap-2")
	ctx := context.Background()

	_, err := m.Create(ctx, "", "", "op-1", []record.Delta{updateDelta("post-1", "A", "B")})
	require.NoError(t, err)

	_, err = m.Create(ctx, "", "", "op-1", []record.Delta{updateDelta("post-1", "B", "C")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has a snapshot")
}

func TestSweepAgeBound(t *testing.T) {
	m, _, clock := newTestManager(t, Retention{MaxAge: time.Hour}, "snap-old", "snap-new")
	ctx := context.Background()

	_, err := m.Create(ctx, "ctx-1", "", "op-1", []record.Delta{updateDelta("post-1", "A", "B")})
	require.NoError(t, err)

	// Two hours later the first snapshot is past the age bound; the
	// create-triggered sweep expires it while keeping the new one.
	clock.Advance(2 * time.Hour)
	_, err = m.Create(ctx, "ctx-1", "", "op-2", []record.Delta{updateDelta("post-2", "C", "D")})
	require.NoError(t, err)

	oldExists, err := m.Exists(ctx, "snap-old")
	require.NoError(t, err)
	assert.False(t, oldExists)

	newExists, err := m.Exists(ctx, "snap-new")
	require.NoError(t, err)
	assert.True(t, newExists)

	// Soft-deleted, not purged: still retrievable with the flag.
	snap, err := m.Get(ctx, "snap-old")
	require.NoError(t, err)
	assert.True(t, snap.Deleted)
}

func TestSweepSizeBoundOldestFirst(t *testing.T) {
	// Budget that fits roughly two records; the oldest goes first.
	m, _, clock := newTestManager(t, Retention{MaxTotalBytes: 512}, "snap-1", "snap-2", "snap-3")
	ctx := context.Background()

	for i, op := range []string{"op-1", "op-2", "op-3"} {
		_, err := m.Create(ctx, "ctx-1", "", op, []record.Delta{
			updateDelta("post-1", "padpadpadpadpadpadpadpadpadpadpadpad", "padpadpadpadpadpadpadpadpadpadpadpad"),
		})
		require.NoError(t, err)
		clock.Advance(time.Duration(i+1) * time.Minute)
	}

	exists1, err := m.Exists(ctx, "snap-1")
	require.NoError(t, err)
	exists3, err := m.Exists(ctx, "snap-3")
	require.NoError(t, err)

	assert.False(t, exists1, "oldest snapshot should be expired by the size sweep")
	assert.True(t, exists3, "the just-created snapshot is exempt from the size sweep")
}

func TestSweepPurgesAfterGrace(t *testing.T) {
	m, s, clock := newTestManager(t,
		Retention{MaxAge: time.Hour, PurgeGrace: 4 * time.Hour},
		"snap-1", "snap-2", "snap-3")
	ctx := context.Background()

	_, err := m.Create(ctx, "", "", "op-1", []record.Delta{updateDelta("post-1", "A", "B")})
	require.NoError(t, err)

	// Age-expire snap-1.
	clock.Advance(2 * time.Hour)
	_, err = m.Create(ctx, "", "", "op-2", []record.Delta{updateDelta("post-2", "C", "D")})
	require.NoError(t, err)

	// Past the grace period a later sweep removes the row entirely.
	clock.Advance(5 * time.Hour)
	_, err = m.Create(ctx, "", "", "op-3", []record.Delta{updateDelta("post-3", "E", "F")})
	require.NoError(t, err)

	_, err = s.GetSnapshot(ctx, "snap-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
