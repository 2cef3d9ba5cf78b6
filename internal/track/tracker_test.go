package track

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
)

func newTestTracker(t *testing.T) (*Tracker, *testutil.Clock) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewClock(time.UnixMilli(1700000000000))
	tracker := New(s,
		WithIDGenerator(NewFixedGenerator("op-1", "op-2", "op-3")),
		WithNow(clock.Now),
	)
	return tracker, clock
}

func TestStartCreatesRunningOperation(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	handle, err := tracker.Start(ctx, "create_post", "", Context{ContextID: "ctx-1", MessageID: "msg-1"})
	require.NoError(t, err)
	assert.Equal(t, "op-1", handle.ID())

	op, _, err := tracker.Get(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, record.StatusRunning, op.Status)
	assert.Equal(t, "create_post", op.ActionType)
	assert.Equal(t, "ctx-1", op.ContextID)
	assert.Equal(t, int64(1700000000000), op.CreatedAt)
}

func TestCompleteLifecycle(t *testing.T) {
	tracker, clock := newTestTracker(t)
	ctx := context.Background()

	handle, err := tracker.Start(ctx, "update_post", "post-1", Context{})
	require.NoError(t, err)

	clock.Advance(25 * time.Millisecond)
	require.NoError(t, handle.AddStep(ctx, "apply", state.Object{"target": state.String("post-1")}))

	clock.Advance(10 * time.Millisecond)
	require.NoError(t, handle.Complete(ctx, "snap-1", state.Object{"target": state.String("post-1")}))

	op, steps, err := tracker.Get(ctx, handle.ID())
	require.NoError(t, err)
	assert.Equal(t, record.StatusCompleted, op.Status)
	assert.Equal(t, "snap-1", op.SnapshotID)
	assert.Equal(t, int64(1700000000035), op.CompletedAt)

	require.Len(t, steps, 1)
	assert.Equal(t, 1, steps[0].Seq)
	assert.Equal(t, "apply", steps[0].Name)
	assert.Equal(t, int64(25), steps[0].ElapsedMS)

	// Completed operations cannot complete or fail again.
	assert.Error(t, handle.Complete(ctx, "snap-2", nil))
	assert.Error(t, handle.Fail(ctx, "late"))
}

func TestFailLifecycle(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	handle, err := tracker.Start(ctx, "delete_post", "post-404", Context{})
	require.NoError(t, err)
	require.NoError(t, handle.Fail(ctx, "post not found"))

	op, _, err := tracker.Get(ctx, handle.ID())
	require.NoError(t, err)
	assert.Equal(t, record.StatusFailed, op.Status)
	assert.Equal(t, "post not found", op.Error)

	// Failed operations never become rolled_back.
	assert.Error(t, tracker.MarkRolledBack(ctx, handle.ID()))
}

func TestMarkRolledBack(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	handle, err := tracker.Start(ctx, "update_post", "post-1", Context{})
	require.NoError(t, err)
	require.NoError(t, handle.Complete(ctx, "snap-1", nil))

	require.NoError(t, tracker.MarkRolledBack(ctx, handle.ID()))

	op, _, err := tracker.Get(ctx, handle.ID())
	require.NoError(t, err)
	assert.Equal(t, record.StatusRolledBack, op.Status)

	// Idempotent retries fail: rolled_back is terminal.
	assert.Error(t, tracker.MarkRolledBack(ctx, handle.ID()))
}

func TestFixedGeneratorSequence(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7GeneratorMonotonic(t *testing.T) {
	g := UUIDv7Generator{}
	a := g.Generate()
	b := g.Generate()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
