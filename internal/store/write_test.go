package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/undolab/saferun/internal/record"
	"github.com/undolab/saferun/internal/state"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testOperation(id string) record.Operation {
	return record.Operation{
		ID:         id,
		ActionType: "create_post",
		Target:     "",
		ContextID:  "ctx-1",
		MessageID:  "msg-1",
		Status:     record.StatusPending,
		CreatedAt:  1700000000000,
	}
}

func testSnapshot(id, operationID string) record.Snapshot {
	return record.Snapshot{
		ID:          id,
		ContextID:   "ctx-1",
		MessageID:   "msg-1",
		OperationID: operationID,
		Kind:        record.KindDelta,
		Operations: []record.Delta{{
			Type:   "create_post",
			Target: "post-1",
			Before: state.Null{},
			After:  state.Object{"title": state.String("T")},
			Status: record.DeltaCompleted,
			Hash:   "abc",
		}},
		RollbackInstructions: []record.Instruction{{
			Op:     record.OpDeletePost,
			Target: "post-1",
			State:  state.Null{},
		}},
		StorageRef: "ref",
		SizeBytes:  128,
		CreatedAt:  1700000000000,
	}
}

func TestInsertOperation_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	op := testOperation("op-1")
	if err := s.InsertOperation(ctx, op); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := s.InsertOperation(ctx, op); err != nil {
		t.Fatalf("duplicate insert should be ignored: %v", err)
	}

	got, err := s.GetOperation(ctx, "op-1")
	if err != nil {
		t.Fatalf("GetOperation failed: %v", err)
	}
	if got.Status != record.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.ActionType != "create_post" {
		t.Errorf("action_type = %s", got.ActionType)
	}
}

func TestTransitionOperation_Guarded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertOperation(ctx, testOperation("op-1")); err != nil {
		t.Fatal(err)
	}

	ok, err := s.TransitionOperation(ctx, "op-1", record.StatusPending, record.StatusRunning)
	if err != nil || !ok {
		t.Fatalf("pending->running: ok=%v err=%v", ok, err)
	}

	// Repeating the same transition must affect zero rows.
	ok, err = s.TransitionOperation(ctx, "op-1", record.StatusPending, record.StatusRunning)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("second pending->running should not apply")
	}

	// Illegal transitions are rejected before touching the database.
	_, err = s.TransitionOperation(ctx, "op-1", record.StatusRunning, record.StatusPending)
	if err == nil {
		t.Error("running->pending should be an illegal transition")
	}
	_, err = s.TransitionOperation(ctx, "op-1", record.StatusFailed, record.StatusRunning)
	if err == nil {
		t.Error("failed->running should be an illegal transition")
	}
}

func TestCompleteOperation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertOperation(ctx, testOperation("op-1")); err != nil {
		t.Fatal(err)
	}

	// Not running yet.
	ok, err := s.CompleteOperation(ctx, "op-1", "snap-1", `{"target":"post-1"}`, 1700000001000)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("completing a pending operation should not apply")
	}

	if _, err := s.TransitionOperation(ctx, "op-1", record.StatusPending, record.StatusRunning); err != nil {
		t.Fatal(err)
	}
	ok, err = s.CompleteOperation(ctx, "op-1", "snap-1", `{"target":"post-1"}`, 1700000001000)
	if err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}

	got, err := s.GetOperation(ctx, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != record.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.SnapshotID != "snap-1" {
		t.Errorf("snapshot_id = %s", got.SnapshotID)
	}
	if got.CompletedAt != 1700000001000 {
		t.Errorf("completed_at = %d", got.CompletedAt)
	}
	if got.Result["target"] != state.String("post-1") {
		t.Errorf("result = %v", got.Result)
	}
}

func TestFailOperation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertOperation(ctx, testOperation("op-1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.TransitionOperation(ctx, "op-1", record.StatusPending, record.StatusRunning); err != nil {
		t.Fatal(err)
	}

	ok, err := s.FailOperation(ctx, "op-1", "driver unavailable", 1700000001000)
	if err != nil || !ok {
		t.Fatalf("fail: ok=%v err=%v", ok, err)
	}

	got, err := s.GetOperation(ctx, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != record.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Error != "driver unavailable" {
		t.Errorf("error = %q", got.Error)
	}

	// A failed operation can never be rolled back.
	ok, err = s.MarkOperationRolledBack(ctx, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("failed operation must not transition to rolled_back")
	}
}

func TestAppendStep_OrderedLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertOperation(ctx, testOperation("op-1")); err != nil {
		t.Fatal(err)
	}

	steps := []record.Step{
		{Seq: 1, Name: "capture_before", ElapsedMS: 1},
		{Seq: 2, Name: "apply", ElapsedMS: 5, Data: state.Object{"target": state.String("post-1")}},
		{Seq: 3, Name: "snapshot", ElapsedMS: 9},
	}
	for _, step := range steps {
		if err := s.AppendStep(ctx, "op-1", step); err != nil {
			t.Fatalf("append step %d: %v", step.Seq, err)
		}
	}

	// Seq reuse violates the primary key.
	if err := s.AppendStep(ctx, "op-1", record.Step{Seq: 2, Name: "dup"}); err == nil {
		t.Error("duplicate seq should fail")
	}

	got, err := s.ListSteps(ctx, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d steps, want 3", len(got))
	}
	for i, step := range got {
		if step.Seq != i+1 {
			t.Errorf("step[%d].Seq = %d", i, step.Seq)
		}
	}
	if got[1].Data["target"] != state.String("post-1") {
		t.Errorf("step data = %v", got[1].Data)
	}
}

func TestInsertSnapshot_OnePerOperation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertSnapshot(ctx, testSnapshot("snap-1", "op-1"))
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}

	// Second snapshot for the same operation is rejected.
	inserted, err = s.InsertSnapshot(ctx, testSnapshot("snap-2", "op-1"))
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("second snapshot for op-1 should not insert")
	}

	// Same id re-inserted is a no-op.
	inserted, err = s.InsertSnapshot(ctx, testSnapshot("snap-1", "op-1"))
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("duplicate id should not insert")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := testSnapshot("snap-1", "op-1")
	if _, err := s.InsertSnapshot(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSnapshot(ctx, "snap-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != record.KindDelta {
		t.Errorf("kind = %s", got.Kind)
	}
	if got.StorageRef != "ref" || got.SizeBytes != 128 {
		t.Errorf("metadata mismatch: %+v", got)
	}
	if len(got.Operations) != 1 || got.Operations[0].Type != "create_post" {
		t.Fatalf("deltas = %+v", got.Operations)
	}
	if !state.Equal(got.Operations[0].Before, state.Null{}) {
		t.Errorf("before = %v, want null", got.Operations[0].Before)
	}
	if !state.Equal(got.Operations[0].After, state.Object{"title": state.String("T")}) {
		t.Errorf("after = %v", got.Operations[0].After)
	}
	if len(got.RollbackInstructions) != 1 || got.RollbackInstructions[0].Op != record.OpDeletePost {
		t.Errorf("instructions = %+v", got.RollbackInstructions)
	}

	_, err = s.GetSnapshot(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSoftDeleteAndPurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertSnapshot(ctx, testSnapshot("snap-1", "op-1")); err != nil {
		t.Fatal(err)
	}

	exists, err := s.SnapshotExists(ctx, "snap-1")
	if err != nil || !exists {
		t.Fatalf("exists=%v err=%v", exists, err)
	}

	if err := s.SoftDeleteSnapshot(ctx, "snap-1", 1700000002000); err != nil {
		t.Fatal(err)
	}

	// Soft-deleted: gone from Exists, still readable with the flag set.
	exists, err = s.SnapshotExists(ctx, "snap-1")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("soft-deleted snapshot should not exist")
	}
	got, err := s.GetSnapshot(ctx, "snap-1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Deleted || got.DeletedAt != 1700000002000 {
		t.Errorf("deleted=%v deleted_at=%d", got.Deleted, got.DeletedAt)
	}

	// Re-deleting must not move deleted_at.
	if err := s.SoftDeleteSnapshot(ctx, "snap-1", 1700000009000); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetSnapshot(ctx, "snap-1")
	if got.DeletedAt != 1700000002000 {
		t.Errorf("deleted_at moved to %d", got.DeletedAt)
	}

	// Purge removes only rows past the cutoff.
	n, err := s.PurgeSnapshots(ctx, 1700000002000)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("purged %d rows, cutoff not passed", n)
	}
	n, err = s.PurgeSnapshots(ctx, 1700000002001)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}
	if _, err := s.GetSnapshot(ctx, "snap-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after purge, got %v", err)
	}
}

func TestListSnapshots_LiveOldestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"snap-b", "snap-a", "snap-c"} {
		snap := testSnapshot(id, "op-"+id)
		snap.CreatedAt = int64(1700000000000 + (2-i)*1000)
		if _, err := s.InsertSnapshot(ctx, snap); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SoftDeleteSnapshot(ctx, "snap-b", 1700000005000); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListSnapshots(ctx, "ctx-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d snapshots, want 2 live", len(got))
	}
	if got[0].CreatedAt > got[1].CreatedAt {
		t.Error("snapshots not oldest first")
	}
}

func TestListLiveSnapshotSizes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"snap-1", "snap-2"} {
		snap := testSnapshot(id, "op-"+id)
		snap.SizeBytes = int64(100 * (i + 1))
		snap.CreatedAt = int64(1700000000000 + i*1000)
		if _, err := s.InsertSnapshot(ctx, snap); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := s.ListLiveSnapshotSizes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0].ID != "snap-1" || rows[0].SizeBytes != 100 {
		t.Errorf("rows[0] = %+v", rows[0])
	}
}
