package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodePermissionDenied, CodeOf(NewError(CodePermissionDenied, "no capability", "delete_post", "post-1")))
	assert.Equal(t, CodeExecutionError, CodeOf(errors.New("plain")))

	// Classification survives wrapping.
	wrapped := fmt.Errorf("execute: %w", NewError(CodeTimeout, "budget spent", "", ""))
	assert.Equal(t, CodeTimeout, CodeOf(wrapped))
	assert.True(t, IsTimeout(wrapped))
	assert.False(t, IsPermissionDenied(wrapped))
}

func TestEngineErrorMessage(t *testing.T) {
	err := NewError(CodePermissionDenied, "capability edit_posts required", "delete_post", "post-1")
	assert.Equal(t, "permission_denied: capability edit_posts required (action=delete_post, target=post-1)", err.Error())

	bare := NewError(CodeTimeout, "budget spent", "", "")
	assert.Equal(t, "timeout: budget spent", bare.Error())
}

// recordingSink captures audit events for assertions.
type recordingSink struct {
	events []recordedEvent
}

type recordedEvent struct {
	event    string
	severity Severity
	data     map[string]any
}

func (r *recordingSink) Log(_ context.Context, event string, severity Severity, data map[string]any) {
	r.events = append(r.events, recordedEvent{event, severity, data})
}

func TestHandlerFailure(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler(sink)

	cause := errors.New("post not found")
	classified := h.Failure(context.Background(), cause, "update_post", "post-9", map[string]any{
		"operation_id": "op-1",
	})

	require.NotNil(t, classified)
	assert.Equal(t, CodeExecutionError, classified.Code)
	assert.Equal(t, "update_post", classified.ActionType)
	assert.Equal(t, "post-9", classified.Target)

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, "engine_failure", ev.event)
	assert.Equal(t, SeverityError, ev.severity)
	assert.Equal(t, "execution_error", ev.data["code"])
	assert.Equal(t, "op-1", ev.data["operation_id"])
}

func TestHandlerFailureKeepsClassification(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler(sink)

	classified := h.Failure(context.Background(),
		NewError(CodeForbiddenFunction, `forbidden symbol "os.execute"`, "run_code", ""),
		"run_code", "", nil)

	assert.Equal(t, CodeForbiddenFunction, classified.Code)
}

func TestHandlerEventSeverities(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler(sink)

	h.Event(context.Background(), "action_executed", map[string]any{"target": "post-1"})
	h.Warn(context.Background(), "retention_sweep_failed", nil)

	require.Len(t, sink.events, 2)
	assert.Equal(t, SeverityInfo, sink.events[0].severity)
	assert.Equal(t, SeverityWarning, sink.events[1].severity)
}
