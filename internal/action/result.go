package action

import "github.com/undolab/saferun/internal/state"

// Result is what a handler (and ultimately the engine) returns to the
// caller for one execution attempt.
type Result struct {
	Success bool `json:"success"`
	// Data carries whatever identifiers or values the handler
	// produced (created target id, permalink, previous value).
	Data state.Object `json:"data,omitempty"`
	// Message is a human-readable success description.
	Message string `json:"message,omitempty"`
	// Error is a human-readable failure description; empty on
	// success.
	Error string `json:"error,omitempty"`
	// Code classifies the failure (permission_denied,
	// parameter_error, ...); empty on success.
	Code string `json:"code,omitempty"`

	// OperationID is set whenever a tracked operation was created,
	// success or failure.
	OperationID string `json:"operation_id,omitempty"`
	// SnapshotID is set only for successful executions that produced
	// a reversible record.
	SnapshotID string `json:"snapshot_id,omitempty"`
	// Target is the id of the affected entity; for creates this is
	// the newly minted id.
	Target string `json:"target,omitempty"`
}

// OK builds a success result.
func OK(data state.Object, message string) Result {
	return Result{Success: true, Data: data, Message: message}
}

// Failed builds a failure result with a classification code.
func Failed(code, errMsg string) Result {
	return Result{Success: false, Code: code, Error: errMsg}
}
