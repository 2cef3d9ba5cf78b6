// Package audit classifies every failure the engine produces and
// forwards it, with the originating action payload attached, to the
// audit sink. The engine never lets an error kind go unrecorded.
package audit

import (
	"errors"
	"fmt"
)

// Code categorizes a failure. The set is closed: every error surfaced
// by the engine carries exactly one of these.
type Code string

const (
	// CodePermissionDenied: caller lacks the required capability.
	CodePermissionDenied Code = "permission_denied"

	// CodeOperationError: the tracker could not start an operation
	// record. Infrastructure failure; execution aborts before any
	// effect runs.
	CodeOperationError Code = "operation_error"

	// CodeUnknownActionType: no handler registered for the type.
	CodeUnknownActionType Code = "unknown_action_type"

	// CodeParameterError: a required parameter is missing.
	CodeParameterError Code = "parameter_error"

	// CodeExecutionError: the handler or driver failed unexpectedly.
	CodeExecutionError Code = "execution_error"

	// CodeSyntaxError: generated code is malformed.
	CodeSyntaxError Code = "syntax_error"

	// CodeForbiddenFunction: generated code references a denied
	// symbol.
	CodeForbiddenFunction Code = "forbidden_function_detected"

	// CodeTimeout: generated code exceeded its wall-clock budget.
	CodeTimeout Code = "timeout"

	// CodeRollbackFailed: snapshot missing, expired, or partially
	// un-appliable.
	CodeRollbackFailed Code = "rollback_failed"
)

// EngineError is the structured failure the engine reports. It keeps
// the original action payload so operators can diagnose what was being
// attempted.
type EngineError struct {
	Code       Code
	Message    string
	ActionType string
	Target     string
	Details    map[string]string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.ActionType != "" && e.Target != "" {
		return fmt.Sprintf("%s: %s (action=%s, target=%s)", e.Code, e.Message, e.ActionType, e.Target)
	}
	if e.ActionType != "" {
		return fmt.Sprintf("%s: %s (action=%s)", e.Code, e.Message, e.ActionType)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an EngineError.
func NewError(code Code, message, actionType, target string) *EngineError {
	return &EngineError{Code: code, Message: message, ActionType: actionType, Target: target}
}

// CodeOf extracts the classification from an error chain. Unclassified
// errors report CodeExecutionError: anything that escapes a handler
// without a taxonomy kind is by definition an unexpected execution
// failure.
func CodeOf(err error) Code {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return CodeExecutionError
}

// IsPermissionDenied reports whether err classifies as a capability
// failure. Uses errors.As to handle wrapped errors.
func IsPermissionDenied(err error) bool { return CodeOf(err) == CodePermissionDenied }

// IsTimeout reports whether err classifies as a generated-code
// timeout.
func IsTimeout(err error) bool { return CodeOf(err) == CodeTimeout }

// IsRollbackFailed reports whether err classifies as an unrecoverable
// rollback request.
func IsRollbackFailed(err error) bool { return CodeOf(err) == CodeRollbackFailed }
