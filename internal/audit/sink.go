package audit

import (
	"context"
	"log/slog"
)

// Severity grades an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Sink receives every audit event the engine emits: successful
// executions, classified failures, rollbacks, retention sweeps.
// Implementations must not block for long and must never panic.
type Sink interface {
	Log(ctx context.Context, event string, severity Severity, data map[string]any)
}

// SlogSink forwards audit events to a *slog.Logger.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps a structured logger as a Sink. A nil logger uses
// slog.Default().
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Log implements Sink.
func (s *SlogSink) Log(ctx context.Context, event string, severity Severity, data map[string]any) {
	attrs := make([]any, 0, len(data)*2+2)
	attrs = append(attrs, "event", event)
	for k, v := range data {
		attrs = append(attrs, k, v)
	}
	switch severity {
	case SeverityError:
		s.logger.ErrorContext(ctx, event, attrs...)
	case SeverityWarning:
		s.logger.WarnContext(ctx, event, attrs...)
	default:
		s.logger.InfoContext(ctx, event, attrs...)
	}
}

// Handler routes classified failures and notable events to the sink.
// It never raises: a failure to audit is logged-and-dropped rather
// than allowed to mask the original error.
type Handler struct {
	sink Sink
}

// NewHandler builds a Handler over a sink. A nil sink falls back to a
// default slog sink.
func NewHandler(sink Sink) *Handler {
	if sink == nil {
		sink = NewSlogSink(nil)
	}
	return &Handler{sink: sink}
}

// Failure classifies err, attaches the action payload, and forwards it
// to the sink. Returns the classified EngineError for the caller to
// surface; the original error is never re-raised.
func (h *Handler) Failure(ctx context.Context, err error, actionType, target string, payload map[string]any) *EngineError {
	classified := &EngineError{
		Code:       CodeOf(err),
		Message:    err.Error(),
		ActionType: actionType,
		Target:     target,
	}

	data := map[string]any{
		"code":        string(classified.Code),
		"message":     classified.Message,
		"action_type": actionType,
		"target":      target,
	}
	for k, v := range payload {
		data[k] = v
	}
	h.sink.Log(ctx, "engine_failure", SeverityError, data)

	return classified
}

// Event forwards an informational audit event.
func (h *Handler) Event(ctx context.Context, event string, data map[string]any) {
	h.sink.Log(ctx, event, SeverityInfo, data)
}

// Warn forwards a warning-grade audit event.
func (h *Handler) Warn(ctx context.Context, event string, data map[string]any) {
	h.sink.Log(ctx, event, SeverityWarning, data)
}
