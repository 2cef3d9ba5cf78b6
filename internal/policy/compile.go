package policy

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/undolab/saferun/internal/action"
)

// knownCapabilities is the closed set of capability names a policy may
// reference.
var knownCapabilities = map[string]bool{
	action.CapEditPosts:     true,
	action.CapManageOptions: true,
}

// Compile parses a CUE value into a Policy. The value should be the
// policy struct itself (the `policy` field of a policy file).
func Compile(v cue.Value) (*Policy, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "policy", Message: "policy struct is required"}
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	p := &Policy{
		Capabilities: make(map[action.Type]string),
	}

	allowed, err := parseStringList(v, "allowed_actions", true)
	if err != nil {
		return nil, err
	}
	for _, name := range allowed {
		t := action.Type(name)
		if !action.Known(t) {
			return nil, &CompileError{
				Field:   "allowed_actions",
				Message: fmt.Sprintf("%q is not in the action vocabulary", name),
				Pos:     v.Pos(),
			}
		}
		p.AllowedActions = append(p.AllowedActions, t)
	}

	if err := parseCapabilities(v, p); err != nil {
		return nil, err
	}

	p.ForbiddenSymbols, err = parseStringList(v, "forbidden_symbols", true)
	if err != nil {
		return nil, err
	}
	for _, sym := range p.ForbiddenSymbols {
		if strings.TrimSpace(sym) == "" {
			return nil, &CompileError{
				Field:   "forbidden_symbols",
				Message: "empty symbol entry",
				Pos:     v.Pos(),
			}
		}
	}

	p.CodeTimeoutSeconds, err = parsePositiveInt(v, "code_timeout_seconds")
	if err != nil {
		return nil, err
	}
	p.SnapshotRetentionDays, err = parsePositiveInt(v, "snapshot_retention_days")
	if err != nil {
		return nil, err
	}
	p.SnapshotMaxSizeMB, err = parsePositiveInt(v, "snapshot_max_size_mb")
	if err != nil {
		return nil, err
	}

	// Every allowed action must carry a capability mapping, otherwise
	// the gate could not answer for it.
	allowedSet := make(map[action.Type]bool, len(p.AllowedActions))
	for _, t := range p.AllowedActions {
		allowedSet[t] = true
		if _, ok := p.Capabilities[t]; !ok {
			return nil, &CompileError{
				Field:   "capabilities",
				Message: fmt.Sprintf("allowed action %q has no capability mapping", t),
				Pos:     v.Pos(),
			}
		}
	}

	// And the converse: a capability entry for an action outside
	// allowed_actions would let the gate authorize what the policy
	// says is not permitted.
	for t := range p.Capabilities {
		if !allowedSet[t] {
			return nil, &CompileError{
				Field:   "capabilities",
				Message: fmt.Sprintf("capability mapping for %q, which is not in allowed_actions", t),
				Pos:     v.Pos(),
			}
		}
	}

	return p, nil
}

// parseCapabilities reads the capabilities struct: action type ->
// capability name.
func parseCapabilities(v cue.Value, p *Policy) error {
	capsVal := v.LookupPath(cue.ParsePath("capabilities"))
	if !capsVal.Exists() {
		return &CompileError{Field: "capabilities", Message: "capabilities is required", Pos: v.Pos()}
	}

	iter, err := capsVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		t := action.Type(name)
		if !action.Known(t) {
			return &CompileError{
				Field:   "capabilities",
				Message: fmt.Sprintf("%q is not in the action vocabulary", name),
				Pos:     iter.Value().Pos(),
			}
		}
		capability, err := iter.Value().String()
		if err != nil {
			return formatCUEError(err)
		}
		if !knownCapabilities[capability] {
			return &CompileError{
				Field:   "capabilities",
				Message: fmt.Sprintf("unknown capability %q for action %q", capability, name),
				Pos:     iter.Value().Pos(),
			}
		}
		p.Capabilities[t] = capability
	}

	return nil
}

// parseStringList reads a list of strings at the given path.
func parseStringList(v cue.Value, field string, required bool) ([]string, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		if required {
			return nil, &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
		}
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// parsePositiveInt reads an int at the given path and requires it to
// be positive.
func parsePositiveInt(v cue.Value, field string) (int, error) {
	intVal := v.LookupPath(cue.ParsePath(field))
	if !intVal.Exists() {
		return 0, &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	n, err := intVal.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	if n <= 0 {
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("must be positive, got %d", n),
			Pos:     intVal.Pos(),
		}
	}
	return int(n), nil
}

// CompileError reports a policy compilation failure with position
// information when available.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	return &CompileError{
		Field:   strings.Join(first.Path(), "."),
		Message: first.Error(),
		Pos:     first.Position(),
	}
}
