// Package action defines the fixed action vocabulary the engine
// dispatches on, plus the Action and Result types exchanged with
// callers.
package action

import (
	"fmt"

	"github.com/undolab/saferun/internal/state"
)

// Type identifies one action in the fixed vocabulary. Dispatch is a
// static lookup keyed by Type; unknown types are rejected before any
// side effect.
type Type string

// The full action vocabulary. Each mutates exactly one logical thing
// in the content store.
const (
	CreatePost     Type = "create_post"
	UpdatePost     Type = "update_post"
	DeletePost     Type = "delete_post"
	SetPostMeta    Type = "set_post_meta"
	DeletePostMeta Type = "delete_post_meta"
	SetOption      Type = "set_option"
	DeleteOption   Type = "delete_option"
	CreateWidget   Type = "create_widget"
	UpdateWidget   Type = "update_widget"
	DeleteWidget   Type = "delete_widget"
)

// Capability names required to perform actions. These mirror the
// content store's own permission model.
const (
	CapEditPosts     = "edit_posts"
	CapManageOptions = "manage_options"
)

// Spec describes one vocabulary entry: the params a handler requires
// and the capability the gate demands.
type Spec struct {
	Type           Type
	RequiredParams []string
	Capability     string
	// Mutation classifies the effect for before/after capture
	// ordering: creates have no before-state, deletes have no
	// after-state.
	Mutation Mutation
}

// Mutation classifies how an action changes its target.
type Mutation int

const (
	MutationCreate Mutation = iota
	MutationUpdate
	MutationDelete
)

// Vocabulary is the complete, closed action table in declaration
// order. Order is stable so policy validation errors and docs are
// deterministic.
var Vocabulary = []Spec{
	{CreatePost, []string{"title"}, CapEditPosts, MutationCreate},
	{UpdatePost, []string{"target"}, CapEditPosts, MutationUpdate},
	{DeletePost, []string{"target"}, CapEditPosts, MutationDelete},
	{SetPostMeta, []string{"target", "key", "value"}, CapEditPosts, MutationUpdate},
	{DeletePostMeta, []string{"target", "key"}, CapEditPosts, MutationDelete},
	{SetOption, []string{"key", "value"}, CapManageOptions, MutationUpdate},
	{DeleteOption, []string{"key"}, CapManageOptions, MutationDelete},
	{CreateWidget, []string{"kind"}, CapManageOptions, MutationCreate},
	{UpdateWidget, []string{"target"}, CapManageOptions, MutationUpdate},
	{DeleteWidget, []string{"target"}, CapManageOptions, MutationDelete},
}

// specIndex is built once from Vocabulary for O(1) lookup.
var specIndex = func() map[Type]Spec {
	m := make(map[Type]Spec, len(Vocabulary))
	for _, s := range Vocabulary {
		m[s.Type] = s
	}
	return m
}()

// Lookup returns the Spec for a type. ok is false for types outside
// the vocabulary.
func Lookup(t Type) (Spec, bool) {
	s, ok := specIndex[t]
	return s, ok
}

// Known reports whether t is in the vocabulary.
func Known(t Type) bool {
	_, ok := specIndex[t]
	return ok
}

// Action is a typed, parameterized instruction requesting a single
// effect. Immutable once constructed.
type Action struct {
	Type   Type
	Params state.Object
	// Target is the opaque identifier of the affected entity. Empty
	// for create actions (the target does not exist yet). For meta and
	// option actions this is the owning entity or key.
	Target string
}

// New constructs an Action. Params are copied so later caller
// mutation cannot change what the engine captured.
func New(t Type, params state.Object, target string) Action {
	copied := make(state.Object, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return Action{Type: t, Params: copied, Target: target}
}

// ValidateParams checks that every required parameter is present and
// non-null. Returns the name of the first missing parameter.
func (a Action) ValidateParams() error {
	spec, ok := Lookup(a.Type)
	if !ok {
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	for _, name := range spec.RequiredParams {
		if name == "target" {
			if a.Target == "" {
				return &MissingParamError{Action: a.Type, Param: "target"}
			}
			continue
		}
		v, present := a.Params[name]
		if !present || state.IsNull(v) {
			return &MissingParamError{Action: a.Type, Param: name}
		}
	}
	return nil
}

// MissingParamError reports a required parameter absent from an
// action.
type MissingParamError struct {
	Action Type
	Param  string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("action %s: required parameter %q missing", e.Action, e.Param)
}

// StringParam returns a string parameter by name, or "" if absent or
// not a string.
func (a Action) StringParam(name string) string {
	if s, ok := a.Params[name].(state.String); ok {
		return string(s)
	}
	return ""
}
