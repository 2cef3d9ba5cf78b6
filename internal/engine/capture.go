package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/undolab/saferun/internal/action"
	"github.com/undolab/saferun/internal/content"
	"github.com/undolab/saferun/internal/state"
)

// Capturer captures the serializable before/after states for one
// action type. Implementations preserve the create/delete asymmetry:
// a create's Before and a delete's After return Null.
//
// Before runs prior to the handler for update/delete actions. After
// runs following a successful handler and receives the handler result
// so create capturers can read the minted target id.
type Capturer interface {
	Before(ctx context.Context, cs content.Store, act action.Action) (state.Value, error)
	After(ctx context.Context, cs content.Store, act action.Action, res action.Result) (state.Value, error)
}

// entityReader abstracts "fetch the full field set" over posts and
// widgets so one capturer implementation serves both entity families.
type entityReader func(ctx context.Context, cs content.Store, target string) (state.Object, error)

// entityCapturer captures whole-entity states: full field set before
// (or Null for creates), full field set after (or Null for deletes).
type entityCapturer struct {
	mutation action.Mutation
	read     entityReader
}

func (c entityCapturer) Before(ctx context.Context, cs content.Store, act action.Action) (state.Value, error) {
	if c.mutation == action.MutationCreate {
		return state.Null{}, nil
	}
	fields, err := c.read(ctx, cs, act.Target)
	if err != nil {
		return nil, fmt.Errorf("capture before: %w", err)
	}
	return fields, nil
}

func (c entityCapturer) After(ctx context.Context, cs content.Store, act action.Action, res action.Result) (state.Value, error) {
	if c.mutation == action.MutationDelete {
		return state.Null{}, nil
	}
	target := act.Target
	if c.mutation == action.MutationCreate {
		target = res.Target
	}
	fields, err := c.read(ctx, cs, target)
	if err != nil {
		return nil, fmt.Errorf("capture after: %w", err)
	}
	return fields, nil
}

// valueReader abstracts "fetch one value" over post meta and options.
type valueReader func(ctx context.Context, cs content.Store, act action.Action) (state.Value, error)

// valueCapturer captures single-value states as {key, value} objects.
// A set over a previously absent value captures Null before, which is
// what makes the inverse a delete.
type valueCapturer struct {
	mutation action.Mutation
	key      func(act action.Action) string
	read     valueReader
}

func (c valueCapturer) Before(ctx context.Context, cs content.Store, act action.Action) (state.Value, error) {
	value, err := c.read(ctx, cs, act)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return state.Null{}, nil
		}
		return nil, fmt.Errorf("capture before: %w", err)
	}
	return state.Object{
		"key":   state.String(c.key(act)),
		"value": value,
	}, nil
}

func (c valueCapturer) After(ctx context.Context, cs content.Store, act action.Action, _ action.Result) (state.Value, error) {
	if c.mutation == action.MutationDelete {
		return state.Null{}, nil
	}
	value, err := c.read(ctx, cs, act)
	if err != nil {
		return nil, fmt.Errorf("capture after: %w", err)
	}
	return state.Object{
		"key":   state.String(c.key(act)),
		"value": value,
	}, nil
}

func readPost(ctx context.Context, cs content.Store, target string) (state.Object, error) {
	return cs.GetPost(ctx, target)
}

func readWidget(ctx context.Context, cs content.Store, target string) (state.Object, error) {
	return cs.GetWidget(ctx, target)
}

func readMeta(ctx context.Context, cs content.Store, act action.Action) (state.Value, error) {
	return cs.GetPostMeta(ctx, act.Target, act.StringParam("key"))
}

func readOption(ctx context.Context, cs content.Store, act action.Action) (state.Value, error) {
	return cs.GetOption(ctx, act.StringParam("key"))
}

func metaKey(act action.Action) string { return act.StringParam("key") }
