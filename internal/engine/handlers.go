package engine

import (
	"context"
	"fmt"

	"github.com/undolab/saferun/internal/action"
	"github.com/undolab/saferun/internal/content"
	"github.com/undolab/saferun/internal/state"
)

// handlerFunc applies one action's single logical effect to the
// content store. It returns the success payload and the effective
// target (the minted identifier for creates, the action's own target
// otherwise). A non-nil error means the effect did not complete.
type handlerFunc func(ctx context.Context, cs content.Store, act action.Action) (data state.Object, target string, err error)

// handlers is the static dispatch table. Every vocabulary entry has
// exactly one handler; package init verifies the table is complete.
var handlers = map[action.Type]handlerFunc{
	action.CreatePost:     handleCreatePost,
	action.UpdatePost:     handleUpdatePost,
	action.DeletePost:     handleDeletePost,
	action.SetPostMeta:    handleSetPostMeta,
	action.DeletePostMeta: handleDeletePostMeta,
	action.SetOption:      handleSetOption,
	action.DeleteOption:   handleDeleteOption,
	action.CreateWidget:   handleCreateWidget,
	action.UpdateWidget:   handleUpdateWidget,
	action.DeleteWidget:   handleDeleteWidget,
}

func handleCreatePost(ctx context.Context, cs content.Store, act action.Action) (state.Object, string, error) {
	target, err := cs.CreatePost(ctx, act.Params)
	if err != nil {
		return nil, "", err
	}
	return state.Object{"target": state.String(target)}, target, nil
}

func handleUpdatePost(ctx context.Context, cs content.Store, act action.Action) (state.Object, string, error) {
	if err := cs.UpdatePost(ctx, act.Target, act.Params); err != nil {
		return nil, "", err
	}
	return state.Object{"target": state.String(act.Target)}, act.Target, nil
}

func handleDeletePost(ctx context.Context, cs content.Store, act action.Action) (state.Object, string, error) {
	if err := cs.DeletePost(ctx, act.Target); err != nil {
		return nil, "", err
	}
	return state.Object{"target": state.String(act.Target)}, act.Target, nil
}

func handleSetPostMeta(ctx context.Context, cs content.Store, act action.Action) (state.Object, string, error) {
	key := act.StringParam("key")
	if err := cs.SetPostMeta(ctx, act.Target, key, act.Params["value"]); err != nil {
		return nil, "", err
	}
	return state.Object{
		"target": state.String(act.Target),
		"key":    state.String(key),
	}, act.Target, nil
}

func handleDeletePostMeta(ctx context.Context, cs content.Store, act action.Action) (state.Object, string, error) {
	key := act.StringParam("key")
	if err := cs.DeletePostMeta(ctx, act.Target, key); err != nil {
		return nil, "", err
	}
	return state.Object{
		"target": state.String(act.Target),
		"key":    state.String(key),
	}, act.Target, nil
}

func handleSetOption(ctx context.Context, cs content.Store, act action.Action) (state.Object, string, error) {
	key := act.StringParam("key")
	if key == "" {
		return nil, "", fmt.Errorf("option key must be a non-empty string")
	}
	if err := cs.SetOption(ctx, key, act.Params["value"]); err != nil {
		return nil, "", err
	}
	return state.Object{"key": state.String(key)}, act.Target, nil
}

func handleDeleteOption(ctx context.Context, cs content.Store, act action.Action) (state.Object, string, error) {
	key := act.StringParam("key")
	if key == "" {
		return nil, "", fmt.Errorf("option key must be a non-empty string")
	}
	if err := cs.DeleteOption(ctx, key); err != nil {
		return nil, "", err
	}
	return state.Object{"key": state.String(key)}, act.Target, nil
}

func handleCreateWidget(ctx context.Context, cs content.Store, act action.Action) (state.Object, string, error) {
	target, err := cs.CreateWidget(ctx, act.Params)
	if err != nil {
		return nil, "", err
	}
	return state.Object{"target": state.String(target)}, target, nil
}

func handleUpdateWidget(ctx context.Context, cs content.Store, act action.Action) (state.Object, string, error) {
	if err := cs.UpdateWidget(ctx, act.Target, act.Params); err != nil {
		return nil, "", err
	}
	return state.Object{"target": state.String(act.Target)}, act.Target, nil
}

func handleDeleteWidget(ctx context.Context, cs content.Store, act action.Action) (state.Object, string, error) {
	if err := cs.DeleteWidget(ctx, act.Target); err != nil {
		return nil, "", err
	}
	return state.Object{"target": state.String(act.Target)}, act.Target, nil
}

// capturers pairs each action type with its state capturer. Built in
// parallel with the handler table; package init verifies every handler
// has a capturer and vice versa.
var capturers = map[action.Type]Capturer{
	action.CreatePost:     entityCapturer{action.MutationCreate, readPost},
	action.UpdatePost:     entityCapturer{action.MutationUpdate, readPost},
	action.DeletePost:     entityCapturer{action.MutationDelete, readPost},
	action.SetPostMeta:    valueCapturer{action.MutationUpdate, metaKey, readMeta},
	action.DeletePostMeta: valueCapturer{action.MutationDelete, metaKey, readMeta},
	action.SetOption:      valueCapturer{action.MutationUpdate, metaKey, readOption},
	action.DeleteOption:   valueCapturer{action.MutationDelete, metaKey, readOption},
	action.CreateWidget:   entityCapturer{action.MutationCreate, readWidget},
	action.UpdateWidget:   entityCapturer{action.MutationUpdate, readWidget},
	action.DeleteWidget:   entityCapturer{action.MutationDelete, readWidget},
}
