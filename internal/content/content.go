// Package content defines the content-store collaborator boundary:
// the create/read/update/delete primitives the engine's effects are
// applied to. The concrete driver (a CMS, a headless API, a database)
// lives outside this module; MemStore is the in-process reference
// implementation used by tests and the CLI demo mode.
package content

import (
	"context"
	"errors"

	"github.com/undolab/saferun/internal/state"
)

// ErrNotFound is returned when a target, meta key, option, or widget
// does not exist.
var ErrNotFound = errors.New("content: not found")

// Store is the driver surface the engine mutates. All identifiers are
// opaque to the engine.
//
// Restore* calls re-create an entity under its original identifier.
// They exist for rollback: the inverse of a delete must bring the
// entity back with the same id so later snapshots referring to it
// still apply.
type Store interface {
	// Posts (content entities).
	CreatePost(ctx context.Context, fields state.Object) (target string, err error)
	GetPost(ctx context.Context, target string) (state.Object, error)
	UpdatePost(ctx context.Context, target string, fields state.Object) error
	DeletePost(ctx context.Context, target string) error
	RestorePost(ctx context.Context, target string, fields state.Object) error

	// Post metadata, keyed by owning post target + key.
	GetPostMeta(ctx context.Context, target, key string) (state.Value, error)
	SetPostMeta(ctx context.Context, target, key string, value state.Value) error
	DeletePostMeta(ctx context.Context, target, key string) error

	// Configuration values.
	GetOption(ctx context.Context, key string) (state.Value, error)
	SetOption(ctx context.Context, key string, value state.Value) error
	DeleteOption(ctx context.Context, key string) error

	// Builder widgets.
	CreateWidget(ctx context.Context, fields state.Object) (target string, err error)
	GetWidget(ctx context.Context, target string) (state.Object, error)
	UpdateWidget(ctx context.Context, target string, fields state.Object) error
	DeleteWidget(ctx context.Context, target string) error
	RestoreWidget(ctx context.Context, target string, fields state.Object) error
}
