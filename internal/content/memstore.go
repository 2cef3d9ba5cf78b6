package content

import (
	"context"
	"fmt"
	"sync"

	"github.com/undolab/saferun/internal/state"
)

// MemStore is an in-memory Store. Safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	posts   map[string]state.Object
	meta    map[string]map[string]state.Value // post target -> key -> value
	options map[string]state.Value
	widgets map[string]state.Object
	nextID  int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		posts:   make(map[string]state.Object),
		meta:    make(map[string]map[string]state.Value),
		options: make(map[string]state.Value),
		widgets: make(map[string]state.Object),
	}
}

func (m *MemStore) newID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func cloneObject(o state.Object) state.Object {
	out := make(state.Object, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// CreatePost stores a new post and returns its generated target id.
func (m *MemStore) CreatePost(_ context.Context, fields state.Object) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := m.newID("post")
	m.posts[target] = cloneObject(fields)
	return target, nil
}

// GetPost returns a copy of the post's full field set.
func (m *MemStore) GetPost(_ context.Context, target string) (state.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fields, ok := m.posts[target]
	if !ok {
		return nil, fmt.Errorf("post %q: %w", target, ErrNotFound)
	}
	return cloneObject(fields), nil
}

// UpdatePost merges fields into an existing post.
func (m *MemStore) UpdatePost(_ context.Context, target string, fields state.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.posts[target]
	if !ok {
		return fmt.Errorf("post %q: %w", target, ErrNotFound)
	}
	for k, v := range fields {
		existing[k] = v
	}
	return nil
}

// DeletePost removes a post and its metadata.
func (m *MemStore) DeletePost(_ context.Context, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[target]; !ok {
		return fmt.Errorf("post %q: %w", target, ErrNotFound)
	}
	delete(m.posts, target)
	delete(m.meta, target)
	return nil
}

// RestorePost re-creates a post under its original id.
func (m *MemStore) RestorePost(_ context.Context, target string, fields state.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[target] = cloneObject(fields)
	return nil
}

// GetPostMeta returns one metadata value.
func (m *MemStore) GetPostMeta(_ context.Context, target, key string) (state.Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys, ok := m.meta[target]
	if !ok {
		return nil, fmt.Errorf("meta %q on post %q: %w", key, target, ErrNotFound)
	}
	v, ok := keys[key]
	if !ok {
		return nil, fmt.Errorf("meta %q on post %q: %w", key, target, ErrNotFound)
	}
	return v, nil
}

// SetPostMeta upserts one metadata value. The post must exist.
func (m *MemStore) SetPostMeta(_ context.Context, target, key string, value state.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[target]; !ok {
		return fmt.Errorf("post %q: %w", target, ErrNotFound)
	}
	if m.meta[target] == nil {
		m.meta[target] = make(map[string]state.Value)
	}
	m.meta[target][key] = value
	return nil
}

// DeletePostMeta removes one metadata value.
func (m *MemStore) DeletePostMeta(_ context.Context, target, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys, ok := m.meta[target]
	if !ok {
		return fmt.Errorf("meta %q on post %q: %w", key, target, ErrNotFound)
	}
	if _, ok := keys[key]; !ok {
		return fmt.Errorf("meta %q on post %q: %w", key, target, ErrNotFound)
	}
	delete(keys, key)
	return nil
}

// GetOption returns one configuration value.
func (m *MemStore) GetOption(_ context.Context, key string) (state.Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.options[key]
	if !ok {
		return nil, fmt.Errorf("option %q: %w", key, ErrNotFound)
	}
	return v, nil
}

// SetOption upserts one configuration value.
func (m *MemStore) SetOption(_ context.Context, key string, value state.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[key] = value
	return nil
}

// DeleteOption removes one configuration value.
func (m *MemStore) DeleteOption(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.options[key]; !ok {
		return fmt.Errorf("option %q: %w", key, ErrNotFound)
	}
	delete(m.options, key)
	return nil
}

// CreateWidget stores a new widget and returns its generated target id.
func (m *MemStore) CreateWidget(_ context.Context, fields state.Object) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := m.newID("widget")
	m.widgets[target] = cloneObject(fields)
	return target, nil
}

// GetWidget returns a copy of the widget's field set.
func (m *MemStore) GetWidget(_ context.Context, target string) (state.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fields, ok := m.widgets[target]
	if !ok {
		return nil, fmt.Errorf("widget %q: %w", target, ErrNotFound)
	}
	return cloneObject(fields), nil
}

// UpdateWidget merges fields into an existing widget.
func (m *MemStore) UpdateWidget(_ context.Context, target string, fields state.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.widgets[target]
	if !ok {
		return fmt.Errorf("widget %q: %w", target, ErrNotFound)
	}
	for k, v := range fields {
		existing[k] = v
	}
	return nil
}

// DeleteWidget removes a widget.
func (m *MemStore) DeleteWidget(_ context.Context, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.widgets[target]; !ok {
		return fmt.Errorf("widget %q: %w", target, ErrNotFound)
	}
	delete(m.widgets, target)
	return nil
}

// RestoreWidget re-creates a widget under its original id.
func (m *MemStore) RestoreWidget(_ context.Context, target string, fields state.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.widgets[target] = cloneObject(fields)
	return nil
}
