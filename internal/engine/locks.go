package engine

import "sync"

// targetLocks serializes executions against the same target. Locks
// are created on demand and never discarded; the universe of targets
// an engine instance touches is small relative to its lifetime.
type targetLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTargetLocks() *targetLocks {
	return &targetLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the named target and returns the release function.
// An empty target (create actions - the entity does not exist yet)
// returns a no-op release.
func (t *targetLocks) acquire(target string) func() {
	if target == "" {
		return func() {}
	}

	t.mu.Lock()
	lock, ok := t.locks[target]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[target] = lock
	}
	t.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
