package sandbox

import (
	"context"
	"log"
	"sync"
)

// Tracker maintains the set of currently-active sandboxes and guarantees
// each is released exactly once. All mutations of the active set go
// through the tracker's mutex, so the engine's normal flow and the
// process exit handlers can call into it concurrently.
type Tracker struct {
	provider Provider
	active   map[string]*Handle
	mu       sync.Mutex
}

// NewTracker creates a tracker that releases sandboxes through the given
// provider.
func NewTracker(provider Provider) *Tracker {
	return &Tracker{
		provider: provider,
		active:   make(map[string]*Handle),
	}
}

// Register adds a handle to the active set. Registering the same handle
// twice is a no-op.
func (t *Tracker) Register(h *Handle) {
	if h == nil || h.ID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.active[h.ID]; exists {
		log.Printf("[tracker] sandbox %s already registered, ignoring", shortID(h.ID))
		return
	}
	t.active[h.ID] = h
}

// Release stops and removes the sandbox and drops it from the active set.
// Releasing an unknown or already-released handle logs and returns nil;
// provider stop/remove errors are logged, never propagated.
func (t *Tracker) Release(ctx context.Context, h *Handle) error {
	if h == nil || h.ID == "" {
		return nil
	}

	t.mu.Lock()
	_, known := t.active[h.ID]
	delete(t.active, h.ID)
	t.mu.Unlock()

	if !known {
		log.Printf("[tracker] sandbox %s not in active set, skipping release", shortID(h.ID))
		return nil
	}

	if err := t.provider.Stop(ctx, h); err != nil {
		log.Printf("[tracker] stop sandbox %s: %v", shortID(h.ID), err)
	}
	if err := t.provider.Remove(ctx, h); err != nil {
		log.Printf("[tracker] remove sandbox %s: %v", shortID(h.ID), err)
	}

	return nil
}

// ReleaseAll releases every sandbox in a snapshot of the active set.
// Per-handle failures are reported and never abort the loop; a second
// call in a row is a no-op.
func (t *Tracker) ReleaseAll(ctx context.Context) {
	t.mu.Lock()
	snapshot := make([]*Handle, 0, len(t.active))
	for _, h := range t.active {
		snapshot = append(snapshot, h)
	}
	t.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	log.Printf("[tracker] releasing %d active sandbox(es)", len(snapshot))
	for _, h := range snapshot {
		if err := t.Release(ctx, h); err != nil {
			log.Printf("[tracker] release sandbox %s: %v", shortID(h.ID), err)
		}
	}
}

// Active returns the number of sandboxes currently registered.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// ActiveForTask returns the handle registered for the given task id, or
// nil if none is live. At most one sandbox is live per task.
func (t *Tracker) ActiveForTask(taskID string) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range t.active {
		if h.TaskID == taskID {
			return h
		}
	}
	return nil
}
