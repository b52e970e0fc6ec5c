// Package idlock provides per-object-id serialization for the Named
// Object Cache (§4.2 "every NOC operation on a given object id is
// serialized against every other operation on that same id, but
// operations on different ids never block each other").
package idlock

import (
	"sync"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

type entry struct {
	mu       sync.Mutex
	refcount int
}

// Registry hands out one mutex per object id, reference-counted so the
// map entry is evicted once nobody holds it. The map itself is guarded by
// a short mutex (held only long enough to look up or create an entry),
// never across the caller's actual critical section.
type Registry struct {
	mu      sync.Mutex
	entries map[objmodel.ObjectId]*entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[objmodel.ObjectId]*entry)}
}

// Acquire locks id's per-object mutex, blocking until it's free. Release
// must be called exactly once to match.
func (r *Registry) Acquire(id objmodel.ObjectId) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		e = &entry{}
		r.entries[id] = e
	}
	e.refcount++
	r.mu.Unlock()

	e.mu.Lock()
}

// Release unlocks id's per-object mutex and evicts the entry if this was
// its last holder.
func (r *Registry) Release(id objmodel.ObjectId) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.refcount--
	if e.refcount <= 0 {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	e.mu.Unlock()
}

// With runs fn while holding id's lock, guaranteeing Release even on panic.
func (r *Registry) With(id objmodel.ObjectId, fn func()) {
	r.Acquire(id)
	defer r.Release(id)
	fn()
}
