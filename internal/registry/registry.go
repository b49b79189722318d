package registry

import "sync"

// Registry is the shared map from user id to that user's currently-active
// mailbox. At most one mailbox is reachable per user; registering again for
// the same id replaces the previous entry (last connect wins). All access
// goes through these methods; the map is never exposed.
//
// The registry is deliberately not built on the bus package: it needs
// replace-on-register and exactly-one-consumer semantics that a fan-out
// broker does not provide, and a mutex-guarded map keeps lookups on the
// delivery hot path free of control-loop round trips.
type Registry struct {
	mu      sync.RWMutex
	entries map[uint64]*Mailbox
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[uint64]*Mailbox)}
}

// Register makes mb the live mailbox for uid, replacing any previous entry.
// A replaced mailbox is abandoned, not drained or closed: its consumer keeps
// running until that connection tears itself down, it just receives nothing
// new through the registry.
func (r *Registry) Register(uid uint64, mb *Mailbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[uid] = mb
}

// Lookup returns the live mailbox for uid, if any.
func (r *Registry) Lookup(uid uint64) (*Mailbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mb, ok := r.entries[uid]
	return mb, ok
}

// Remove deletes the entry for uid only if it still maps to mb, so a replaced
// connection tearing down late cannot evict its successor's entry.
// Idempotent.
func (r *Registry) Remove(uid uint64, mb *Mailbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[uid]; ok && current == mb {
		delete(r.entries, uid)
	}
}

// Count reports the number of connected users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
