package lounge

import "sync"

// admissionKey identifies one workspace binding for mutual exclusion.
// Role is part of the key because a single config can host the same
// workspace name on both sides (a machine that is a CLIENT for one peer
// and a SERVER for another), and those two bindings are independent.
type admissionKey struct {
	Role string
	Name string
}

// Registry grants at most one concurrent lounge per (role, workspace
// name) pair, per spec.md §4.7/§5's admission mutex. It is safe for
// concurrent use by the accept loop.
type Registry struct {
	mu    sync.Mutex
	slots map[admissionKey]*sync.Mutex
}

// NewRegistry returns an empty admission registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[admissionKey]*sync.Mutex)}
}

func (r *Registry) slot(role, name string) *sync.Mutex {
	key := admissionKey{Role: role, Name: name}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.slots[key]
	if !ok {
		m = &sync.Mutex{}
		r.slots[key] = m
	}
	return m
}

// TryAdmit attempts to bind role/name exclusively, returning a release
// function on success. ok is false if another lounge already holds the
// workspace; the caller should reject the connection (CLI exit code 2
// further up the stack, for the client driver's own admission check).
func (r *Registry) TryAdmit(role, name string) (release func(), ok bool) {
	m := r.slot(role, name)
	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}
