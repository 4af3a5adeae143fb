// Package presence tracks which identities are online and which connection
// currently belongs to each. The registry is the single source of truth for
// live delivery targets; entries exist only in memory and only for the
// lifetime of a connection.
package presence

import "sync"

// Registry maps an authenticated username to its current connection ID.
// One live entry per identity; absence means offline. The registry is an
// explicit instance passed by reference to every component that needs it.
type Registry struct {
	mu     sync.RWMutex
	online map[string]string // username -> connection ID
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{online: make(map[string]string)}
}

// Register binds username to connID, atomically replacing any prior entry
// (last writer wins). It returns the connection ID that was displaced, or ""
// if the user was offline.
func (r *Registry) Register(username, connID string) (prior string) {
	r.mu.Lock()
	prior = r.online[username]
	r.online[username] = connID
	r.mu.Unlock()
	return prior
}

// Unregister removes the entry for username, but only if it still points at
// connID. This keeps a slow disconnect of an evicted connection from wiping
// out the entry of the connection that replaced it. Returns true if the
// entry was removed.
func (r *Registry) Unregister(username, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.online[username] != connID {
		return false
	}
	delete(r.online, username)
	return true
}

// Lookup returns the connection ID for username and whether it is online.
func (r *Registry) Lookup(username string) (string, bool) {
	r.mu.RLock()
	connID, ok := r.online[username]
	r.mu.RUnlock()
	return connID, ok
}

// Snapshot returns the set of usernames currently online.
func (r *Registry) Snapshot() map[string]struct{} {
	r.mu.RLock()
	out := make(map[string]struct{}, len(r.online))
	for name := range r.online {
		out[name] = struct{}{}
	}
	r.mu.RUnlock()
	return out
}

// Count returns the number of online identities.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.online)
	r.mu.RUnlock()
	return n
}

// Clear removes every entry. Called on shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.online = make(map[string]string)
	r.mu.Unlock()
}
