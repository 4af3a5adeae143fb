package session

import "sync"

// identities maps connection IDs to the username bound at authentication.
// The reverse mapping (username to connection) lives in the presence
// registry.
type identities struct {
	mu     sync.RWMutex
	byConn map[string]string
}

func newIdentities() *identities {
	return &identities{byConn: make(map[string]string)}
}

// Bind records that connID authenticated as username.
func (i *identities) Bind(connID, username string) {
	i.mu.Lock()
	i.byConn[connID] = username
	i.mu.Unlock()
}

// Unbind removes the binding for connID and returns the username it held.
func (i *identities) Unbind(connID string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	username, ok := i.byConn[connID]
	if ok {
		delete(i.byConn, connID)
	}
	return username, ok
}

// Username returns the identity bound to connID.
func (i *identities) Username(connID string) (string, bool) {
	i.mu.RLock()
	username, ok := i.byConn[connID]
	i.mu.RUnlock()
	return username, ok
}

// ConnIDs returns a snapshot of all authenticated connection IDs.
func (i *identities) ConnIDs() []string {
	i.mu.RLock()
	out := make([]string, 0, len(i.byConn))
	for connID := range i.byConn {
		out = append(out, connID)
	}
	i.mu.RUnlock()
	return out
}
