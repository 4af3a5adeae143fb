package session

import "sync"

// Rooms tracks which room each connection is joined to. A connection is in
// exactly one room at a time; joining a new room implicitly leaves the
// previous one.
type Rooms struct {
	mu     sync.RWMutex
	byConn map[string]string              // connID -> room
	byRoom map[string]map[string]struct{} // room -> set of connIDs
}

// NewRooms creates an empty membership table.
func NewRooms() *Rooms {
	return &Rooms{
		byConn: make(map[string]string),
		byRoom: make(map[string]map[string]struct{}),
	}
}

// Join moves a connection into a room and returns the room it left, or ""
// if it was not in any. Joining the room it is already in is a no-op that
// still returns that room.
func (r *Rooms) Join(connID, room string) (prev string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev = r.byConn[connID]
	if prev == room {
		return prev
	}
	if prev != "" {
		r.removeLocked(connID, prev)
	}

	r.byConn[connID] = room
	members, ok := r.byRoom[room]
	if !ok {
		members = make(map[string]struct{})
		r.byRoom[room] = members
	}
	members[connID] = struct{}{}
	return prev
}

// Leave removes a connection from its room and returns the room it was in,
// or "" if none.
func (r *Rooms) Leave(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.byConn[connID]
	if !ok {
		return ""
	}
	delete(r.byConn, connID)
	r.removeLocked(connID, room)
	return room
}

// removeLocked drops connID from a room's member set. Caller holds the lock.
func (r *Rooms) removeLocked(connID, room string) {
	if members, ok := r.byRoom[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.byRoom, room)
		}
	}
}

// Room returns the room a connection is joined to.
func (r *Rooms) Room(connID string) (string, bool) {
	r.mu.RLock()
	room, ok := r.byConn[connID]
	r.mu.RUnlock()
	return room, ok
}

// Members returns a snapshot of the connections joined to a room.
func (r *Rooms) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.byRoom[room]
	out := make([]string, 0, len(members))
	for connID := range members {
		out = append(out, connID)
	}
	return out
}
