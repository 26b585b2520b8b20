// ABOUTME: Room membership bookkeeping shared by transport implementations
// ABOUTME: Tracks which connections belong to which broadcast rooms

package transport

import "sync"

// Rooms tracks room membership for a transport. All methods are safe for
// concurrent use.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // room -> connection IDs
	joined  map[string]map[string]struct{} // connection ID -> rooms
}

// NewRooms creates an empty membership table.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join adds a connection to a room. Idempotent.
func (r *Rooms) Join(connectionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[room]; !ok {
		r.members[room] = make(map[string]struct{})
	}
	r.members[room][connectionID] = struct{}{}

	if _, ok := r.joined[connectionID]; !ok {
		r.joined[connectionID] = make(map[string]struct{})
	}
	r.joined[connectionID][room] = struct{}{}
}

// Leave removes a connection from a room. Idempotent.
func (r *Rooms) Leave(connectionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connectionID, room)
}

// LeaveAll removes a connection from every room it joined.
func (r *Rooms) LeaveAll(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.joined[connectionID] {
		r.leaveLocked(connectionID, room)
	}
}

func (r *Rooms) leaveLocked(connectionID, room string) {
	if conns, ok := r.members[room]; ok {
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(r.members, room)
		}
	}
	if rooms, ok := r.joined[connectionID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, connectionID)
		}
	}
}

// Members returns the connection IDs currently in a room.
func (r *Rooms) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]string, 0, len(r.members[room]))
	for id := range r.members[room] {
		conns = append(conns, id)
	}
	return conns
}

// Contains reports whether a connection is in a room.
func (r *Rooms) Contains(connectionID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.members[room][connectionID]
	return ok
}
