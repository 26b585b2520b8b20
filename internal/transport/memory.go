// ABOUTME: In-memory Transport implementation for tests
// ABOUTME: Records sends and broadcasts and lets tests drive connection lifecycle

package transport

import "sync"

// Sent records one delivered event for inspection by tests.
type Sent struct {
	ConnectionID string // empty for broadcasts
	Room         string // empty for direct sends
	Event        string
	Payload      any
}

// MemoryTransport implements Transport without any network. Tests open
// connections with Connect, push inbound traffic with Deliver, and inspect
// outbound traffic via Sends and Broadcasts.
type MemoryTransport struct {
	mu         sync.Mutex
	rooms      *Rooms
	handlers   Handlers
	connected  map[string]bool
	sends      []Sent
	broadcasts []Sent

	// BroadcastErr, when set, is returned by Broadcast. Used to exercise
	// swallow-and-log paths.
	BroadcastErr error
}

// NewMemoryTransport creates an empty in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		rooms:     NewRooms(),
		connected: make(map[string]bool),
	}
}

// SetHandlers registers lifecycle callbacks.
func (t *MemoryTransport) SetHandlers(h Handlers) {
	t.handlers = h
}

// Connect simulates a client connection with the given ID.
func (t *MemoryTransport) Connect(connectionID string) {
	t.mu.Lock()
	t.connected[connectionID] = true
	t.mu.Unlock()

	if t.handlers.OnConnect != nil {
		t.handlers.OnConnect(connectionID)
	}
}

// Close simulates the peer closing a connection.
func (t *MemoryTransport) Close(connectionID string) {
	t.mu.Lock()
	wasConnected := t.connected[connectionID]
	delete(t.connected, connectionID)
	t.mu.Unlock()
	t.rooms.LeaveAll(connectionID)

	if wasConnected && t.handlers.OnDisconnect != nil {
		t.handlers.OnDisconnect(connectionID)
	}
}

// Deliver simulates an inbound message from a connection.
func (t *MemoryTransport) Deliver(connectionID string, payload []byte) {
	if t.handlers.OnMessage != nil {
		t.handlers.OnMessage(connectionID, payload)
	}
}

// Send records a direct send.
func (t *MemoryTransport) Send(connectionID, event string, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected[connectionID] {
		return ErrConnectionNotFound
	}
	t.sends = append(t.sends, Sent{ConnectionID: connectionID, Event: event, Payload: payload})
	return nil
}

// Broadcast records a room broadcast.
func (t *MemoryTransport) Broadcast(room, event string, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.BroadcastErr != nil {
		return t.BroadcastErr
	}
	t.broadcasts = append(t.broadcasts, Sent{Room: room, Event: event, Payload: payload})
	return nil
}

// JoinRoom adds a connection to a room.
func (t *MemoryTransport) JoinRoom(connectionID, room string) {
	t.rooms.Join(connectionID, room)
}

// LeaveRoom removes a connection from a room.
func (t *MemoryTransport) LeaveRoom(connectionID, room string) {
	t.rooms.Leave(connectionID, room)
}

// Disconnect closes a connection server-side, firing OnDisconnect.
func (t *MemoryTransport) Disconnect(connectionID string) error {
	t.mu.Lock()
	wasConnected := t.connected[connectionID]
	delete(t.connected, connectionID)
	t.mu.Unlock()
	t.rooms.LeaveAll(connectionID)

	if !wasConnected {
		return ErrConnectionNotFound
	}
	if t.handlers.OnDisconnect != nil {
		t.handlers.OnDisconnect(connectionID)
	}
	return nil
}

// Rooms exposes room membership for assertions.
func (t *MemoryTransport) Rooms() *Rooms {
	return t.rooms
}

// Sends returns a copy of all direct sends so far.
func (t *MemoryTransport) Sends() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Sent, len(t.sends))
	copy(out, t.sends)
	return out
}

// Broadcasts returns a copy of all broadcasts so far.
func (t *MemoryTransport) Broadcasts() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Sent, len(t.broadcasts))
	copy(out, t.broadcasts)
	return out
}
