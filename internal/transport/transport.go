// ABOUTME: Transport adapter contract between client connections and the conversation manager
// ABOUTME: Defines send/broadcast/room operations and connection lifecycle handlers

package transport

import "errors"

// ErrConnectionNotFound is returned when sending to an unknown connection.
var ErrConnectionNotFound = errors.New("connection not found")

// Handlers are the callbacks a Transport invokes for connection lifecycle
// and inbound traffic. All fields are optional; nil handlers are skipped.
type Handlers struct {
	// OnConnect is invoked after a connection is established and assigned an ID.
	OnConnect func(connectionID string)

	// OnDisconnect is invoked exactly once when a connection goes away,
	// whether closed by the peer, the server, or a transport error.
	OnDisconnect func(connectionID string)

	// OnMessage is invoked for every inbound message on a connection.
	OnMessage func(connectionID string, payload []byte)
}

// Transport delivers events to client connections. Implementations own the
// wire framing; callers address connections by the opaque IDs the transport
// assigned at connect time and broadcast groups by room name.
type Transport interface {
	// Send emits one event to a single connection.
	Send(connectionID, event string, payload any) error

	// Broadcast emits one event to every connection in a room.
	Broadcast(room, event string, payload any) error

	// JoinRoom adds a connection to a room. Joining twice is a no-op.
	JoinRoom(connectionID, room string)

	// LeaveRoom removes a connection from a room.
	LeaveRoom(connectionID, room string)

	// Disconnect closes a connection. The transport still delivers the
	// OnDisconnect callback for it.
	Disconnect(connectionID string) error

	// SetHandlers registers lifecycle callbacks. Must be called before the
	// transport starts accepting connections.
	SetHandlers(h Handlers)
}
