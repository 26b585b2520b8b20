// Package transport delivers events between client connections and the
// conversation manager.
//
// # Overview
//
// The Transport interface hides wire framing from the rest of the gateway:
// callers address individual connections by the opaque IDs assigned at
// connect time, and groups of connections by room name. The conversation
// manager registers Handlers to observe connect, disconnect, and inbound
// message events.
//
// # Implementations
//
//   - WSTransport: production implementation over gorilla/websocket. Each
//     connection gets a UUID, a buffered outbound queue drained by a write
//     pump, and ping/pong keepalive. Outbound events are JSON frames of the
//     form {"event": name, "data": payload}.
//   - MemoryTransport: test implementation that records sends and broadcasts
//     and lets tests drive the connection lifecycle directly.
//
// # Rooms
//
// Rooms is the shared membership table. One room exists per conversation
// (named "room:<conversation id>") and broadcast delivers to every member.
// A slow websocket client whose outbound queue fills up is disconnected
// rather than allowed to stall the room.
package transport
