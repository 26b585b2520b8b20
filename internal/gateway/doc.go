// ABOUTME: Package documentation for the gateway composition root
// ABOUTME: Describes wiring, the HTTP surface, and the websocket protocol

/*
Package gateway assembles one strand-gateway process and serves its HTTP
surface.

# Wiring

New builds the full object graph from configuration: the SQLite conversation
store, the pub/sub backplane, the websocket transport, the local execution
engine factory, the session registry, and the conversation manager that ties
them together. NewWithDeps lets callers substitute any backend, which is how
tests run against the in-memory store, bus, and transport.

# HTTP surface

	GET  /healthz                         liveness
	GET  /healthz/ready                   readiness plus local session count
	GET  /ws                              websocket endpoint
	POST /api/conversations               create a conversation
	GET  /api/conversations?user_id=U     list a user's conversations
	GET  /api/conversations/{id}          fetch one conversation
	DELETE /api/conversations/{id}        close its session and delete it
	POST /api/conversations/{id}/close    evict its session, keep metadata

# Websocket protocol

Messages are JSON. A connection first sends a join envelope:

	{"action": "join", "conversation_id": "...", "user_id": "..."}

which attaches it to the conversation, starting the agent loop locally
unless another process in the fleet already hosts it. Every subsequent
message is forwarded verbatim to the conversation's agent loop. All events
that loop emits, plus branch update notices, arrive as "oh_event" frames.

Errors that concern a single client are pushed back on that connection as
status updates of type "error"; they never terminate the connection.
*/
package gateway
