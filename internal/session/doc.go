// Package session owns the agent-loop sessions hosted by this process.
//
// # Overview
//
// A Session pairs one conversation with a running execution engine. The
// Registry tracks every session this process hosts, keyed by conversation
// id, and owns the start/stop lifecycle of the underlying engines.
//
// # Engine Contract
//
// The execution engine is a black box consumed through the Engine interface:
//
//   - Start(ctx, params, userID): initialize the agent loop
//   - Dispatch(ctx, message): forward one inbound client message
//   - WorkspaceBranch(ctx): current git branch of the engine's workspace
//   - Stop(ctx): tear the loop down
//
// Engines emit an asynchronous stream of events through the EventSink they
// are constructed with. The gateway inspects command-result events (for
// branch reconciliation) and forwards everything else verbatim.
//
// # Lifecycle Serialization
//
// The Registry serializes start/stop per conversation id with a keyed lock:
// N concurrent EnsureStarted calls for one new conversation invoke the
// engine's Start exactly once, and a Stop cannot interleave with a start in
// progress. Different conversations never contend.
//
// # Failure Semantics
//
// An engine Start failure propagates to the EnsureStarted caller and leaves
// no registry entry behind. Dispatch to a missing session returns
// ErrSessionNotFound, a recoverable signal for the client to rejoin.
package session
