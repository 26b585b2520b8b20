// ABOUTME: Execution engine contract and the event types the gateway inspects
// ABOUTME: Engines run the actual agent loop; the gateway treats them as black boxes

package session

import "context"

// InitParams carries the settings a conversation's agent loop is started with.
type InitParams struct {
	SelectedRepository string
	SelectedBranch     string

	// Extras holds engine-specific settings the gateway forwards verbatim.
	Extras map[string]any
}

// EventKind distinguishes the event categories the gateway inspects.
// Everything the gateway does not understand is EventOpaque and passes
// through to broadcast untouched.
type EventKind int

const (
	// EventOpaque is any engine event the gateway forwards verbatim.
	EventOpaque EventKind = iota

	// EventCommandResult is the outcome of a command the agent executed in
	// its sandbox. The branch reconciler inspects these.
	EventCommandResult
)

// Event is one structured event emitted by an execution engine.
// Payload is always the verbatim content broadcast to the conversation's
// room; Command and ExitCode are populated only for EventCommandResult.
type Event struct {
	Kind     EventKind
	Command  string
	ExitCode int
	Payload  any
}

// EventSink receives every event an engine emits, in emission order.
type EventSink func(conversationID string, event Event)

// Engine is the execution engine running one conversation's agent loop.
// The gateway consumes it as an opaque handle: start it, feed it messages,
// probe its workspace branch, stop it. Implementations emit their event
// stream through the EventSink supplied at construction.
type Engine interface {
	// Start initializes the agent loop. Called exactly once per engine.
	Start(ctx context.Context, params InitParams, userID string) error

	// Dispatch forwards one inbound client message to the loop.
	Dispatch(ctx context.Context, message any) error

	// WorkspaceBranch returns the current git branch of the engine's
	// workspace, or an error if it cannot be determined right now.
	WorkspaceBranch(ctx context.Context) (string, error)

	// Stop tears the loop down and releases its resources.
	Stop(ctx context.Context) error
}

// EngineFactory constructs an engine for a conversation. The engine must
// deliver every event it produces to sink.
type EngineFactory func(conversationID string, sink EventSink) Engine
