// Package conversation is the conversation connection manager: it maps
// transient client connections onto durable agent-loop sessions and keeps
// every observer of a conversation seeing the same live state.
//
// # Overview
//
// Many connections (browser tabs, collaborators) attach to a small number of
// long-running agent loops, addressed by conversation id. The loop for a
// given conversation runs on exactly one process in the fleet (best effort),
// while connections land wherever the load balancer put them. This package
// decides where a loop runs, multiplexes traffic in both directions, and
// reconciles out-of-band workspace changes such as the working git branch.
//
// # Components
//
//   - Index: in-process bidirectional connection-to-conversation table.
//   - Locator: fleet-wide "is it running" query over the pub/sub backplane,
//     request/reply correlated by request id with a bounded wait.
//   - Reconciler: classifies command results as branch-changing, probes the
//     session's workspace branch, and persists + broadcasts changes.
//   - Manager: the composition root the transport and request handlers
//     talk to; owns the lifecycle of all of the above.
//
// # Join Flow
//
// On join, the Manager first checks the local session registry, then asks
// the fleet via the Locator. A conversation running on another process is
// joined "remote-backed": the connection enters the broadcast room and its
// inbound traffic is forwarded over the backplane. Otherwise the loop is
// started locally. Joins are serialized per conversation id, so concurrent
// joins for a new conversation start exactly one engine.
//
// # Known Race
//
// The locate protocol is a best-effort check, not a distributed lock: two
// processes can both time out waiting for replies and both start the same
// conversation. The window is tolerated; duplicate loops are reaped by
// fleet health checking outside this package.
//
// # Branch Reconciliation
//
// For every successful command result whose command text contains a
// branch-changing git verb (checkout, switch, merge, rebase, reset, branch),
// the Reconciler probes the live workspace branch. If it differs from the
// conversation's recorded branch, the metadata is updated and a status
// event is broadcast to the room:
//
//	{"status_update": true, "type": "info", "message": "<conversation id>", "selected_branch": "<branch>"}
//
// Probe, persistence, and broadcast failures all degrade to "no update this
// round"; they never interrupt the event stream.
package conversation
