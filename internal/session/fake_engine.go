// ABOUTME: Fake execution engine for tests
// ABOUTME: Records lifecycle calls and lets tests script branch probes and events

package session

import (
	"context"
	"sync"
)

// FakeEngine is a scriptable Engine for tests. The zero value started via
// NewFakeEngine succeeds at everything and reports branch "".
type FakeEngine struct {
	mu sync.Mutex

	conversationID string
	sink           EventSink

	// StartErr, DispatchErr, BranchErr configure failures.
	StartErr    error
	DispatchErr error
	BranchErr   error

	// Branch is returned by WorkspaceBranch when BranchErr is nil.
	Branch string

	startCalls  int
	stopCalls   int
	branchCalls int
	dispatched  []any
}

// NewFakeEngine creates a fake engine bound to a conversation and sink.
func NewFakeEngine(conversationID string, sink EventSink) *FakeEngine {
	return &FakeEngine{conversationID: conversationID, sink: sink}
}

// Start records the call and returns StartErr.
func (f *FakeEngine) Start(ctx context.Context, params InitParams, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.StartErr
}

// Dispatch records the message and returns DispatchErr.
func (f *FakeEngine) Dispatch(ctx context.Context, message any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DispatchErr != nil {
		return f.DispatchErr
	}
	f.dispatched = append(f.dispatched, message)
	return nil
}

// WorkspaceBranch returns the scripted branch or error.
func (f *FakeEngine) WorkspaceBranch(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branchCalls++
	if f.BranchErr != nil {
		return "", f.BranchErr
	}
	return f.Branch, nil
}

// Stop records the call.
func (f *FakeEngine) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

// Emit delivers an event through the engine's sink, as a real engine would.
func (f *FakeEngine) Emit(event Event) {
	f.sink(f.conversationID, event)
}

// SetBranch changes the branch later probes will report.
func (f *FakeEngine) SetBranch(branch string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Branch = branch
}

// StartCalls returns how many times Start ran.
func (f *FakeEngine) StartCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

// StopCalls returns how many times Stop ran.
func (f *FakeEngine) StopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

// BranchCalls returns how many times WorkspaceBranch ran.
func (f *FakeEngine) BranchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branchCalls
}

// Dispatched returns a copy of all dispatched messages.
func (f *FakeEngine) Dispatched() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.dispatched))
	copy(out, f.dispatched)
	return out
}
