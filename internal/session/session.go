// ABOUTME: Session state for one locally hosted agent loop
// ABOUTME: Pairs the engine handle with the last branch observed in its workspace

package session

import (
	"context"
	"sync"
	"time"
)

// Session is the local, process-resident handle to a running execution
// engine for one conversation. Exactly one process in the fleet holds a
// Session for a given conversation at a time (best effort; see the locator's
// documented race).
type Session struct {
	ConversationID string
	StartedAt      time.Time

	engine Engine

	mu             sync.Mutex
	observedBranch string // last branch seen by WorkspaceBranch, may be stale
}

// Engine returns the underlying execution engine handle.
func (s *Session) Engine() Engine {
	return s.engine
}

// WorkspaceBranch probes the engine for its current workspace branch and
// caches the result. The cache is not consulted on failure; a probe error
// simply yields no new information.
func (s *Session) WorkspaceBranch(ctx context.Context) (string, error) {
	branch, err := s.engine.WorkspaceBranch(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.observedBranch = branch
	s.mu.Unlock()
	return branch, nil
}

// ObservedBranch returns the last branch a probe saw, or "" if none yet.
func (s *Session) ObservedBranch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observedBranch
}
