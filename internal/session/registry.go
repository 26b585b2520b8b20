// ABOUTME: Registry of agent-loop sessions owned by this process
// ABOUTME: Serializes start/stop per conversation so duplicate starts collapse into one

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrSessionNotFound indicates no local session exists for the conversation.
var ErrSessionNotFound = errors.New("session not found")

// Registry owns the agent-loop sessions running in this process, keyed by
// conversation id. All lifecycle transitions for one conversation are
// serialized through a per-conversation lock; operations on different
// conversations do not contend.
type Registry struct {
	factory EngineFactory
	sink    EventSink
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	locksMu sync.Mutex
	locks   map[string]*convLock
}

// convLock serializes lifecycle operations for one conversation id.
type convLock struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry creates a Registry. Every engine constructed by factory emits
// its events to sink.
func NewRegistry(factory EngineFactory, sink EventSink, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory:  factory,
		sink:     sink,
		logger:   logger.With("component", "session_registry"),
		sessions: make(map[string]*Session),
		locks:    make(map[string]*convLock),
	}
}

// lockConversation acquires the per-conversation lock and returns its release.
func (r *Registry) lockConversation(conversationID string) func() {
	r.locksMu.Lock()
	l, ok := r.locks[conversationID]
	if !ok {
		l = &convLock{}
		r.locks[conversationID] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, conversationID)
		}
		r.locksMu.Unlock()
	}
}

// EnsureStarted returns the existing session for the conversation, or starts
// a new engine and registers one. Concurrent calls for the same conversation
// collapse into a single engine start. An engine start failure leaves no
// partial entry behind.
func (r *Registry) EnsureStarted(ctx context.Context, conversationID string, params InitParams, userID string) (*Session, error) {
	release := r.lockConversation(conversationID)
	defer release()

	r.mu.RLock()
	existing, ok := r.sessions[conversationID]
	r.mu.RUnlock()
	if ok {
		return existing, nil
	}

	engine := r.factory(conversationID, r.sink)
	if err := engine.Start(ctx, params, userID); err != nil {
		return nil, fmt.Errorf("starting engine for %s: %w", conversationID, err)
	}

	s := &Session{
		ConversationID: conversationID,
		StartedAt:      time.Now(),
		engine:         engine,
	}

	r.mu.Lock()
	r.sessions[conversationID] = s
	r.mu.Unlock()

	r.logger.Info("session started",
		"conversation_id", conversationID,
		"user_id", userID,
	)
	return s, nil
}

// Get returns the local session for a conversation, if any.
func (r *Registry) Get(conversationID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[conversationID]
	return s, ok
}

// IsRunning reports whether this process hosts a session for the conversation.
func (r *Registry) IsRunning(conversationID string) bool {
	_, ok := r.Get(conversationID)
	return ok
}

// Running returns the conversation ids of all locally hosted sessions.
func (r *Registry) Running() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Dispatch forwards one inbound message to the conversation's engine.
// Returns ErrSessionNotFound if no local session exists.
func (r *Registry) Dispatch(ctx context.Context, conversationID string, message any) error {
	s, ok := r.Get(conversationID)
	if !ok {
		return ErrSessionNotFound
	}
	return s.engine.Dispatch(ctx, message)
}

// Stop tears down the conversation's engine and removes the session.
// Stopping a conversation with no session is a no-op.
func (r *Registry) Stop(ctx context.Context, conversationID string) {
	release := r.lockConversation(conversationID)
	defer release()

	r.mu.Lock()
	s, ok := r.sessions[conversationID]
	delete(r.sessions, conversationID)
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := s.engine.Stop(ctx); err != nil {
		r.logger.Warn("engine stop failed",
			"conversation_id", conversationID,
			"error", err,
		)
	}

	r.logger.Info("session stopped", "conversation_id", conversationID)
}

// StopAll tears down every locally hosted session.
func (r *Registry) StopAll(ctx context.Context) {
	for _, id := range r.Running() {
		r.Stop(ctx, id)
	}
}
