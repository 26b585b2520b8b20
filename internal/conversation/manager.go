// ABOUTME: Conversation connection manager orchestrating registry, index, locator, reconciler
// ABOUTME: Maps transient client connections onto durable agent-loop sessions

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/strand-gateway/internal/bus"
	"github.com/2389/strand-gateway/internal/dedupe"
	"github.com/2389/strand-gateway/internal/session"
	"github.com/2389/strand-gateway/internal/transport"
)

// ErrNoOwner indicates a message could not be routed: the connection's
// conversation has no local session and no resolvable remote owner.
var ErrNoOwner = errors.New("no session owner for conversation")

// remoteDispatch is the backplane envelope for inbound messages whose
// session lives on another process. DispatchID makes the envelope safe
// against at-least-once redelivery by a real broker.
type remoteDispatch struct {
	DispatchID     string          `json:"dispatch_id"`
	ConversationID string          `json:"conversation_id"`
	ProcessID      string          `json:"process_id"`
	Message        json.RawMessage `json:"message"`
}

// Manager is the conversation connection manager: the only component the
// transport and request handlers talk to. It decides where a conversation's
// agent loop runs, multiplexes connections onto sessions, and fans session
// events back out to every observer.
type Manager struct {
	registry   *session.Registry
	index      *Index
	locator    *Locator
	reconciler *Reconciler
	transport  transport.Transport
	bus        bus.Bus
	dispatchCh string
	seen       *dedupe.Cache
	logger     *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc

	// convLocks serializes join/disconnect/close for one conversation id so
	// a retire cannot race a join mid-flight. No global lock: different
	// conversations never contend.
	convLocksMu sync.Mutex
	convLocks   map[string]*convLock
}

// convLock serializes connection lifecycle operations for one conversation.
type convLock struct {
	mu   sync.Mutex
	refs int
}

// lockConversation acquires the per-conversation lock and returns its release.
func (m *Manager) lockConversation(conversationID string) func() {
	m.convLocksMu.Lock()
	l, ok := m.convLocks[conversationID]
	if !ok {
		l = &convLock{}
		m.convLocks[conversationID] = l
	}
	l.refs++
	m.convLocksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.convLocksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.convLocks, conversationID)
		}
		m.convLocksMu.Unlock()
	}
}

// ManagerParams bundles the Manager's collaborators.
type ManagerParams struct {
	Registry   *session.Registry
	Index      *Index
	Locator    *Locator
	Reconciler *Reconciler
	Transport  transport.Transport
	Bus        bus.Bus

	// DispatchChannel is the backplane channel inbound messages for
	// remote-owned conversations are forwarded on.
	DispatchChannel string

	Logger *slog.Logger
}

// NewManager creates a manager. One Manager instance exists per process;
// all state is owned by it, so tests can run several independent managers.
func NewManager(p ManagerParams) *Manager {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dispatchCh := p.DispatchChannel
	if dispatchCh == "" {
		dispatchCh = "strand:dispatch"
	}
	return &Manager{
		registry:   p.Registry,
		index:      p.Index,
		locator:    p.Locator,
		reconciler: p.Reconciler,
		transport:  p.Transport,
		bus:        p.Bus,
		dispatchCh: dispatchCh,
		seen:       dedupe.New(5*time.Minute, 100_000),
		logger:     logger.With("component", "manager"),
		convLocks:  make(map[string]*convLock),
	}
}

// Start wires the locator into the backplane and begins accepting forwarded
// dispatches for locally hosted sessions. Idempotent.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.locator.Start(runCtx)

	forwarded, _ := m.bus.Subscribe(runCtx, m.dispatchCh)
	go m.dispatchLoop(runCtx, forwarded)
}

// Stop tears down all locally owned sessions, releases all connections, and
// unsubscribes from the backplane. Idempotent.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	cancel := m.cancel
	m.mu.Unlock()

	for _, conversationID := range m.registry.Running() {
		m.closeSession(ctx, conversationID)
	}
	m.locator.Stop()
	m.seen.Close()
	cancel()
}

// Join attaches a connection to a conversation. If another process already
// hosts the conversation's loop, the connection joins the room remote-backed
// and its inbound traffic is forwarded over the backplane; otherwise the
// loop is started (or reused) locally. Joining a conversation this process
// already hosts never re-initializes the engine.
func (m *Manager) Join(ctx context.Context, connectionID, conversationID string, params session.InitParams, userID string) error {
	release := m.lockConversation(conversationID)
	defer release()

	if !m.registry.IsRunning(conversationID) {
		elsewhere, err := m.locator.Locate(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("locating conversation %s: %w", conversationID, err)
		}
		if elsewhere {
			m.index.BindRemote(connectionID, conversationID)
			m.transport.JoinRoom(connectionID, RoomName(conversationID))
			m.logger.Info("joined remote-backed conversation",
				"connection_id", connectionID,
				"conversation_id", conversationID,
			)
			return nil
		}

		if _, err := m.registry.EnsureStarted(ctx, conversationID, params, userID); err != nil {
			return err
		}
	}

	m.index.Bind(connectionID, conversationID)
	m.transport.JoinRoom(connectionID, RoomName(conversationID))
	m.logger.Info("connection joined conversation",
		"connection_id", connectionID,
		"conversation_id", conversationID,
		"user_id", userID,
	)
	return nil
}

// SendToSession routes one inbound message from a connection to its
// conversation's agent loop: locally when this process hosts the session,
// over the backplane when another process does.
func (m *Manager) SendToSession(ctx context.Context, connectionID string, message json.RawMessage) error {
	conversationID, ok := m.index.ConversationOf(connectionID)
	if !ok {
		return session.ErrSessionNotFound
	}

	err := m.registry.Dispatch(ctx, conversationID, message)
	if err == nil {
		return nil
	}
	if !errors.Is(err, session.ErrSessionNotFound) {
		return fmt.Errorf("dispatching to %s: %w", conversationID, err)
	}

	if !m.index.IsRemote(connectionID) {
		return ErrNoOwner
	}

	payload, err := json.Marshal(remoteDispatch{
		DispatchID:     uuid.New().String(),
		ConversationID: conversationID,
		ProcessID:      m.locator.ProcessID(),
		Message:        message,
	})
	if err != nil {
		return fmt.Errorf("encoding forwarded dispatch: %w", err)
	}
	if err := m.bus.Publish(ctx, m.dispatchCh, payload); err != nil {
		return fmt.Errorf("forwarding dispatch for %s: %w", conversationID, err)
	}
	return nil
}

// dispatchLoop feeds forwarded messages from other processes into locally
// hosted sessions. Messages for conversations this process does not host
// are someone else's to handle.
func (m *Manager) dispatchLoop(ctx context.Context, forwarded <-chan []byte) {
	for payload := range forwarded {
		var fwd remoteDispatch
		if err := json.Unmarshal(payload, &fwd); err != nil {
			m.logger.Warn("malformed forwarded dispatch", "error", err)
			continue
		}
		if fwd.ProcessID == m.locator.ProcessID() {
			continue
		}
		if fwd.DispatchID != "" && m.seen.Seen(fwd.DispatchID) {
			continue
		}
		if !m.registry.IsRunning(fwd.ConversationID) {
			continue
		}
		if err := m.registry.Dispatch(ctx, fwd.ConversationID, json.RawMessage(fwd.Message)); err != nil {
			m.logger.Warn("forwarded dispatch failed",
				"conversation_id", fwd.ConversationID,
				"error", err)
		}
	}
}

// OnSessionEvent handles one event emitted by a local session's engine: the
// reconciler inspects it for branch changes, then the raw event is broadcast
// to the conversation's room verbatim. Reconciliation never suppresses the
// broadcast, and a broadcast failure never disturbs event processing.
func (m *Manager) OnSessionEvent(conversationID string, event session.Event) {
	ctx := context.Background()

	m.reconciler.Reconcile(ctx, conversationID, event)

	if err := m.transport.Broadcast(RoomName(conversationID), EventName, event.Payload); err != nil {
		m.logger.Warn("broadcasting session event failed",
			"conversation_id", conversationID,
			"error", err)
	}
}

// OnDisconnect releases a connection. When the last local connection of a
// conversation goes away its session is retired immediately. Disconnecting
// an unknown connection is a no-op.
func (m *Manager) OnDisconnect(connectionID string) {
	conversationID, ok := m.index.ConversationOf(connectionID)
	if !ok {
		return
	}

	release := m.lockConversation(conversationID)
	defer release()

	// Re-check under the lock: a force-close may have unbound us already
	if _, ok := m.index.Unbind(connectionID); !ok {
		return
	}
	m.transport.LeaveRoom(connectionID, RoomName(conversationID))

	m.logger.Info("connection left conversation",
		"connection_id", connectionID,
		"conversation_id", conversationID,
	)

	if len(m.index.ConnectionsOf(conversationID)) == 0 && m.registry.IsRunning(conversationID) {
		m.registry.Stop(context.Background(), conversationID)
	}
}

// CloseConversation force-closes a conversation: every bound connection is
// disconnected, then the local session (if any) is stopped. Used for
// administrative eviction.
func (m *Manager) CloseConversation(ctx context.Context, conversationID string) {
	m.closeSession(ctx, conversationID)
}

func (m *Manager) closeSession(ctx context.Context, conversationID string) {
	release := m.lockConversation(conversationID)
	defer release()

	// Unbind first: the transport's disconnect callback sees no binding and
	// treats the disconnect as already handled.
	for _, connectionID := range m.index.UnbindConversation(conversationID) {
		if err := m.transport.Disconnect(connectionID); err != nil {
			m.logger.Warn("disconnecting connection failed",
				"connection_id", connectionID,
				"error", err)
		}
	}
	m.registry.Stop(ctx, conversationID)
}
