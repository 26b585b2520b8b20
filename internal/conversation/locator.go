// ABOUTME: Fleet locator answering "is this conversation running somewhere else"
// ABOUTME: Request/reply correlation over the pub/sub backplane with a bounded wait

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/strand-gateway/internal/bus"
)

// loopStatus values carried in locate replies.
const statusAlive = "alive"

// locateRequest is published on the control channel to ask the fleet
// whether any process hosts a conversation's agent loop.
type locateRequest struct {
	RequestID      string `json:"request_id"`
	ConversationID string `json:"conversation_id"`
	ProcessID      string `json:"process_id"`
	ReplyChannel   string `json:"reply_channel"`
}

// locateReply is published on the requester's reply channel by any process
// hosting the conversation.
type locateReply struct {
	RequestID      string `json:"request_id"`
	ConversationID string `json:"conversation_id"`
	ProcessID      string `json:"process_id"`
	Status         string `json:"status"`
}

// RunningReporter answers whether this process hosts a conversation's loop.
// Implemented by the session Registry.
type RunningReporter interface {
	IsRunning(conversationID string) bool
}

// Locator implements the fleet-wide "is it running" check over the
// backplane. Each process subscribes to a well-known control channel and
// answers locate requests for conversations it hosts. A locate call waits a
// bounded time for the first alive reply; no reply within the bound means
// "not running anywhere".
//
// This is a best-effort check, not a lock: two processes that both time out
// can both start the same conversation. Downstream health checking treats
// the loser's session as redundant; the window is documented rather than
// closed here.
type Locator struct {
	bus            bus.Bus
	controlChannel string
	processID      string
	timeout        time.Duration
	running        RunningReporter
	logger         *slog.Logger

	mu      sync.Mutex
	pending map[string]chan locateReply
	started bool
	cancel  context.CancelFunc
}

// NewLocator creates a locator. timeout bounds every Locate call; it should
// be a small multiple of the backplane's round-trip latency.
func NewLocator(b bus.Bus, controlChannel string, timeout time.Duration, running RunningReporter, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		bus:            b,
		controlChannel: controlChannel,
		processID:      uuid.New().String(),
		timeout:        timeout,
		running:        running,
		logger:         logger.With("component", "locator"),
		pending:        make(map[string]chan locateReply),
	}
}

// ProcessID identifies this process on the backplane.
func (l *Locator) ProcessID() string {
	return l.processID
}

func (l *Locator) replyChannel() string {
	return l.controlChannel + ":reply:" + l.processID
}

// Start subscribes to the control and reply channels and begins answering
// locate requests. Idempotent.
func (l *Locator) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()

	control, _ := l.bus.Subscribe(runCtx, l.controlChannel)
	replies, _ := l.bus.Subscribe(runCtx, l.replyChannel())

	go l.controlLoop(runCtx, control)
	go l.replyLoop(replies)
}

// Stop unsubscribes from the backplane. Idempotent.
func (l *Locator) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return
	}
	l.started = false
	l.cancel()
}

// controlLoop answers locate requests for conversations this process hosts.
func (l *Locator) controlLoop(ctx context.Context, control <-chan []byte) {
	for payload := range control {
		var req locateRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			l.logger.Warn("malformed locate request", "error", err)
			continue
		}

		// Our own requests are about other processes
		if req.ProcessID == l.processID {
			continue
		}
		if !l.running.IsRunning(req.ConversationID) {
			continue
		}

		reply, err := json.Marshal(locateReply{
			RequestID:      req.RequestID,
			ConversationID: req.ConversationID,
			ProcessID:      l.processID,
			Status:         statusAlive,
		})
		if err != nil {
			continue
		}
		if err := l.bus.Publish(ctx, req.ReplyChannel, reply); err != nil {
			l.logger.Warn("publishing locate reply failed",
				"conversation_id", req.ConversationID,
				"error", err)
		}
	}
}

// replyLoop routes replies to the pending locate call they answer.
// Replies for requests that already timed out are discarded.
func (l *Locator) replyLoop(replies <-chan []byte) {
	for payload := range replies {
		var reply locateReply
		if err := json.Unmarshal(payload, &reply); err != nil {
			l.logger.Warn("malformed locate reply", "error", err)
			continue
		}

		l.mu.Lock()
		ch, ok := l.pending[reply.RequestID]
		l.mu.Unlock()
		if !ok {
			l.logger.Debug("discarding late locate reply",
				"request_id", reply.RequestID,
				"process_id", reply.ProcessID)
			continue
		}

		// Buffered by one: the first reply wins, duplicates are dropped
		select {
		case ch <- reply:
		default:
		}
	}
}

// Locate reports whether any other process currently hosts the
// conversation's agent loop. A timeout is the expected "not running" signal,
// not an error.
func (l *Locator) Locate(ctx context.Context, conversationID string) (bool, error) {
	requestID := uuid.New().String()

	req, err := json.Marshal(locateRequest{
		RequestID:      requestID,
		ConversationID: conversationID,
		ProcessID:      l.processID,
		ReplyChannel:   l.replyChannel(),
	})
	if err != nil {
		return false, fmt.Errorf("encoding locate request: %w", err)
	}

	ch := make(chan locateReply, 1)
	l.mu.Lock()
	l.pending[requestID] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pending, requestID)
		l.mu.Unlock()
	}()

	if err := l.bus.Publish(ctx, l.controlChannel, req); err != nil {
		return false, fmt.Errorf("publishing locate request: %w", err)
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		if reply.Status == statusAlive {
			l.logger.Debug("conversation running elsewhere",
				"conversation_id", conversationID,
				"process_id", reply.ProcessID)
			return true, nil
		}
		return false, nil
	case <-timer.C:
		// No process answered within the bound: treat as not running
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
