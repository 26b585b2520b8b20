// ABOUTME: In-memory fan-out implementation of the Bus backplane
// ABOUTME: Publishes payloads to all subscribers of a channel without blocking

package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// MemoryBus provides in-memory pub/sub. Subscribers register for a channel
// name and receive every payload published to it. This serves single-process
// deployments, where the fleet locator's locate requests are answered (or
// not) entirely in-process, and all tests.
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan []byte // channel -> subID -> ch
	logger      *slog.Logger
	closed      bool
}

// NewMemoryBus creates a bus. Pass nil logger for default.
func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBus{
		subscribers: make(map[string]map[string]chan []byte),
		logger:      logger.With("component", "bus"),
	}
}

// Subscribe registers a subscriber for payloads on the given channel.
// Returns a receive channel and a subscription ID for later unsubscription.
// The subscription is automatically cleaned up when ctx is cancelled.
func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, string) {
	subID := uuid.New().String()
	ch := make(chan []byte, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[channel]; !ok {
		b.subscribers[channel] = make(map[string]chan []byte)
	}
	b.subscribers[channel][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"channel", channel,
		"sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(channel, subID)
	}()

	return ch, subID
}

// Publish sends a payload to all subscribers of the given channel.
// Non-blocking: payloads are dropped for subscribers whose channels are full.
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	subs, ok := b.subscribers[channel]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return nil
	}

	// Copy subscriber channels under read lock to avoid holding lock during sends
	targets := make([]chan []byte, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- payload:
			// Sent
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Subscriber channel full, drop the payload for this subscriber
			b.logger.Debug("dropped payload for slow subscriber",
				"channel", channel)
		}
	}
	return nil
}

// Unsubscribe removes a subscription and closes its channel.
func (b *MemoryBus) Unsubscribe(channel, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[channel]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty channel entries
	if len(subs) == 0 {
		delete(b.subscribers, channel)
	}

	b.logger.Debug("subscriber removed",
		"channel", channel,
		"sub_id", subID)
}

// Close shuts down the bus and closes all subscriber channels.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for channel, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, channel)
	}

	b.logger.Debug("bus closed")
}
