// ABOUTME: Backplane pub/sub interface shared by all gateway processes
// ABOUTME: Defines the Bus contract used by the fleet locator for cross-process coordination

package bus

import "context"

// Bus is the distributed publish/subscribe backplane. Every gateway process
// in a fleet shares one logical bus; it is the only channel processes use to
// coordinate (there is no shared memory or database between them).
//
// MemoryBus implements Bus for single-process deployments and tests. A
// multi-process fleet substitutes an implementation backed by a shared broker
// behind the same interface.
type Bus interface {
	// Publish delivers payload to every current subscriber of channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe registers for messages on channel until ctx is cancelled or
	// Unsubscribe is called with the returned subscription ID.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, string)

	// Unsubscribe removes a subscription and closes its channel.
	Unsubscribe(channel, subID string)

	// Close shuts down the bus and closes all subscriber channels.
	Close()
}
