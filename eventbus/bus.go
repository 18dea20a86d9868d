// Package eventbus routes KnowledgeEvents to subscribed handlers.
//
// Two implementations are provided: LocalBus delivers events in-process
// with sequential handler invocation, and RedisBus bridges events over
// Redis pub/sub for multi-process deployments. New selects between them
// based on whether a transport URL is configured, so callers always get a
// working bus.
package eventbus

import (
	"context"
	"sync"

	"github.com/knograph/kgcoord/kg"
)

// Handler processes a published KnowledgeEvent. An error returned by a
// handler stops delivery to the remaining handlers for that event and is
// propagated to the publisher.
type Handler func(ctx context.Context, event kg.KnowledgeEvent) error

// Bus is the typed publish/subscribe contract for knowledge events.
type Bus interface {
	// Subscribe registers a handler for events with the given action.
	Subscribe(action string, handler Handler)

	// Publish delivers an event to all handlers subscribed to its action.
	Publish(ctx context.Context, event kg.KnowledgeEvent) error

	// Close releases transport resources. Closing a local bus is a no-op.
	Close() error
}

// Options configures bus construction.
type Options struct {
	// TransportURL selects the transport. Empty means in-process delivery.
	// A "redis://" URL enables the Redis pub/sub transport.
	TransportURL string

	// ChannelPrefix namespaces the pub/sub channels used by the Redis
	// transport. Default: "kgevents".
	ChannelPrefix string
}

// New constructs a bus. Without a transport URL it returns a LocalBus;
// with a Redis URL it returns a RedisBus, or an error if the connection
// fails. There is no silent downgrade from a configured transport.
func New(opts Options) (Bus, error) {
	if opts.TransportURL == "" {
		return NewLocalBus(), nil
	}
	return NewRedisBus(opts)
}

// LocalBus is an in-process bus. Handlers for an action are invoked
// sequentially in subscription order; an error from one handler prevents
// the remaining handlers from running, mirroring synchronous dispatch
// semantics.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for the given action.
func (b *LocalBus) Subscribe(action string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[action] = append(b.handlers[action], handler)
}

// Publish invokes each subscribed handler in order. Events with no
// subscribers are dropped silently.
func (b *LocalBus) Publish(ctx context.Context, event kg.KnowledgeEvent) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Action]))
	copy(handlers, b.handlers[event.Action])
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op for the local bus.
func (b *LocalBus) Close() error {
	return nil
}
