package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/knograph/kgcoord/kg"
)

// RedisBus bridges knowledge events over Redis pub/sub, one channel per
// action. Local handlers registered via Subscribe receive events published
// by any process connected to the same Redis instance.
type RedisBus struct {
	client *redis.Client
	prefix string

	mu      sync.Mutex
	local   *LocalBus
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

// NewRedisBus connects to Redis and returns a bus that publishes and
// receives events on prefixed pub/sub channels.
func NewRedisBus(opts Options) (*RedisBus, error) {
	redisOpts, err := redis.ParseURL(opts.TransportURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transport URL: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to event transport: %w", err)
	}

	prefix := opts.ChannelPrefix
	if prefix == "" {
		prefix = "kgevents"
	}
	return &RedisBus{
		client: client,
		prefix: prefix,
		local:  NewLocalBus(),
	}, nil
}

// Subscribe registers a local handler and starts a pub/sub listener for
// the action's channel the first time the action is seen.
func (b *RedisBus) Subscribe(action string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	first := len(b.local.handlers[action]) == 0
	b.local.Subscribe(action, handler)
	if !first {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancels = append(b.cancels, cancel)
	pubsub := b.client.Subscribe(ctx, b.channel(action))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event kg.KnowledgeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				// Handler errors cannot reach the remote publisher;
				// delivery to other handlers continues regardless.
				_ = b.local.Publish(ctx, event)
			}
		}
	}()
}

// Publish serializes the event and sends it on the action's channel.
// Local handlers receive it through the pub/sub loop like any other
// subscriber.
func (b *RedisBus) Publish(ctx context.Context, event kg.KnowledgeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(event.Action), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close stops all pub/sub listeners and closes the Redis connection.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
	b.mu.Unlock()

	b.wg.Wait()
	return b.client.Close()
}

func (b *RedisBus) channel(action string) string {
	return b.prefix + ":" + action
}
