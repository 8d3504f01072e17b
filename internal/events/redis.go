package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the redis channel used to relay events between instances.
const DefaultChannel = "altss:events"

// RedisBus relays events through redis pub/sub so every server instance
// delivers them to its local subscribers.
type RedisBus struct {
	client  *redis.Client
	channel string
	local   *LocalBus
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBus wraps local with a redis relay.
func NewRedisBus(client *redis.Client, channel string, local *LocalBus, logger *slog.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	if local == nil {
		local = NewLocalBus(logger)
	}
	return &RedisBus{client: client, channel: channel, local: local, logger: logger}
}

// Publish sends evt to redis. Local subscribers receive it once it comes
// back through the subscription started by Start.
func (b *RedisBus) Publish(ctx context.Context, evt Event) error {
	if evt.Topic == "" {
		return errors.New("events: topic required")
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	return nil
}

// Subscribe registers h on the local bus.
func (b *RedisBus) Subscribe(topic string, h Handler) func() {
	return b.local.Subscribe(topic, h)
}

// Start subscribes to the redis channel and relays messages until ctx is
// cancelled or Stop is called. It returns once the subscription is live.
func (b *RedisBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		return errors.New("events: relay already started")
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("events: subscribe: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.relay(ctx, pubsub, b.done)
	return nil
}

// Stop ends the relay and waits for it to exit.
func (b *RedisBus) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (b *RedisBus) relay(ctx context.Context, pubsub *redis.PubSub, done chan struct{}) {
	defer close(done)
	defer func() { _ = pubsub.Close() }()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.logger.Warn("drop malformed event", slog.Any("error", err))
				continue
			}
			b.local.dispatch(ctx, evt)
		}
	}
}

var _ Bus = (*RedisBus)(nil)
