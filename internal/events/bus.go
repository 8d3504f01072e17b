// Package events carries cross-component notifications such as favorite and
// saved-search changes. Subscribers register per topic.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Topics published by the application.
const (
	TopicFavoritesUpdated     = "favorites.updated"
	TopicSavedSearchesUpdated = "saved_searches.updated"
	TopicDirectoryChanged     = "directory.changed"
)

// Event is a single notification. UserID scopes user-specific topics; an
// empty UserID addresses everyone.
type Event struct {
	Topic   string          `json:"topic"`
	UserID  string          `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// NewEvent builds an event with a JSON payload.
func NewEvent(topic, userID string, payload any) (Event, error) {
	evt := Event{Topic: topic, UserID: userID, At: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("events: encode payload: %w", err)
		}
		evt.Payload = raw
	}
	return evt, nil
}

// Decode unmarshals the payload into dest.
func (e Event) Decode(dest any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, dest)
}

// Handler receives events. Handlers must not block.
type Handler func(ctx context.Context, evt Event)

// Bus publishes events and fans them out to subscribers.
type Bus interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe(topic string, h Handler) (unsubscribe func())
}

// LocalBus delivers events in-process. A panicking handler is logged and does
// not affect other subscribers.
type LocalBus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler
}

// NewLocalBus constructs an empty LocalBus.
func NewLocalBus(logger *slog.Logger) *LocalBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBus{logger: logger, subs: make(map[string]map[uint64]Handler)}
}

// Publish delivers evt synchronously to every subscriber of its topic.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if evt.Topic == "" {
		return fmt.Errorf("events: topic required")
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	b.dispatch(ctx, evt)
	return nil
}

// Subscribe registers h for topic.
func (b *LocalBus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
		})
	}
}

// Subscribers reports the number of handlers registered for topic.
func (b *LocalBus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *LocalBus) dispatch(ctx context.Context, evt Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[evt.Topic]))
	for _, h := range b.subs[evt.Topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.call(ctx, h, evt)
	}
}

func (b *LocalBus) call(ctx context.Context, h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", slog.String("topic", evt.Topic), slog.Any("panic", r))
		}
	}()
	h(ctx, evt)
}

var _ Bus = (*LocalBus)(nil)
