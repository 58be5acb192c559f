package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lavapool/lavapool/internal/logging"
	"github.com/lavapool/lavapool/internal/queue"
)

// Handler processes a published event. Handlers run concurrently and must
// not assume ordering across nodes.
type Handler func(Event)

// Subscription identifies one registration so it can be removed. The zero
// value is inert.
type Subscription struct {
	kind Kind
	id   uint64
}

type subscription struct {
	id uint64
	fn Handler
}

// Bus fans out domain events to subscribed handlers. A handler failure is
// isolated: it is logged and never reaches the publisher or other handlers.
type Bus struct {
	logger *logging.Logger

	mu       sync.RWMutex
	handlers map[Kind][]subscription
	nextID   uint64

	// Optional out-of-process relay. Events are mirrored as JSON onto the
	// subject after local delivery.
	relay   queue.Publisher
	subject string
}

// NewBus creates an event bus
func NewBus(logger *logging.Logger) *Bus {
	return &Bus{
		logger:   logger.With("component", "event_bus"),
		handlers: make(map[Kind][]subscription),
	}
}

// SetRelay mirrors published events onto a queue publisher
func (b *Bus) SetRelay(relay queue.Publisher, subject string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relay = relay
	b.subject = subject
}

// Subscribe registers a handler for a kind. Every registration receives
// events independently, including distinct closures built from the same
// func literal. Use KindAny to receive every event.
func (b *Bus) Subscribe(kind Kind, handler Handler) Subscription {
	if handler == nil {
		return Subscription{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[kind] = append(b.handlers[kind], subscription{id: b.nextID, fn: handler})
	return Subscription{kind: kind, id: b.nextID}
}

// Unsubscribe removes a registration. Unknown or zero subscriptions are
// a no-op.
func (b *Bus) Unsubscribe(s Subscription) {
	if s.id == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[s.kind]
	for i, sub := range subs {
		if sub.id == s.id {
			b.handlers[s.kind] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every KindAny handler and every handler
// registered for the event's kind. It returns once all handlers have
// settled, whether they succeeded or panicked.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	targets := make([]Handler, 0, len(b.handlers[KindAny])+len(b.handlers[e.Kind]))
	for _, sub := range b.handlers[KindAny] {
		targets = append(targets, sub.fn)
	}
	if e.Kind != KindAny {
		for _, sub := range b.handlers[e.Kind] {
			targets = append(targets, sub.fn)
		}
	}
	relay := b.relay
	subject := b.subject
	b.mu.RUnlock()

	if len(targets) > 0 {
		var wg sync.WaitGroup
		for _, handler := range targets {
			wg.Add(1)
			go func(h Handler) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						b.logger.Warn("Event handler panicked",
							"kind", string(e.Kind),
							"panic", r)
					}
				}()
				h(e)
			}(handler)
		}
		wg.Wait()
	}

	if relay != nil {
		b.mirror(relay, subject, e)
	}

	b.logger.Debug("Dispatched event", "kind", string(e.Kind), "handlers", len(targets))
}

func (b *Bus) mirror(relay queue.Publisher, subject string, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Warn("Failed to encode event for relay", "kind", string(e.Kind), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := relay.Publish(ctx, subject, data); err != nil {
		b.logger.Warn("Failed to relay event", "kind", string(e.Kind), "error", err)
	}
}
