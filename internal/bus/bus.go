package bus

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"unshub/pkg/logging"
)

// Handler is the untyped form a subscriber is stored as. Use Subscribe to
// register a typed handler; the bus wraps it.
type Handler func(ctx context.Context, event interface{})

// Subscription identifies a registered handler so it can be removed later.
type Subscription struct {
	eventType reflect.Type
	handlerID string
}

type subscriber struct {
	handlerID string
	handler   Handler
}

// Bus is a typed in-process publish/subscribe dispatcher. Delivery is
// synchronous, at-most-once per subscription and not persisted. Events
// published in one call are delivered to each subscriber in registration
// order; a failing subscriber never prevents delivery to the others.
type Bus struct {
	mu   sync.RWMutex
	subs map[reflect.Type][]subscriber
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[reflect.Type][]subscriber),
	}
}

// Subscribe registers a typed handler for events of type T under handlerID.
// Re-subscribing the same handlerID for the same event type replaces the
// previous registration, so a handler is never delivered twice.
func Subscribe[T any](b *Bus, handlerID string, handler func(ctx context.Context, event T)) Subscription {
	eventType := reflect.TypeOf((*T)(nil)).Elem()
	wrapped := func(ctx context.Context, event interface{}) {
		typed, ok := event.(T)
		if !ok {
			return
		}
		handler(ctx, typed)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[eventType]
	for i, existing := range list {
		if existing.handlerID == handlerID {
			list[i].handler = wrapped
			return Subscription{eventType: eventType, handlerID: handlerID}
		}
	}
	b.subs[eventType] = append(list, subscriber{handlerID: handlerID, handler: wrapped})
	return Subscription{eventType: eventType, handlerID: handlerID}
}

// Unsubscribe removes a previously registered handler. Unknown subscriptions
// are ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.eventType]
	for i, existing := range list {
		if existing.handlerID == sub.handlerID {
			b.subs[sub.eventType] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every subscriber registered for its runtime
// type. Iteration happens over a snapshot of the subscriber list, so handlers
// may subscribe or unsubscribe during delivery. A panicking subscriber is
// logged and isolated; it neither stops delivery nor fails the publisher.
func (b *Bus) Publish(ctx context.Context, event interface{}) {
	if event == nil {
		return
	}
	eventType := reflect.TypeOf(event)

	b.mu.RLock()
	list := b.subs[eventType]
	snapshot := make([]subscriber, len(list))
	copy(snapshot, list)
	b.mu.RUnlock()

	for _, sub := range snapshot {
		b.deliver(ctx, sub, event, eventType)
	}
}

func (b *Bus) deliver(ctx context.Context, sub subscriber, event interface{}, eventType reflect.Type) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Bus", fmt.Errorf("%v", r), "Subscriber %s panicked handling %s", sub.handlerID, eventType)
		}
	}()
	sub.handler(ctx, event)
}

// SubscriberCount returns the number of handlers registered for the runtime
// type of the given sample event.
func (b *Bus) SubscriberCount(sample interface{}) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[reflect.TypeOf(sample)])
}
