// Package eventbus is a small generic pub/sub used to wire cross-component
// signaling (target_chain_changed, block_applied, tx_added, and so on)
// without components holding direct references to each other's internal
// state (spec §9 design note: "subscribers hold only a bus and a handle").
// Grounded on the teacher's util/Channels / service-to-service event
// patterns (services/blockvalidation, services/blockchain both broadcast
// state-change notifications to loosely-coupled subscribers).
package eventbus

import "sync"

// Handler receives an emitted event. Handlers run synchronously on the
// publishing goroutine's call to Publish; a handler that blocks or
// panics is the caller's problem, same as the teacher's in-process
// notification paths — callers needing isolation should hop to their
// own goroutine inside the handler.
type Handler[T any] func(event T)

// Bus is a topic-less, type-parameterized publish/subscribe channel for
// a single event type T. Each component area (chain index, selector,
// mempool, ...) constructs its own Bus per event type it emits.
type Bus[T any] struct {
	mu          sync.RWMutex
	subscribers map[int]Handler[T]
	nextID      int
}

// New constructs an empty Bus for event type T.
func New[T any]() *Bus[T] {
	return &Bus[T]{subscribers: make(map[int]Handler[T])}
}

// Subscription is an opaque handle returned by Subscribe, passed back to
// Unsubscribe to remove that specific handler.
type Subscription struct {
	id int
}

// Subscribe registers handler and returns a handle to later unsubscribe.
func (b *Bus[T]) Subscribe(handler Handler[T]) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = handler
	return Subscription{id: id}
}

// Unsubscribe removes a previously registered handler. A no-op if the
// subscription was already removed.
func (b *Bus[T]) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, sub.id)
}

// Publish invokes every current subscriber with event, in registration
// order is not guaranteed (subscribers are stored in a map).
func (b *Bus[T]) Publish(event T) {
	b.mu.RLock()
	handlers := make([]Handler[T], 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
