// Package progress implements the one-way status event stream from the
// orchestrator to its observers.
//
// Delivery is fire-and-forget: no acknowledgement, no buffering guarantee.
// With no subscribers registered, events are simply discarded. The channel
// carries user-facing status text only and is never reliability-critical.
package progress

import (
	"sync"

	"github.com/typecraft-io/typeset/types"
)

// Handler receives progress events. Handlers run synchronously on the
// emitting goroutine and must not block.
type Handler func(event types.ProgressEvent)

// Broadcaster dispatches events to all live subscribers.
// The closed/open state is explicit: sends after Close are no-ops rather
// than ad hoc is-the-receiver-alive checks at each call site.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]Handler
	nextID int
	closed bool
}

// NewBroadcaster creates an open broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]Handler)}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Every subscriber receives every subsequent event until unsubscribed.
// Subscribing to a closed broadcaster returns a no-op unsubscribe and the
// handler never fires.
func (b *Broadcaster) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Emit dispatches an event to all current subscribers. No-op when closed.
func (b *Broadcaster) Emit(event types.ProgressEvent) {
	b.mu.Lock()
	if b.closed || len(b.subs) == 0 {
		b.mu.Unlock()
		return
	}
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// Close marks the broadcaster closed and drops all subscribers.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	b.subs = nil
	b.mu.Unlock()
}
