// Package eventbus implements the in-process publish/subscribe channel
// used to notify UI-layer subscribers of ID remaps, deletions, and reload
// triggers. Delivery is synchronous and in registration order; a panicking
// handler is logged and does not prevent delivery to the remaining
// handlers.
//
// The bus is an explicit, constructed instance passed by reference to the
// components that need it, not a module-level singleton. Its lifecycle is
// owned by the app: Clear is called on sign-out.
package eventbus

import (
	"context"
	"sync"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/logging"
)

// EventType discriminates event payloads on the bus.
type EventType string

const (
	// EventIDChange fires when a push adopts a server-assigned chat ID.
	EventIDChange EventType = "idChange"

	// EventChatDeleted fires when a chat is removed locally, either by
	// explicit user deletion or by tombstone promotion.
	EventChatDeleted EventType = "chatDeleted"

	// EventReloadRequired fires when subscribers should re-read the
	// local store (e.g. after a pull upserted remote changes).
	EventReloadRequired EventType = "reloadRequired"
)

// Event is an immutable record published on the bus.
type Event interface {
	Type() EventType
}

// IDChange reports that a chat's identifier was remapped during a push.
// Subscribers holding From must atomically switch to To without losing
// uncommitted in-memory state.
type IDChange struct {
	From string
	To   string
}

func (IDChange) Type() EventType { return EventIDChange }

// ChatDeleted reports that a chat record was removed from the local store.
type ChatDeleted struct {
	ChatID string
}

func (ChatDeleted) Type() EventType { return EventChatDeleted }

// ReloadRequired asks subscribers to re-read chat listings from the store.
type ReloadRequired struct{}

func (ReloadRequired) Type() EventType { return EventReloadRequired }

// Handler consumes one event. Handlers must not call back into the sync
// engine synchronously; event flow is one-directional.
type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

// Bus is a typed publish/subscribe channel. The zero value is not usable;
// construct with New.
type Bus struct {
	mu     sync.Mutex
	logger logging.Logger
	subs   map[EventType][]subscription
	nextID int
}

// New returns an empty Bus that logs handler panics to the given logger.
func New(logger logging.Logger) *Bus {
	return &Bus{logger: logger, subs: make(map[EventType][]subscription)}
}

// On registers a handler for the given event type and returns a function
// that removes it. Handlers registered for the same type are invoked in
// registration order; no ordering is promised beyond that.
func (b *Bus) On(t EventType, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[t]
		for i, s := range list {
			if s.id == id {
				b.subs[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Emit synchronously invokes all current subscribers for the event's
// type. Each handler runs inside an isolated failure boundary: a panic is
// logged and delivery continues with the next handler.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	list := make([]subscription, len(b.subs[e.Type()]))
	copy(list, b.subs[e.Type()])
	b.mu.Unlock()

	for _, s := range list {
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s subscription, e Event) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error(context.Background(), "event handler panicked",
				"event", string(e.Type()), "panic", p)
		}
	}()
	s.handler(e)
}

// Clear removes every subscription. Called during sign-out.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[EventType][]subscription)
}
