package providers

import (
	"encoding/json"
	"sync"
)

// Event identifies a lifecycle or state-change event emitted by the
// provider.
type Event string

const (
	// EventConnect fires once the transport becomes usable. The payload
	// is a ConnectInfo.
	EventConnect Event = "connect"
	// EventDisconnect fires when the transport ends. The payload is a
	// DisconnectReason. No further events fire after it except
	// EventClose.
	EventDisconnect Event = "disconnect"
	// EventClose is the legacy alias of EventDisconnect, emitted with
	// the same payload for callers wired to the old convention.
	EventClose Event = "close"
	// EventChainChanged fires when the chain identifier changes. The
	// payload is the new chain id string, empty when unknown.
	EventChainChanged Event = "chainChanged"
	// EventNetworkChanged fires when the network identifier changes.
	// The payload is the new network id string, empty when unknown.
	EventNetworkChanged Event = "networkChanged"
	// EventAccountsChanged fires when the exposed account list changes
	// by value. The payload is the new []string account list.
	EventAccountsChanged Event = "accountsChanged"
	// EventMessage fires for subscription-style push notifications. The
	// payload is a ProviderMessage.
	EventMessage Event = "message"
	// EventNotification is the legacy alias of EventMessage, emitted
	// with the raw notification params as payload.
	EventNotification Event = "notification"
)

// ProviderMessage is the payload of EventMessage.
type ProviderMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventHandler processes an event payload. Handlers may read cached
// state and dispatch new requests; by the time a handler runs, every
// state field touched by the triggering update has already been
// applied.
type EventHandler func(payload any)

type subscriber struct {
	id uint64
	fn EventHandler
}

// emitter fans events out to subscribers. Emission iterates a fixed
// snapshot of the subscriber list taken under the lock, so handlers can
// subscribe, unsubscribe and re-enter freely.
type emitter struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[Event][]subscriber
}

func newEmitter() *emitter {
	return &emitter{handlers: make(map[Event][]subscriber)}
}

// on registers a handler and returns its unsubscribe function.
func (e *emitter) on(event Event, handler EventHandler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.handlers[event] = append(e.handlers[event], subscriber{id: id, fn: handler})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		subs := e.handlers[event]
		for i, sub := range subs {
			if sub.id == id {
				e.handlers[event] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// emit invokes every handler registered for the event.
func (e *emitter) emit(event Event, payload any) {
	e.mu.Lock()
	subs := e.handlers[event]
	snapshot := make([]subscriber, len(subs))
	copy(snapshot, subs)
	e.mu.Unlock()

	for _, sub := range snapshot {
		sub.fn(payload)
	}
}
