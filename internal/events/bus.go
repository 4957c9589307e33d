package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(RecoveryEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ConnectivityChangedEvent:
		event.Publish(b.dispatcher, e)
	case EffectChangedEvent:
		event.Publish(b.dispatcher, e)
	case RecoveryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e ConnectivityChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ConnectivityChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(EffectChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecoveryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel bridges a callback subscription to a channel. Events are
// dropped when the channel is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- T) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// Publisher is the part of Bus that producers depend on.
type Publisher interface {
	Publish(ev Event)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
