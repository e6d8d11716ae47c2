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
// Usage: bus.Publish(ProcessOutputEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ProcessStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case ProcessOutputEvent:
		event.Publish(b.dispatcher, e)
	case ProcessFinishedEvent:
		event.Publish(b.dispatcher, e)
	case PoolClearedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes a handler whose parameter type selects the events it
// receives. Unknown handler types get a no-op unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e ProcessFinishedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ProcessStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessOutputEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessFinishedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PoolClearedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel bridges a callback subscription to a channel for SSE
// handlers that select over connection and event channels. Events are dropped
// when ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
