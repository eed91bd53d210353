package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// A nil *Bus drops everything, so publishers need no nil checks.
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
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case ParamRejectedEvent:
		event.Publish(b.dispatcher, e)
	case StreamDroppedEvent:
		event.Publish(b.dispatcher, e)
	case SessionStateEvent:
		event.Publish(b.dispatcher, e)
	case ManifestReadyEvent:
		event.Publish(b.dispatcher, e)
	case SessionMetricsEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes handler to the event type it accepts and returns an
// unsubscribe function. Unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e StreamDroppedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	if b == nil {
		return func() {}
	}
	switch h := handler.(type) {
	case func(ParamRejectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamDroppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ManifestReadyEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
