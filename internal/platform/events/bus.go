package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Event is a domain event delivered through the in-process bus.
type Event interface {
	// Name identifies the event kind, e.g. "visit.completed".
	Name() string
}

// Handler consumes a single event. Returned errors are logged, never
// propagated to the publisher.
type Handler func(ctx context.Context, evt Event) error

// Bus is an in-process, fire-and-forget event bus. Publishing never blocks on
// or fails because of a subscriber: handler errors and panics are logged and
// swallowed. Events do not survive a process crash; durability-critical
// records belong in the audit trail, not here.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates an empty event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for the named event.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Publish delivers evt to every subscriber synchronously, in subscription
// order. Failures are logged and do not stop delivery to later subscribers.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	handlers := b.handlers[evt.Name()]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, evt, h)
	}
}

func (b *Bus) deliver(ctx context.Context, evt Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("event", evt.Name()).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()

	if err := h(ctx, evt); err != nil {
		b.logger.Error().
			Err(err).
			Str("event", evt.Name()).
			Msg("event handler failed")
	}
}
