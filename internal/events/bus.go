package events

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handler processes a single event. Handlers run on the emitter's goroutine;
// anything slow should hand off internally.
type Handler func(*Event)

// Bus is the in-process publish/subscribe hub. Modules subscribe to the
// event types they care about; emitters never know who is listening.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
	wildcards   []Handler
	logger      zerolog.Logger
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Handler),
		logger:      log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type. Used by the
// websocket hub, which relays the full stream to connected terminals.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcards = append(b.wildcards, handler)
}

// Emit delivers an event to all matching handlers synchronously.
// A panicking handler is logged and does not stop delivery to the rest.
func (b *Bus) Emit(event *Event) {
	if event == nil || !event.Type.IsValid() {
		b.logger.Warn().Interface("event", event).Msg("Dropping invalid event")
		return
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers[event.Type])+len(b.wildcards))
	handlers = append(handlers, b.subscribers[event.Type]...)
	handlers = append(handlers, b.wildcards...)
	b.mu.RUnlock()

	b.logger.Debug().
		Str("type", string(event.Type)).
		Str("event_id", event.ID).
		Str("origin", event.OriginUser).
		Int("handlers", len(handlers)).
		Msg("Emitting event")

	for _, h := range handlers {
		b.dispatch(h, event)
	}
}

func (b *Bus) dispatch(h Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("type", string(event.Type)).
				Interface("panic", r).
				Msg("Event handler panicked")
		}
	}()
	h(event)
}
