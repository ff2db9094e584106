// Package events provides the one-way broadcast bus for trader events:
// status, progress, trade, position-update, and log. Publishing never
// blocks; if no observer is subscribed, events are dropped.
package events

import (
	"sync"
	"time"
)

// EventType identifies a broadcast kind.
type EventType string

const (
	// AutonomousStatus carries the engine status snapshot.
	AutonomousStatus EventType = "autonomous-status"
	// AutonomousProgress carries per-phase progress updates.
	AutonomousProgress EventType = "autonomous-progress"
	// AutonomousTrade carries trade open/close notifications.
	AutonomousTrade EventType = "autonomous-trade"
	// AutonomousPositionUpdate carries per-tick position marks.
	AutonomousPositionUpdate EventType = "autonomous-position-update"
	// AutonomousLog carries human-readable log lines.
	AutonomousLog EventType = "autonomous-log"
)

// AllTypes lists every broadcast kind, in a stable order.
func AllTypes() []EventType {
	return []EventType{
		AutonomousStatus,
		AutonomousProgress,
		AutonomousTrade,
		AutonomousPositionUpdate,
		AutonomousLog,
	}
}

// Event is a single broadcast message.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

// Handler receives events. Handlers run on their own goroutine and must
// not be relied on for ordering across events.
type Handler func(event *Event)

// Bus is a lossy fan-out broadcast bus. Subscribers are invoked
// asynchronously; a slow observer never slows the publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	allSubs  []Handler
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, handler)
}

// Publish broadcasts typed event data to all matching subscribers without
// blocking the caller. With no subscribers the event is dropped.
func (b *Bus) Publish(data EventData) {
	event := &Event{
		Type:      data.EventType(),
		Timestamp: time.Now(),
		Data:      data,
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type])+len(b.allSubs))
	handlers = append(handlers, b.handlers[event.Type]...)
	handlers = append(handlers, b.allSubs...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}
