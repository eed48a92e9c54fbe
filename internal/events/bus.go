// Package events provides the in-process event bus and the append-only
// audit trail.
package events

import (
	"sync"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	// EventOrderSubmitted is published after a request file lands in the inbox.
	EventOrderSubmitted EventType = "order_submitted"
	// EventOrderUpdated is published after a response has been applied to an order.
	EventOrderUpdated EventType = "order_updated"
	// EventResponseQuarantined is published when a response file cannot be decoded.
	EventResponseQuarantined EventType = "response_quarantined"
	// EventCaptureReceived is published for every datagram persisted by the
	// realtime listener.
	EventCaptureReceived EventType = "capture_received"
	// EventScheduleExecuted is published after a schedule run, successful or not.
	EventScheduleExecuted EventType = "schedule_executed"
	// EventDiskPressure is published when the data volume crosses the
	// retention threshold.
	EventDiskPressure EventType = "disk_pressure"
)

// Event is one occurrence with its free-form payload.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// Subscriber receives events for one event type.
type Subscriber func(Event)

// Bus is a non-blocking publish/subscribe fan-out. Delivery is asynchronous
// through a buffered channel per subscriber; a subscriber that stops keeping
// up (full buffer) or panics is unregistered rather than stalling the
// publisher or the other subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for one event type and returns its unsubscribe
// function. fn runs on a dedicated goroutine; a panicking subscriber is
// recovered, unregistered, and receives nothing further.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	b.mu.Unlock()

	go func() {
		for event := range ch {
			if !deliver(fn, event) {
				b.drop(eventType, ch)
				return
			}
		}
	}()

	return func() { b.drop(eventType, ch) }
}

// drop removes one subscriber channel and closes it. Calling it again for
// the same channel is a no-op; only the call that finds the channel in the
// list closes it.
func (b *Bus) drop(eventType EventType, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, subCh := range subs {
		if subCh == ch {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// deliver invokes fn, converting a panic into a false return.
func deliver(fn Subscriber, event Event) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	fn(event)
	return true
}

// Publish delivers the event to every subscriber of its type without
// blocking the caller. A subscriber whose buffer is full has stopped
// draining; it is unregistered once the fan-out completes.
func (b *Bus) Publish(eventType EventType, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	var stalled []chan Event
	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			stalled = append(stalled, ch)
		}
	}
	b.mu.RUnlock()

	for _, ch := range stalled {
		b.drop(eventType, ch)
	}
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
