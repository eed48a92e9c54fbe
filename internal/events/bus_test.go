package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	received := []Event{}

	unsub := bus.Subscribe(EventOrderSubmitted, func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})
	defer unsub()

	bus.Publish(EventOrderSubmitted, map[string]interface{}{
		"order_id": "GSS300925101500123",
	})

	// Wait for async delivery
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type != EventOrderSubmitted {
		t.Errorf("expected type %s, got %s", EventOrderSubmitted, received[0].Type)
	}
	if orderID, ok := received[0].Data["order_id"].(string); !ok || orderID != "GSS300925101500123" {
		t.Errorf("expected order_id GSS300925101500123, got %v", received[0].Data["order_id"])
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	count1, count2 := 0, 0

	unsub1 := bus.Subscribe(EventCaptureReceived, func(e Event) {
		mu.Lock()
		count1++
		mu.Unlock()
	})
	defer unsub1()

	unsub2 := bus.Subscribe(EventCaptureReceived, func(e Event) {
		mu.Lock()
		count2++
		mu.Unlock()
	})
	defer unsub2()

	bus.Publish(EventCaptureReceived, map[string]interface{}{"capture_id": "c1"})

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count1 != 1 || count2 != 1 {
		t.Errorf("both subscribers should receive the event, got %d and %d", count1, count2)
	}
}

func TestBus_TypeIsolation(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	got := 0

	unsub := bus.Subscribe(EventOrderUpdated, func(e Event) {
		mu.Lock()
		got++
		mu.Unlock()
	})
	defer unsub()

	bus.Publish(EventOrderSubmitted, nil)
	bus.Publish(EventDiskPressure, nil)

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if got != 0 {
		t.Errorf("subscriber received %d events of other types", got)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	got := 0

	unsub := bus.Subscribe(EventScheduleExecuted, func(e Event) {
		mu.Lock()
		got++
		mu.Unlock()
	})

	bus.Publish(EventScheduleExecuted, nil)
	time.Sleep(50 * time.Millisecond)

	unsub()
	bus.Publish(EventScheduleExecuted, nil)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if got != 1 {
		t.Errorf("expected exactly 1 event before unsubscribe, got %d", got)
	}
}

func TestBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	block := make(chan struct{})
	unsub := bus.Subscribe(EventCaptureReceived, func(e Event) {
		<-block
	})
	defer unsub()

	// Publish must return promptly even though the subscriber is stuck.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			bus.Publish(EventCaptureReceived, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	close(block)
}

func TestBus_StalledSubscriberIsUnregistered(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	var mu sync.Mutex
	got := 0

	release := make(chan struct{})
	unsub := bus.Subscribe(EventCaptureReceived, func(e Event) {
		mu.Lock()
		got++
		mu.Unlock()
		<-release
	})
	defer unsub()

	// The first event may be in the handler, the second sits in the
	// one-slot buffer; by the third the buffer is full and the subscriber
	// is dropped.
	bus.Publish(EventCaptureReceived, nil)
	bus.Publish(EventCaptureReceived, nil)
	bus.Publish(EventCaptureReceived, nil)

	close(release)
	time.Sleep(50 * time.Millisecond)

	bus.Publish(EventCaptureReceived, nil)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if got < 1 {
		t.Fatal("subscriber never received the in-flight event")
	}
	if got > 2 {
		t.Errorf("dropped subscriber kept receiving events, got %d deliveries", got)
	}
}

func TestBus_PanickingSubscriberIsUnregistered(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	got := 0
	panics := 0

	unsubPanic := bus.Subscribe(EventOrderUpdated, func(e Event) {
		mu.Lock()
		panics++
		mu.Unlock()
		panic("subscriber bug")
	})
	defer unsubPanic()

	unsub := bus.Subscribe(EventOrderUpdated, func(e Event) {
		mu.Lock()
		got++
		mu.Unlock()
	})
	defer unsub()

	bus.Publish(EventOrderUpdated, nil)
	bus.Publish(EventOrderUpdated, nil)

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if got != 2 {
		t.Errorf("healthy subscriber should receive both events, got %d", got)
	}
	if panics != 1 {
		t.Errorf("panicking subscriber should be dropped after the first event, saw %d deliveries", panics)
	}
}
