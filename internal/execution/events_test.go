package execution

import (
	"testing"
	"time"

	"tradesim/internal/model"
)

func TestBus_PublishToAllSubscribers(t *testing.T) {
	bus := NewBus(8)
	a := bus.Subscribe()
	b := bus.Subscribe()

	ev := Event{Type: EventOrder, Mode: model.ModePaper, TS: time.Now().UTC()}
	bus.Publish(ev)

	for _, ch := range []<-chan Event{a, b} {
		select {
		case got := <-ch:
			if got.Type != EventOrder || got.Mode != model.ModePaper {
				t.Errorf("unexpected event: %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus(1)
	ch := bus.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: EventOrder})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	// Exactly the first event is buffered.
	select {
	case got := <-ch:
		if got.Type != EventOrder {
			t.Errorf("unexpected buffered event: %+v", got)
		}
	default:
		t.Fatal("expected one buffered event")
	}
}

func TestBus_OnDropCalledForFullSubscriber(t *testing.T) {
	bus := NewBus(1)
	_ = bus.Subscribe()

	dropped := make(chan int, 4)
	bus.OnDrop = func(subscriberIdx int) { dropped <- subscriberIdx }

	bus.Publish(Event{Type: EventOrder})
	bus.Publish(Event{Type: EventLedger}) // buffer full, must drop

	select {
	case idx := <-dropped:
		if idx != 0 {
			t.Errorf("expected drop for subscriber 0, got %d", idx)
		}
	case <-time.After(time.Second):
		t.Fatal("OnDrop not called")
	}
}

func TestBus_CloseClosesChannels(t *testing.T) {
	bus := NewBus(1)
	ch := bus.Subscribe()
	bus.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}
