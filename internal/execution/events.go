package execution

import (
	"log"
	"sync"
	"time"

	"tradesim/internal/model"
)

// EventType discriminates bus events.
type EventType string

const (
	// EventOrder reports an order status change (placed, trigger pending,
	// executed, rejected, cancelled).
	EventOrder EventType = "ORDER"

	// EventLedger reports that positions/holdings/funds changed.
	EventLedger EventType = "LEDGER"
)

// Event is published by the coordinator after a mutation is durably
// applied. Consumers subscribe rather than registering per-call callbacks.
type Event struct {
	Type     EventType             `json:"type"`
	Mode     string                `json:"mode"`
	Order    *model.Order          `json:"order,omitempty"`
	Snapshot *model.LedgerSnapshot `json:"snapshot,omitempty"`
	TS       time.Time             `json:"ts"`
}

// Bus broadcasts events to N subscriber channels. If a subscriber channel
// is full the event is dropped for that consumer so a slow consumer cannot
// block the execution path.
type Bus struct {
	mu      sync.RWMutex
	outputs []chan Event
	bufSize int

	// OnDrop is called when an event is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// NewBus creates a Bus with the given buffer size for subscriber channels.
func NewBus(subscriberBufferSize int) *Bus {
	return &Bus{bufSize: subscriberBufferSize}
}

// Subscribe creates and returns a new event channel.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, b.bufSize)
	b.mu.Lock()
	b.outputs = append(b.outputs, ch)
	b.mu.Unlock()
	return ch
}

// Publish broadcasts an event to all subscribers. Non-blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	for i, ch := range b.outputs {
		select {
		case ch <- ev:
		default:
			if b.OnDrop != nil {
				b.OnDrop(i)
			} else {
				log.Printf("[events] subscriber channel %d full, dropping %s event", i, ev.Type)
			}
		}
	}
	b.mu.RUnlock()
}

// Close closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	for _, ch := range b.outputs {
		close(ch)
	}
	b.outputs = nil
	b.mu.Unlock()
}
