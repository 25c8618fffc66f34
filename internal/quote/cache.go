// Package quote maintains the latest tradable price per instrument and
// fans ticks out to subscribers (the scheduler, the ledger's last-price
// updater). It is the quote source consulted on every order evaluation.
package quote

import (
	"context"
	"log"
	"sync"

	"tradesim/internal/model"
)

// Cache holds the latest tick price per "exchange:token" and broadcasts
// incoming ticks to N subscriber channels. If a subscriber channel is full
// the tick is dropped for that consumer so a slow consumer cannot block
// the feed.
type Cache struct {
	mu      sync.RWMutex
	prices  map[string]int64
	outputs []chan model.Tick
	bufSize int

	// OnDrop is called when a tick is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// NewCache creates a Cache with the given buffer size for subscriber channels.
func NewCache(subscriberBufferSize int) *Cache {
	return &Cache{
		prices:  make(map[string]int64),
		bufSize: subscriberBufferSize,
	}
}

// Price returns the latest price in paise for an instrument.
// ok is false when no tick has been observed for it yet.
func (c *Cache) Price(exchange, token string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[exchange+":"+token]
	return p, ok
}

// SetPrice seeds or overrides the latest price for an instrument.
// Used for warm starts and in tests.
func (c *Cache) SetPrice(exchange, token string, price int64) {
	c.mu.Lock()
	c.prices[exchange+":"+token] = price
	c.mu.Unlock()
}

// Subscribe creates and returns a new tick output channel.
func (c *Cache) Subscribe() <-chan model.Tick {
	ch := make(chan model.Tick, c.bufSize)
	c.mu.Lock()
	c.outputs = append(c.outputs, ch)
	c.mu.Unlock()
	return ch
}

// Run reads ticks from the input channel, records the latest price, and
// fans out to all subscribers. Blocks until ctx is cancelled or input is
// closed.
func (c *Cache) Run(ctx context.Context, input <-chan model.Tick) {
	defer func() {
		c.mu.RLock()
		for _, ch := range c.outputs {
			close(ch)
		}
		c.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-input:
			if !ok {
				return
			}
			c.Publish(tick)
		}
	}
}

// Publish records a single tick and broadcasts it to subscribers.
func (c *Cache) Publish(tick model.Tick) {
	key := tick.Key()
	c.mu.Lock()
	c.prices[key] = tick.Price
	c.mu.Unlock()

	c.mu.RLock()
	for i, ch := range c.outputs {
		select {
		case ch <- tick:
		default:
			if c.OnDrop != nil {
				c.OnDrop(i)
			} else {
				log.Printf("[quote] subscriber channel %d full, dropping tick %s", i, key)
			}
		}
	}
	c.mu.RUnlock()
}
