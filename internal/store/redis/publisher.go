// Package redis publishes order and ledger events to Redis PubSub for
// the WebSocket API gateway to fan out to UI clients.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"tradesim/internal/execution"

	goredis "github.com/go-redis/redis/v8"
)

// Channel prefixes. The full channel name carries the trading mode, e.g.
// "pub:orders:PAPER", so a client can subscribe per mode.
const (
	ChannelOrders = "pub:orders:"
	ChannelLedger = "pub:ledger:"
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher forwards execution events to Redis PubSub.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// Run reads events from eventCh and publishes them. Blocks until ctx is
// cancelled or eventCh is closed. Publish failures are logged and the
// event dropped; the ledger itself is already durably saved by then.
func (p *Publisher) Run(ctx context.Context, eventCh <-chan execution.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			p.publish(ctx, ev)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev execution.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[redis] marshal event: %v", err)
		return
	}

	channel := ChannelLedger + ev.Mode
	if ev.Type == execution.EventOrder {
		channel = ChannelOrders + ev.Mode
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		log.Printf("[redis] publish %s: %v", channel, err)
	}
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
