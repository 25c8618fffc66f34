// Package gateway fans order and ledger events out to WebSocket clients.
// Events arrive over Redis PubSub from the simulation engine; each client
// receives a JSON envelope per event plus a replay of recent events on
// connect.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Hub manages WebSocket clients and the Redis PubSub subscription.
type Hub struct {
	Rdb *goredis.Client

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	// Per-connection replay of recent envelopes for late subscribers.
	replay *ReplayBuffer

	// OnClientCountChange is called with the client count after every
	// register/unregister. Used for the ws_clients gauge.
	OnClientCountChange func(n int)
}

// NewHub creates a Hub reading events from the given Redis client.
func NewHub(rdb *goredis.Client, replayCapacity int) *Hub {
	return &Hub{
		Rdb:     rdb,
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replayCapacity),
	}
}

// Run subscribes to the order and ledger channels for all modes and
// routes messages to connected clients. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.Rdb.PSubscribe(ctx, "pub:orders:*", "pub:ledger:*")
	defer pubsub.Close()

	log.Println("[gateway] subscribed to order/ledger PubSub channels")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}

// broadcast wraps the payload in an envelope and fans it out. Slow
// clients drop messages rather than blocking the pubsub loop.
func (h *Hub) broadcast(channel string, payload []byte) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	envelope, err := json.Marshal(map[string]interface{}{
		"channel": channel,
		"data":    json.RawMessage(payload),
		"seq":     seq,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		log.Printf("[gateway] envelope marshal error: %v", err)
		return
	}

	h.replay.Push(seq, envelope)

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- envelope:
		default:
			log.Printf("[gateway] client send buffer full, dropping seq=%d", seq)
		}
	}
	h.mu.RUnlock()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()

	if h.OnClientCountChange != nil {
		h.OnClientCountChange(n)
	}
	log.Printf("[gateway] client connected (%d total)", n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if h.OnClientCountChange != nil {
		h.OnClientCountChange(n)
	}
	log.Printf("[gateway] client disconnected (%d total)", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
