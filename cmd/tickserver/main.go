// cmd/tickserver — Demo WebSocket tick server.
// Broadcasts simulated tick data so the engine can run in paper mode
// without live market data.
//
// Tick JSON shape is identical to model.Tick:
//
//	{"token":"2885","exchange":"NSE","price":185005000,"qty":10,"tick_ts":"..."}
//
// Price is in paise (1 INR = 100 paise), same as the live feed.
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  — listen address (default: ":8081")
//	TICK_TOKENS       — comma-separated TOKEN:EXCHANGE:STARTPAISE triples
//	                    (default: "2885:NSE:18505000,11536:NSE:350000")
//	TICK_INTERVAL_MS  — broadcast interval milliseconds (default: "250")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// tickMsg mirrors model.Tick for JSON serialisation.
type tickMsg struct {
	Token    string    `json:"token"`
	Exchange string    `json:"exchange"`
	Price    int64     `json:"price"` // paise
	Qty      int64     `json:"qty"`
	TickTS   time.Time `json:"tick_ts"`
}

// instrument holds per-symbol simulation state. Prices random-walk
// around the anchor so simulated quotes stay near a realistic level
// instead of drifting off over a long session.
type instrument struct {
	Token    string
	Exchange string
	Anchor   int64 // starting price in paise
	Price    int64 // current simulated price in paise
}

// broadcaster fans marshalled ticks out to connected WebSocket peers.
// Slow peers lose ticks rather than stall the generator.
type broadcaster struct {
	mu    sync.Mutex
	next  int
	peers map[int]chan []byte
}

func newBroadcaster() *broadcaster {
	return &broadcaster{peers: make(map[int]chan []byte)}
}

// attach adds a peer and returns its channel plus a detach func.
func (b *broadcaster) attach() (<-chan []byte, func()) {
	ch := make(chan []byte, 256)
	b.mu.Lock()
	id := b.next
	b.next++
	b.peers[id] = ch
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		if c, ok := b.peers[id]; ok {
			close(c)
			delete(b.peers, id)
		}
		b.mu.Unlock()
	}
}

func (b *broadcaster) send(msg []byte) {
	b.mu.Lock()
	for _, ch := range b.peers {
		select {
		case ch <- msg:
		default: // slow peer, drop tick
		}
	}
	b.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func (b *broadcaster) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[tickserver] upgrade error: %v", err)
		return
	}
	log.Printf("[tickserver] client connected: %s", r.RemoteAddr)

	ch, detach := b.attach()
	defer func() {
		detach()
		conn.Close()
		log.Printf("[tickserver] client disconnected: %s", r.RemoteAddr)
	}()

	for msg := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// walkPrice applies a random walk of up to ±0.1% per tick, with a mild
// pull back toward the anchor when the price has drifted more than 5%.
func walkPrice(rng *rand.Rand, anchor, price int64) int64 {
	pct := (rng.Float64()*0.2 - 0.1) / 100.0
	next := price + int64(float64(price)*pct)

	drift := next - anchor
	if drift > anchor/20 || drift < -anchor/20 {
		next -= drift / 50
	}
	if next < 100 { // floor at 1 rupee
		next = 100
	}
	return next
}

func runGenerator(b *broadcaster, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for range ticker.C {
		for i := range instruments {
			instruments[i].Price = walkPrice(rng, instruments[i].Anchor, instruments[i].Price)
			msg := tickMsg{
				Token:    instruments[i].Token,
				Exchange: instruments[i].Exchange,
				Price:    instruments[i].Price,
				Qty:      int64(rng.Intn(100) + 1),
				TickTS:   time.Now().UTC(),
			}
			raw, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			b.send(raw)
		}
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tickserver] starting demo tick server...")

	addr := envOrDefault("TICK_SERVER_ADDR", ":8081")
	tokensEnv := envOrDefault("TICK_TOKENS", "2885:NSE:18505000,11536:NSE:350000")
	intervalMs := envIntOrDefault("TICK_INTERVAL_MS", 250)

	instruments := parseInstruments(tokensEnv)
	if len(instruments) == 0 {
		log.Fatalf("[tickserver] no instruments configured via TICK_TOKENS")
	}
	log.Printf("[tickserver] instruments: %+v", instruments)
	log.Printf("[tickserver] broadcast interval: %dms", intervalMs)

	bc := newBroadcaster()
	go runGenerator(bc, instruments, intervalMs)

	http.HandleFunc("/ticks", bc.handleWS)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})

	log.Printf("[tickserver] listening on %s  (WebSocket: ws://localhost%s/ticks)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[tickserver] server error: %v", err)
	}
}

// parseInstruments parses TOKEN:EXCHANGE:STARTPAISE triples. A missing
// or invalid starting price falls back to ₹1000.00.
func parseInstruments(s string) []instrument {
	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.Split(part, ":")
		if len(seg) < 2 {
			log.Printf("[tickserver] skipping invalid token spec: %q", part)
			continue
		}
		token, exchange := strings.TrimSpace(seg[0]), strings.TrimSpace(seg[1])
		var start int64 = 100000_00
		if len(seg) >= 3 {
			if n, err := strconv.ParseInt(strings.TrimSpace(seg[2]), 10, 64); err == nil && n > 0 {
				start = n
			}
		}
		result = append(result, instrument{
			Token:    token,
			Exchange: exchange,
			Anchor:   start,
			Price:    start,
		})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
