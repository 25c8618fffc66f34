package gateway

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(_ *http.Request) bool { return true },
	EnableCompression: true,
}

// HandleWS upgrades the connection and attaches the client to the hub.
// The optional ?since_seq=N query replays only envelopes newer than N;
// without it the full buffered backlog is replayed.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade error: %v", err)
		return
	}

	var sinceSeq int64
	if v := r.URL.Query().Get("since_seq"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			sinceSeq = n
		}
	}

	c := newClient(h, conn)
	h.register(c)
	c.sendReplay(sinceSeq)

	go c.writePump()
	go c.readPump()
}
