package publish

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cwsl/vtxcore/internal/candidate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub broadcasts candidate snapshots to every connected subscriber,
// following the per-client-goroutine fan-out shape of
// user_spectrum_websocket.go, simplified to the one-way
// server-to-client broadcast this use case needs.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan []byte)}
}

// ServeHTTP upgrades the request to a websocket connection and registers
// it as a broadcast subscriber until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket: upgrade failed: %v", err)
		return
	}

	send := make(chan []byte, 16)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for data := range send {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// PublishSnapshot marshals snapshot and fans it out to every connected
// subscriber without blocking on slow clients: a client whose send
// channel is full drops the update rather than stalling the scanner.
func (h *Hub) PublishSnapshot(snapshot []candidate.Candidate) {
	data, err := marshalSnapshot(snapshot)
	if err != nil {
		log.Printf("websocket: marshal snapshot payload: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		select {
		case send <- data:
		default:
			log.Printf("websocket: dropping snapshot for slow client %s", conn.RemoteAddr())
		}
	}
}

// Clients returns the current number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
