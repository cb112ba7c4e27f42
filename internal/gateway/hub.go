// Package gateway pushes freshly computed signals to WebSocket clients.
// Clients get a snapshot of the latest signal per instrument on connect,
// then live updates as evaluations complete.
package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signal-enginev1/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   4096,
	EnableCompression: true,
	// The dashboard is served from a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub manages WebSocket clients and fans evaluation results out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]json.RawMessage // instrument key -> last envelope

	// OnClientChange fires with the new client count after every register
	// and unregister. Optional.
	OnClientChange func(count int)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]json.RawMessage),
	}
}

// HandleWS upgrades the HTTP connection and registers the peer.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade failed: %v", err)
		return
	}
	conn.EnableWriteCompression(true)

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.notifyClientChange(count)

	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendSnapshot()
	go client.writePump()
	go client.readPump()
}

// BroadcastSignal publishes one evaluation result to every connected client
// and records it as the latest state for new connections.
func (h *Hub) BroadcastSignal(key, symbol string, res *model.SignalResult) {
	envelope, err := json.Marshal(map[string]any{
		"type":   "signal",
		"key":    key,
		"symbol": symbol,
		"result": res,
		"ts":     time.Now().Format(time.RFC3339Nano),
	})
	if err != nil {
		log.Printf("[gateway] envelope marshal failed: %v", err)
		return
	}

	h.mu.Lock()
	h.latest[key] = envelope
	for client := range h.clients {
		select {
		case client.send <- envelope:
		default:
			// Slow consumer; drop the frame rather than stall the engine.
		}
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// removeClient unregisters a client and closes its send channel.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	close(c.send)
	h.notifyClientChange(count)
}

func (h *Hub) notifyClientChange(count int) {
	if h.OnClientChange != nil {
		h.OnClientChange(count)
	}
}
