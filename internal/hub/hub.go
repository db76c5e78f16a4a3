// Package hub fans probe results and fired alerts out to the websocket
// clients of the owning user.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	EventProbeResult = "probe.result"
	EventAlertFired  = "alert.fired"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	sendBufSize  = 32
)

// Event is the JSON envelope written to clients. Owner is used for routing
// and never leaves the server.
type Event struct {
	Type       string      `json:"type"`
	EndpointID uuid.UUID   `json:"endpoint_id"`
	Owner      uuid.UUID   `json:"-"`
	Payload    interface{} `json:"payload"`
}

type client struct {
	owner uuid.UUID
	send  chan []byte
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func New() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Broadcast delivers evt to every client of evt.Owner. It never blocks:
// a client whose buffer is full is dropped.
func (h *Hub) Broadcast(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("hub: marshal event", "type", evt.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.owner != evt.Owner {
			continue
		}
		select {
		case c.send <- data:
		default:
			slog.Warn("hub: dropping slow client", "owner", c.owner)
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) register(owner uuid.UUID) *client {
	c := &client{owner: owner, send: make(chan []byte, sendBufSize)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Serve streams the owner's events over conn until either side hangs up.
func (h *Hub) Serve(conn *websocket.Conn, owner uuid.UUID) {
	c := h.register(owner)
	defer h.unregister(c)

	slog.Info("Live client connected", "owner", owner)
	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(conn, c.send)
	}()

	readPump(conn)
	h.unregister(c)
	<-done
	slog.Info("Live client disconnected", "owner", owner)
}

func writePump(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages; it only exists to notice the close.
func readPump(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
