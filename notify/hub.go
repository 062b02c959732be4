// Package notify delivers price drop alerts to connected browsers over
// websockets and to the owner over a webhook.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mjanda/go-price-tracker/alert"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Hub tracks connected websocket clients and broadcasts alert messages to
// all of them. A client that fails a write is dropped on the spot.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	stop chan struct{}
	once sync.Once
}

// NewHub creates a hub and starts its heartbeat loop.
func NewHub(checkOrigin func(*http.Request) bool) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[*websocket.Conn]struct{}),
		stop:    make(chan struct{}),
	}
	go h.heartbeat()
	return h
}

// HandleWS upgrades the request and registers the connection. The read loop
// only exists to detect closure, inbound messages are discarded.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	slog.Info("websocket client connected", slog.Int("clients", count))

	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends one JSON message to every connected client.
func (h *Hub) Broadcast(message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		slog.Error("broadcast marshal failed", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Notify implements alert.Notifier by broadcasting a price_alert message.
func (h *Hub) Notify(_ context.Context, ev alert.Event) error {
	h.Broadcast(map[string]interface{}{
		"type": "price_alert",
		"data": map[string]interface{}{
			"productId":   ev.ProductID,
			"productName": ev.ProductName,
			"oldPrice":    ev.OldPrice,
			"newPrice":    ev.NewPrice,
			"dropPercent": ev.DropPercent,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops the heartbeat and disconnects every client.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.stop) })
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	conn.Close()
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

// heartbeat pings every client on an interval so half-open connections get
// reaped instead of accumulating.
func (h *Hub) heartbeat() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}
