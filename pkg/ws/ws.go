// Package ws implements a topic-based websocket hub. Checkout frontends
// subscribe to their order's topic and receive payment status pushes from the
// reconciliation engine instead of polling the confirm endpoint.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shashiranjanraj/vastra/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth happens in middleware before the upgrade; cross-origin browsers
	// are expected since the storefront runs on its own domain.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans JSON messages out to every connection subscribed to a topic.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan interface{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{topics: map[string]map[*client]struct{}{}}
}

// Broadcast sends payload to every subscriber of topic. Slow consumers are
// dropped rather than blocking the caller.
func (h *Hub) Broadcast(topic string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.topics[topic] {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// Serve upgrades the request and subscribes the connection to topic until
// the peer disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws: upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan interface{}, 8)}
	h.subscribe(topic, c)

	go c.writeLoop()
	c.readLoop() // blocks until disconnect

	h.unsubscribe(topic, c)
	close(c.send)
}

func (h *Hub) subscribe(topic string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[topic] == nil {
		h.topics[topic] = map[*client]struct{}{}
	}
	h.topics[topic][c] = struct{}{}
}

func (h *Hub) unsubscribe(topic string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.topics[topic], c)
	if len(h.topics[topic]) == 0 {
		delete(h.topics, topic)
	}
}

// readLoop discards inbound frames; the channel is push-only. It exists to
// process pongs and to notice the peer going away.
func (c *client) readLoop() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
