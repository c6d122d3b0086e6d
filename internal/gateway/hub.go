// Package gateway exposes the analysis core over HTTP and WebSocket: the
// snapshot and config API, plus a streaming hub that pushes alert events
// and delivery statuses to connected clients.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tibcore/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// envelope is the wire frame pushed to streaming clients.
type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	TS      string          `json:"ts"`
}

// Hub fans alert and delivery-status events out to WebSocket clients. Slow
// clients get messages dropped rather than stalling the bus.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	log     zerolog.Logger

	// Metrics hooks (optional).
	OnClientCount func(n int)
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		log:     log,
	}
}

// Run consumes the alert and status subscriptions until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, alerts <-chan model.AlertEvent, statuses <-chan model.DeliveryStatus) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-alerts:
			if !ok {
				alerts = nil
				continue
			}
			h.broadcast("alerts", ev.JSON(), ev.TS)
		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			data, err := json.Marshal(st)
			if err != nil {
				continue
			}
			h.broadcast("deliveries", data, st.TS)
		}
	}
}

func (h *Hub) broadcast(channel string, data []byte, ts time.Time) {
	frame, err := json.Marshal(envelope{
		Channel: channel,
		Data:    data,
		TS:      ts.Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			// Slow client; skip this frame for it.
		}
	}
	h.mu.RUnlock()
}

// HandleWS upgrades an HTTP request to a streaming client connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	c := &client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	h.addClient(c)
	go c.writePump()
	go c.readPump()
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info().Int("clients", n).Msg("ws client connected")
	if h.OnClientCount != nil {
		h.OnClientCount(n)
	}
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info().Int("clients", n).Msg("ws client disconnected")
	if h.OnClientCount != nil {
		h.OnClientCount(n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected streaming clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
