package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tagflow/internal/logging"
)

const (
	defaultClientBuffer = 64
	writeWait           = 10 * time.Second
)

// Envelope is the frame written to websocket clients.
type Envelope struct {
	Event Event     `json:"event"`
	Data  Payload   `json:"data"`
	Time  time.Time `json:"time"`
}

// Hub broadcasts events to connected websocket clients. A client whose buffer
// is full misses the event.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	buffer   int

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *hubClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub constructs a hub. buffer is the per-client queue depth.
func NewHub(logger *slog.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logging.NewComponentLogger(logger, "notifications.hub"),
		buffer:  buffer,
		clients: make(map[*hubClient]struct{}),
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	client := &hubClient{conn: conn, send: make(chan []byte, h.buffer)}
	if !h.register(client) {
		_ = conn.Close()
		return
	}
	h.logger.Debug("client connected", logging.String("remote", r.RemoteAddr))

	go h.writeLoop(client)
	h.readLoop(client)
}

func (h *Hub) register(c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	c.close()
}

// readLoop discards inbound frames; it exists to notice disconnects.
func (h *Hub) readLoop(c *hubClient) {
	defer h.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *hubClient) {
	defer c.conn.Close()
	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.logger.Debug("websocket write failed", logging.Error(err))
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// Publish queues the event for every connected client.
func (h *Hub) Publish(_ context.Context, event Event, payload Payload) error {
	frame, err := json.Marshal(Envelope{Event: event, Data: payload, Time: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.logger.Debug("client buffer full; event dropped", logging.String("event", string(event)))
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*hubClient]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}
