// Package ws bridges the signal bus to WebSocket clients so frontends can
// follow market lifecycle events live. Only public event data flows here;
// confidential magnitudes never reach the bus in the first place.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/miko-labs/futurify/internal/domain"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10 // must stay below pongWait
	maxFrameSize  = 4096
	clientBacklog = 256
	fanoutBacklog = 256
)

// eventChannels lists the bus channels the hub relays, one per engine event.
func eventChannels() []string {
	return []string{
		string(domain.EventDeposit),
		string(domain.EventMarketCreated),
		string(domain.EventBetPlaced),
		string(domain.EventMarketClosed),
	}
}

// upgrader accepts any Origin; CORS enforcement happens in the HTTP
// middleware chain before the upgrade.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// frame is a bus message tagged with the channel it arrived on, so the hub
// can route it only to clients subscribed to that channel.
type frame struct {
	origin  string
	payload []byte
}

// Hub fans engine events out from the signal bus to connected WebSocket
// clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	joins  chan *client
	leaves chan *client
	fanout chan frame

	bus       domain.SignalBus
	logger    *slog.Logger
	startedAt time.Time
}

// NewHub creates a WebSocket hub over the given signal bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:   make(map[*client]struct{}),
		joins:     make(chan *client),
		leaves:    make(chan *client),
		fanout:    make(chan frame, fanoutBacklog),
		bus:       bus,
		logger:    logger.With(slog.String("component", "ws_hub")),
		startedAt: time.Now().UTC(),
	}
}

// Run drives the hub until the context is cancelled: it subscribes to every
// event channel on the bus, then serializes joins, leaves, and fanout through
// a single loop.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range eventChannels() {
		go h.relay(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case c := <-h.joins:
			h.admit(c)
		case c := <-h.leaves:
			h.evict(c)
		case f := <-h.fanout:
			h.deliver(f)
		}
	}
}

func (h *Hub) admit(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client connected", slog.Int("total_clients", n))
}

func (h *Hub) evict(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))
}

func (h *Hub) deliver(f frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(f.origin) {
			continue
		}
		select {
		case c.send <- f.payload:
		default:
			// Full send buffer means the client stopped draining; the
			// event stream does not wait for it.
			h.logger.Warn("ws: dropping message for slow client")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// relay pipes one bus channel into the hub's fanout queue.
func (h *Hub) relay(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to channel",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: channel subscription closed",
					slog.String("channel", channel),
				)
				return
			}
			h.fanout <- frame{origin: channel, payload: data}
		}
	}
}

// HandleWS upgrades the request and hands the connection to the hub. New
// clients start subscribed to every event channel and narrow from there.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, clientBacklog),
		channels: make(map[string]bool),
	}
	for _, ch := range eventChannels() {
		c.channels[ch] = true
	}

	h.joins <- c
	c.greet()

	go c.writePump()
	go c.readPump()
}

// client is one WebSocket connection with its channel subscriptions.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]bool
}

// tuneRequest is the JSON frame a client sends to adjust which event
// channels it receives.
type tuneRequest struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

func (c *client) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

func (c *client) tune(req tuneRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range req.Channels {
		switch req.Action {
		case "subscribe":
			c.channels[ch] = true
		case "unsubscribe":
			delete(c.channels, ch)
		}
	}
}

// greet pushes a small JSON envelope so clients can immediately mark the
// connection as healthy even before any market event flows.
func (c *client) greet() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	msg, err := json.Marshal(map[string]any{
		"type": "status",
		"payload": map[string]any{
			"ws_connected":   true,
			"uptime_seconds": uptime,
			"channels":       eventChannels(),
		},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// readPump consumes inbound frames, which carry only subscription tuning;
// anything unparseable is ignored. It also services pongs to keep the read
// deadline moving.
func (c *client) readPump() {
	defer func() {
		c.hub.leaves <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}
		var req tuneRequest
		if err := json.Unmarshal(data, &req); err == nil && req.Action != "" {
			c.tune(req)
		}
	}
}

// writePump drains the send buffer onto the wire as JSON text frames and
// keeps the connection alive with periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
