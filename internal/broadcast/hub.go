// Package broadcast pushes "re-fetch" notifications to every connected
// client over WebSocket. It carries no log data; clients react to any event
// by fetching the full log.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/OCAP2/bouncelog/pkg/streaming"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultSendBuffer = 64
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = 25 * time.Second
	maxMessageSize    = 1 << 16
)

var goingAway = ws.FormatCloseMessage(ws.CloseGoingAway, "shutting down")

// Notifier delivers an event to every connected client.
type Notifier interface {
	NotifyAll(event string, payload any)
}

// Option configures a Hub.
type Option func(*Hub)

// WithSendBuffer sets the per-client outbound queue length.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// Hub tracks connected clients and fans notifications out to them.
type Hub struct {
	upgrader   ws.Upgrader
	logger     *slog.Logger
	sendBuffer int

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool

	clientsGauge  metric.Int64ObservableGauge
	notifications metric.Int64Counter
	dropped       metric.Int64Counter
}

// client is one connection with a single write goroutine.
type client struct {
	id   string
	conn *ws.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// NewHub creates a hub. Metrics use the global OTel meter (no-op unless configured).
func NewHub(logger *slog.Logger, opts ...Option) (*Hub, error) {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:     logger.With("component", "broadcast"),
		sendBuffer: defaultSendBuffer,
		clients:    make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}

	m := meter()

	var err error

	h.clientsGauge, err = m.Int64ObservableGauge(
		"broadcast.clients",
		metric.WithDescription("Currently connected clients"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating clients gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(h.clientsGauge, int64(h.Clients()))
			return nil
		},
		h.clientsGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("registering clients callback: %w", err)
	}

	h.notifications, err = m.Int64Counter(
		"broadcast.notifications",
		metric.WithDescription("Total notifications fanned out"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating notifications counter: %w", err)
	}

	h.dropped, err = m.Int64Counter(
		"broadcast.dropped",
		metric.WithDescription("Total clients dropped for a full queue or write error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return h, nil
}

// ServeHTTP upgrades the request, registers the client, and queues the hello
// event that triggers the client's initial full fetch.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}

	hello, err := streaming.Encode(streaming.TypeHello, streaming.HelloPayload{ClientID: c.id})
	if err != nil {
		h.logger.Error("Failed to encode hello", "error", err)
		_ = conn.Close()
		return
	}
	c.send <- hello

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(ws.CloseMessage, goingAway, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Client connected", "client", c.id, "remote", r.RemoteAddr, "clients", count)

	go h.writeLoop(c)
	h.readLoop(c)
}

// NotifyAll encodes the event once and queues it for every client. A client
// whose queue is full is dropped; it refetches on reconnect.
func (h *Hub) NotifyAll(event string, payload any) {
	data, err := streaming.Encode(event, payload)
	if err != nil {
		h.logger.Error("Failed to encode notification", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.notifications.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", event)))

	for _, c := range targets {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			h.logger.Warn("Client queue full, dropping", "client", c.id, "event", event)
			h.drop(c, "queue full")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(ws.CloseMessage, goingAway, time.Now().Add(time.Second))
		c.stop()
	}
}

func (h *Hub) drop(c *client, reason string) {
	h.mu.Lock()
	_, present := h.clients[c.id]
	delete(h.clients, c.id)
	count := len(h.clients)
	h.mu.Unlock()

	c.stop()

	if present {
		h.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
		h.logger.Info("Client disconnected", "client", c.id, "reason", reason, "clients", count)
	}
}

// writeLoop drains the client's queue and keeps the connection alive with pings.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				h.drop(c, "write error")
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				h.logger.Debug("WebSocket write error", "client", c.id, "error", err)
				h.drop(c, "write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				h.drop(c, "write error")
				return
			}
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				h.drop(c, "ping failed")
				return
			}
		}
	}
}

// readLoop discards inbound frames and notices when the peer goes away.
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c, "closed")
			return
		}
	}
}
