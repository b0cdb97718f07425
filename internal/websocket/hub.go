// Package websocket runs the live-reload hub: browsers connect over a
// websocket and receive reload, stylesheet and build-error messages.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/validation"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second

	maxMessageSize = 512
	sendBuffer     = 16
)

// Message types understood by the reload client.
const (
	TypeReload = "reload"
	TypeCSS    = "css"
	TypeErrors = "errors"
)

// Message is sent to every connected browser.
type Message struct {
	Type      string               `json:"type"`
	Paths     []string             `json:"paths,omitempty"`
	Failures  []siteerrors.Failure `json:"failures,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// OriginValidator decides whether a browser origin may connect. requestHost
// is the Host header of the upgrade request.
type OriginValidator interface {
	IsAllowedOrigin(origin, requestHost string) bool
}

// AllowedHosts accepts origins whose host:port is in the list or equals the
// request host.
type AllowedHosts []string

func (a AllowedHosts) IsAllowedOrigin(origin, requestHost string) bool {
	hosts := []string(a)
	if requestHost != "" {
		hosts = append([]string{requestHost}, a...)
	}
	return validation.ValidateOrigin(origin, hosts) == nil
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected browsers and fans messages out to them.
type Hub struct {
	origins OriginValidator
	logger  logging.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*client

	broadcast  chan []byte
	register   chan *client
	unregister chan *websocket.Conn

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewHub starts a hub. It runs until Shutdown.
func NewHub(origins OriginValidator, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		origins:    origins,
		logger:     logger.WithComponent("reload"),
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client, 8),
		unregister: make(chan *websocket.Conn, 8),
		ctx:        ctx,
		cancel:     cancel,
	}
	go h.run()
	return h
}

// ServeHTTP upgrades a browser connection after checking its origin.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if !h.origins.IsAllowedOrigin(origin, r.Host) {
		h.logger.Warn(r.Context(), nil, "Rejected websocket origin", "origin", origin, "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// origin already checked above
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "Websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go h.writeTo(c)
	h.readFrom(c)
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.conn] = c
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug(h.ctx, "Browser connected", "clients", n)

		case conn := <-h.unregister:
			h.remove(conn, websocket.StatusNormalClosure, "")

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*websocket.Conn
			for conn, c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range slow {
				h.remove(conn, websocket.StatusPolicyViolation, "too slow")
			}

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	c, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		conn.Close(code, reason)
		h.logger.Debug(h.ctx, "Browser disconnected", "clients", n)
	}
}

// readFrom discards incoming messages until the browser goes away. Reading
// is required for the library to process pongs and close frames.
func (h *Hub) readFrom(c *client) {
	defer func() {
		select {
		case h.unregister <- c.conn:
		case <-h.ctx.Done():
		}
	}()
	for {
		if _, _, err := c.conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) writeTo(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(h.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		case <-h.ctx.Done():
			return
		}
	}
}

// Broadcast queues msg for every connected browser. Messages are dropped
// when the hub is shut down or its queue is full.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to encode reload message", "type", msg.Type)
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	default:
		h.logger.Warn(h.ctx, nil, "Reload queue full, dropping message", "type", msg.Type)
	}
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every browser and stops the hub.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.mu.Lock()
		clients := h.clients
		h.clients = make(map[*websocket.Conn]*client)
		h.mu.Unlock()

		for conn, c := range clients {
			close(c.send)
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		h.cancel()
	})
}
