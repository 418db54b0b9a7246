package preview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Hub
// ============================================================================
//
// The hub owns the set of preview viewers. Frames are rendered inside the
// hub loop from the current profile, so a viewer always sees curve_init
// before any curve_updated. A viewer that falls behind is never dropped:
// its queued curve_updated is replaced by the newest one, since only the
// latest curve matters.
//
// ============================================================================

// RenderFunc builds the websocket frame of the given message type from the
// current profile.
type RenderFunc func(typ string) ([]byte, error)

type Hub struct {
	logger *slog.Logger
	render RenderFunc

	register   chan *Client
	unregister chan *Client
	// publish holds at most one pending "curve changed" signal.
	publish chan struct{}

	mu      sync.Mutex
	clients map[*Client]struct{}

	// done is closed when Run returns.
	done chan struct{}
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, render RenderFunc) *Hub {
	return &Hub{
		logger:     logger,
		render:     render,
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		publish:    make(chan struct{}, 1),
		clients:    make(map[*Client]struct{}),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and curve changes until ctx is canceled, then
// disconnects every viewer.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Debug("preview hub starting")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("preview hub stopping")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.addClient(c)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case <-h.publish:
			h.sendUpdate()
		}
	}
}

// Publish tells the hub the curve changed. Signals that arrive while one is
// still pending are merged; the frame is rendered when the hub gets to it,
// so it always carries the newest profile.
func (h *Hub) Publish() {
	select {
	case h.publish <- struct{}{}:
	default:
	}
}

func (h *Hub) addClient(c *Client) {
	msg, err := h.render(TypeCurveInit)
	if err != nil {
		h.logger.Warn("preview render failed", "type", TypeCurveInit, "error", err)
		c.shutdown()
		return
	}
	c.box.put(frame{typ: TypeCurveInit, data: msg})

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("preview client connected", "remote_addr", c.remoteAddr, "clients", n)
}

func (h *Hub) sendUpdate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}

	msg, err := h.render(TypeCurveUpdated)
	if err != nil {
		h.logger.Warn("preview render failed", "type", TypeCurveUpdated, "error", err)
		return
	}
	for c := range h.clients {
		c.box.put(frame{typ: TypeCurveUpdated, data: msg})
	}
}

// registerClient hands c to the hub loop. It reports false if the hub
// already stopped.
func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// unregisterClient hands c to the hub loop, unless the hub already stopped.
func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Clients reports the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.shutdown()
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.shutdown()
		h.logger.Info("preview client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// ============================================================================
// Mailbox
// ============================================================================

type frame struct {
	typ  string
	data []byte
}

// mailbox holds the frames not yet written to one viewer. It never holds
// more than a curve_init and one curve_updated.
type mailbox struct {
	mu      sync.Mutex
	pending []frame
	closed  bool

	// ready is signaled whenever pending changes or the box closes.
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

// put queues f. A queued curve_updated is overwritten by a newer one.
// put on a closed mailbox is a no-op.
func (m *mailbox) put(f frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if n := len(m.pending); n > 0 && f.typ == TypeCurveUpdated && m.pending[n-1].typ == TypeCurveUpdated {
		m.pending[n-1] = f
	} else {
		m.pending = append(m.pending, f)
	}
	m.notify()
}

// take empties the mailbox. closed reports whether the viewer is being
// disconnected, in which case frames is nil.
func (m *mailbox) take() (frames []frame, closed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, true
	}
	frames, m.pending = m.pending, nil
	return frames, false
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.pending = nil
	m.notify()
}

func (m *mailbox) notify() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// ============================================================================
// Client
// ============================================================================

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// Client is one websocket viewer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	box  *mailbox

	remoteAddr string
	logger     *slog.Logger
}

// NewClient wraps an upgraded connection. Register it with the hub, then
// start its pumps.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		box:        newMailbox(),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// shutdown ends both pumps.
func (c *Client) shutdown() {
	c.box.close()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		c.logger.Debug("preview "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", ce.Code, "reason", ce.Text)
		return
	}
	c.logger.Debug("preview "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump drains the mailbox onto the connection and keeps it alive with
// pings. It returns on a write error or when the client is shut down.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.box.ready:
			frames, closed := c.box.take()
			if closed {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			for _, f := range frames {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
					c.logExit("writePump", err)
					c.hub.unregisterClient(c)
					return
				}
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				c.hub.unregisterClient(c)
				return
			}
		}
	}
}

// readPump discards incoming frames so pongs and close frames are handled.
// The viewer is unregistered when the connection goes away.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			c.hub.unregisterClient(c)
			return
		}
	}
}
