package origintest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 5 * time.Second
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   1024,
	EnableCompression: true,
	CheckOrigin:       func(r *http.Request) bool { return true },
}

// conn is one live feed subscriber of the fake origin.
type conn struct {
	hub    *hub
	ws     *websocket.Conn
	send   chan []byte
	connID string
}

// hub fans chunk messages out to every connected subscriber.
type hub struct {
	mu         sync.RWMutex
	conns      map[*conn]bool
	register   chan *conn
	unregister chan *conn
	broadcast  chan []byte
	logger     *zap.Logger
}

func newHub(logger *zap.Logger) *hub {
	return &hub{
		conns:      make(map[*conn]bool),
		register:   make(chan *conn),
		unregister: make(chan *conn),
		broadcast:  make(chan []byte, 256),
		logger:     logger,
	}
}

// run processes hub events until ctx is cancelled.
func (h *hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.conns[c] = true
			h.mu.Unlock()
			h.logger.Debug("subscriber registered", zap.String("connID", c.connID))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.conns[c]; ok {
				delete(h.conns, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Debug("subscriber unregistered", zap.String("connID", c.connID))

		case payload := <-h.broadcast:
			h.mu.RLock()
			for c := range h.conns {
				select {
				case c.send <- payload:
				default:
					go func(c *conn) { h.unregister <- c }(c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		close(c.send)
		delete(h.conns, c)
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// dropAll closes every subscriber socket without a close handshake.
func (h *hub) dropAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		_ = c.ws.Close()
	}
}

func (h *hub) serveWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &conn{
		hub:    h,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		connID: uuid.New().String(),
	}

	select {
	case h.register <- c:
	case <-ctx.Done():
		_ = ws.Close()
		return
	}

	go c.writePump()
	go c.readPump(ctx)
}

// readPump drains control frames so pings are answered, and unregisters on exit.
func (c *conn) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-ctx.Done():
		}
		_ = c.ws.Close()
	}()

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *conn) writePump() {
	defer func() { _ = c.ws.Close() }()

	for message := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}
