package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"epics/internal/domain"
	"epics/internal/observability"
	"epics/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	clientSendSize = 32
)

// Message types pushed to page clients.
const (
	MessageState  = "state"
	MessageNotice = "notice"
)

// Message is a server push to the page.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans controller updates out to connected pages.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func newHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameHost,
		},
		logger: logger,
	}
}

// sameHost accepts requests without Origin and requests from the page itself.
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func encode(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Data: raw})
}

func (h *Hub) onState(s session.Snapshot) {
	h.broadcast(MessageState, s)
}

func (h *Hub) onNotice(n domain.Notice) {
	h.broadcast(MessageNotice, n)
}

func (h *Hub) broadcast(msgType string, data any) {
	msg, err := encode(msgType, data)
	if err != nil {
		h.logger.Error("encode push", zap.String("type", msgType), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Slow reader: drop it, the page reconnects and reloads state.
			h.removeLocked(c)
			h.logger.Warn("dropping slow page client", zap.String("remote_addr", c.conn.RemoteAddr().String()))
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	observability.UpdateUIClients(1)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	observability.UpdateUIClients(-1)
}

// Len returns the number of connected pages.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// serve upgrades the request and streams updates, starting with initial.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, initial session.Snapshot) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	first, err := encode(MessageState, initial)
	if err != nil {
		conn.Close()
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendSize)}
	c.send <- first
	h.add(c)

	h.logger.Debug("page connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards client frames and detects disconnects.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("page connection closed", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
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
