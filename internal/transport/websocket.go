// ABOUTME: WebSocket implementation of the Transport interface using gorilla/websocket
// ABOUTME: Manages per-connection write pumps, JSON event framing, and room broadcast

package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocket timeouts.
const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 1 << 20

	// outboundQueueSize bounds the per-connection send queue. A connection
	// that cannot drain its queue is disconnected rather than allowed to
	// stall broadcasts for the whole room.
	outboundQueueSize = 64
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// frame is the wire shape for every outbound event.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// wsConn is one connected websocket client.
type wsConn struct {
	id       string
	conn     *websocket.Conn
	outbound chan []byte
	closed   chan struct{}
	closeOne sync.Once
}

// WSTransport implements Transport over gorilla websockets. It is an
// http.Handler; mount it on the route clients connect to.
type WSTransport struct {
	mu       sync.RWMutex
	conns    map[string]*wsConn
	rooms    *Rooms
	handlers Handlers
	logger   *slog.Logger
}

// NewWSTransport creates a websocket transport. Pass nil logger for default.
func NewWSTransport(logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSTransport{
		conns:  make(map[string]*wsConn),
		rooms:  NewRooms(),
		logger: logger.With("component", "transport"),
	}
}

// SetHandlers registers lifecycle callbacks.
func (t *WSTransport) SetHandlers(h Handlers) {
	t.handlers = h
}

// ServeHTTP upgrades the request to a websocket and runs the connection
// until it closes.
func (t *WSTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConn{
		id:       uuid.New().String(),
		conn:     ws,
		outbound: make(chan []byte, outboundQueueSize),
		closed:   make(chan struct{}),
	}

	t.mu.Lock()
	t.conns[c.id] = c
	t.mu.Unlock()

	t.logger.Info("connection opened", "connection_id", c.id, "remote", r.RemoteAddr)

	if t.handlers.OnConnect != nil {
		t.handlers.OnConnect(c.id)
	}

	go t.writePump(c)
	t.readPump(c)
}

// readPump reads inbound messages until the connection dies, then tears it down.
func (t *WSTransport) readPump(c *wsConn) {
	defer t.teardown(c)

	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Debug("read error", "connection_id", c.id, "error", err)
			}
			return
		}
		if t.handlers.OnMessage != nil {
			t.handlers.OnMessage(c.id, message)
		}
	}
}

// writePump drains the outbound queue and keeps the connection alive with pings.
func (t *WSTransport) writePump(c *wsConn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.outbound:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// teardown removes a connection, leaves its rooms, and fires OnDisconnect once.
func (t *WSTransport) teardown(c *wsConn) {
	c.closeOne.Do(func() {
		close(c.closed)
		c.conn.Close()

		t.mu.Lock()
		delete(t.conns, c.id)
		t.mu.Unlock()
		t.rooms.LeaveAll(c.id)

		t.logger.Info("connection closed", "connection_id", c.id)

		if t.handlers.OnDisconnect != nil {
			t.handlers.OnDisconnect(c.id)
		}
	})
}

// Send emits one event to a single connection.
func (t *WSTransport) Send(connectionID, event string, payload any) error {
	t.mu.RLock()
	c, ok := t.conns[connectionID]
	t.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}
	return t.enqueue(c, event, payload)
}

// Broadcast emits one event to every connection in a room.
func (t *WSTransport) Broadcast(room, event string, payload any) error {
	msg, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}

	for _, id := range t.rooms.Members(room) {
		t.mu.RLock()
		c, ok := t.conns[id]
		t.mu.RUnlock()
		if !ok {
			continue
		}
		t.enqueueRaw(c, msg)
	}
	return nil
}

// JoinRoom adds a connection to a room.
func (t *WSTransport) JoinRoom(connectionID, room string) {
	t.rooms.Join(connectionID, room)
}

// LeaveRoom removes a connection from a room.
func (t *WSTransport) LeaveRoom(connectionID, room string) {
	t.rooms.Leave(connectionID, room)
}

// Disconnect closes a connection server-side.
func (t *WSTransport) Disconnect(connectionID string) error {
	t.mu.RLock()
	c, ok := t.conns[connectionID]
	t.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}
	t.teardown(c)
	return nil
}

// Rooms exposes room membership, used by tests and the health endpoint.
func (t *WSTransport) Rooms() *Rooms {
	return t.rooms
}

func (t *WSTransport) enqueue(c *wsConn, event string, payload any) error {
	msg, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	t.enqueueRaw(c, msg)
	return nil
}

// enqueueRaw queues an encoded frame; a connection with a full queue is
// dropped so one slow client cannot stall the room.
func (t *WSTransport) enqueueRaw(c *wsConn, msg []byte) {
	select {
	case c.outbound <- msg:
	case <-c.closed:
	default:
		t.logger.Warn("outbound queue full, disconnecting slow client",
			"connection_id", c.id)
		t.teardown(c)
	}
}

func encodeFrame(event string, payload any) ([]byte, error) {
	msg, err := json.Marshal(frame{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", event, err)
	}
	return msg, nil
}
