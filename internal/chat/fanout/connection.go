package fanout

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	pingPeriod    = 30 * time.Second
	pongWait      = 60 * time.Second
	maxFrameSize  = 64 << 10
	defaultBuffer = 128
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the socket is open to any origin, like the REST API
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Connection wraps a websocket and coordinates outbound writes via a buffered channel.
type Connection struct {
	id     string
	userID string

	ws   *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func NewConnection(userID string, ws *websocket.Conn, buffer int) *Connection {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Connection{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (c *Connection) ID() string     { return c.id }
func (c *Connection) UserID() string { return c.userID }

// Start launches the write loop. It must be called exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery. A full buffer closes the connection.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		c.closeWith(websocket.CloseGoingAway, "send buffer full")
		return ErrBufferFull
	}
}

func (c *Connection) Close() {
	c.closeWith(websocket.CloseNormalClosure, "")
}

func (c *Connection) closeWith(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// ReadLoop feeds client frames to the hub until the peer goes away.
func (c *Connection) ReadLoop(ctx context.Context, hub *Hub, log *slog.Logger) {
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("socket read failed", "connection_id", c.id, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if err := hub.HandleInbound(ctx, frame); err != nil {
			log.Debug("inbound frame ignored", "connection_id", c.id, "error", err)
		}
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}

// ServeWebSocket upgrades the request and keeps the connection attached to
// hub until the client disconnects. userID may be empty.
func ServeWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, userID string, buffer int, log *slog.Logger) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response
		log.Debug("websocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(userID, ws, buffer)
	if err := hub.Attach(conn); err != nil {
		conn.closeWith(websocket.CloseGoingAway, "server shutting down")
		return
	}
	conn.Start()
	defer func() {
		hub.Detach(conn)
		conn.Close()
	}()

	conn.ReadLoop(r.Context(), hub, log)
}

var _ Subscriber = (*Connection)(nil)
