package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one live connection. It is also the presence handle stored in
// the registry, so identity is the pointer.
type Client struct {
	ID uuid.UUID
	// AuthUserID is the user proven by the upgrade token, empty for
	// anonymous connections.
	AuthUserID string
	Send       chan []byte

	hub  *Hub
	conn *websocket.Conn

	mu         sync.Mutex
	closed     bool
	registered string
}

func NewClient(hub *Hub, conn *websocket.Conn, authUserID string, buffer int) *Client {
	return &Client{
		ID:         uuid.New(),
		AuthUserID: authUserID,
		Send:       make(chan []byte, buffer),
		hub:        hub,
		conn:       conn,
	}
}

// Push queues frame without blocking. It reports false when the queue is
// full or the client is closed.
func (c *Client) Push(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) setRegistered(userID string) {
	c.mu.Lock()
	c.registered = userID
	c.mu.Unlock()
}

// RegisteredAs returns the user id last registered on this connection.
func (c *Client) RegisteredAs() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.conn.Close()
	}()

	opts := c.hub.opts
	c.conn.SetReadLimit(opts.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("live connection read failed", "client_id", c.ID, "error", err)
			}
			return
		}
		c.hub.HandleFrame(c, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.logger.Debug("live connection write failed", "client_id", c.ID, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("live connection ping failed", "client_id", c.ID, "error", err)
				return
			}
		}
	}
}
