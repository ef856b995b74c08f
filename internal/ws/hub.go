package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"youapp/internal/auth"
	"youapp/internal/metrics"
	"youapp/internal/presence"

	"github.com/gorilla/websocket"
)

// TokenVerifier resolves a bearer token to the user id it was issued for.
type TokenVerifier interface {
	Subject(token string) (string, error)
}

type Options struct {
	// RequireAuth refuses upgrades without a valid bearer token.
	RequireAuth     bool
	SendBuffer      int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
}

func DefaultOptions() Options {
	return Options{
		RequireAuth:     true,
		SendBuffer:      256,
		PingInterval:    54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		MaxMessageBytes: 512 << 10,
	}
}

// Hub routes live events between connections through the presence
// registry. It never touches the message store: a live push is a
// best-effort, at-most-once notification.
type Hub struct {
	registry *presence.Registry[*Client]
	verifier TokenVerifier
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[*Client]struct{}
	shutdown bool
}

func NewHub(registry *presence.Registry[*Client], verifier TokenVerifier, opts Options, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry: registry,
		verifier: verifier,
		opts:     opts,
		logger:   logger.With("component", "live"),
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*Client]struct{}),
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authUserID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade live connection", "error", err)
		return
	}

	client := NewClient(h, conn, authUserID, h.opts.SendBuffer)
	if !h.attach(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	h.logger.Info("live connection opened", "client_id", client.ID, "auth_user_id", authUserID)

	go client.writePump()
	client.readPump()
}

func (h *Hub) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		if h.opts.RequireAuth {
			http.Error(w, "No token provided.", http.StatusUnauthorized)
			return "", false
		}
		return "", true
	}
	userID, err := h.verifier.Subject(token)
	if err != nil {
		h.logger.Debug("live connection refused", "error", err)
		http.Error(w, "Failed to authenticate token.", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func (h *Hub) attach(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.ConnectionOpened()
	return true
}

// disconnect drops the connection's presence entry, if it still owns one,
// and stops its write pump.
func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	_, known := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if userID, ok := h.registry.Unregister(c); ok {
		h.logger.Info("user went offline", "user_id", userID, "client_id", c.ID)
	}
	h.metrics.SetOnlineUsers(h.registry.Len())
	if known {
		h.metrics.ConnectionClosed()
	}
	c.Close()
}

// HandleFrame processes one inbound frame from c.
func (h *Hub) HandleFrame(c *Client, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		h.reject(c, "malformed frame")
		return
	}
	switch env.Event {
	case EventRegister:
		h.handleRegister(c, env.Data)
	case EventSendMessage:
		h.handleSendMessage(c, env.Data)
	default:
		h.reject(c, "unknown event "+env.Event)
	}
}

func (h *Hub) handleRegister(c *Client, data json.RawMessage) {
	var userID string
	if err := json.Unmarshal(data, &userID); err != nil || userID == "" {
		h.reject(c, "register requires a user id")
		return
	}
	if c.AuthUserID != "" && userID != c.AuthUserID {
		h.logger.Warn("register identity mismatch", "client_id", c.ID, "auth_user_id", c.AuthUserID, "user_id", userID)
		h.reject(c, "user id does not match token")
		return
	}
	// A connection speaks for one user; re-registering releases the old id
	// unless a newer connection already took it over.
	if previous := c.RegisteredAs(); previous != "" && previous != userID {
		h.registry.CompareAndDelete(previous, c)
	}
	h.registry.Register(userID, c)
	c.setRegistered(userID)
	h.metrics.SetOnlineUsers(h.registry.Len())
	h.logger.Info("user registered", "user_id", userID, "client_id", c.ID)
}

func (h *Hub) handleSendMessage(c *Client, data json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.reject(c, "sendMessage requires an object payload")
		return
	}
	if c.AuthUserID != "" && payload.SenderID != c.AuthUserID {
		h.logger.Warn("sendMessage identity mismatch", "client_id", c.ID, "auth_user_id", c.AuthUserID, "sender_id", payload.SenderID)
		h.reject(c, "senderId does not match token")
		return
	}
	h.Deliver(payload.SenderID, payload.RecipientID, data)
}

// Deliver pushes a newMessage frame carrying payload to the recipient and,
// when connected on a different handle, to the sender. Offline users are
// skipped silently. It returns the number of pushes queued.
func (h *Hub) Deliver(senderID, recipientID string, payload []byte) int {
	frame := newMessageFrame(payload)
	delivered := 0

	recipient, recipientOnline := h.registry.Lookup(recipientID)
	if recipientOnline && h.push(recipient, frame) {
		delivered++
	}
	sender, senderOnline := h.registry.Lookup(senderID)
	if senderOnline && (!recipientOnline || sender != recipient) && h.push(sender, frame) {
		delivered++
	}
	return delivered
}

func (h *Hub) push(c *Client, frame []byte) bool {
	if c.Push(frame) {
		h.metrics.PushDelivered()
		return true
	}
	h.metrics.PushDropped()
	h.logger.Debug("live push dropped", "client_id", c.ID, "user_id", c.RegisteredAs())
	return false
}

func (h *Hub) reject(c *Client, message string) {
	c.Push(errorFrame(message))
}

// Online reports whether userID is registered on this process.
func (h *Hub) Online(userID string) bool {
	return h.registry.IsOnline(userID)
}

// Shutdown closes every connection, clears the registry and refuses new
// connections.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.shutdown = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
		if c.conn != nil {
			c.conn.Close()
		}
	}
	h.registry.Clear()
	h.metrics.SetOnlineUsers(0)
	h.logger.Info("live hub stopped", "connections", len(clients))
}
