package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Outgoing messages buffered per client before it is dropped as slow.
	sendBufferSize = 256
)

// Client is a single WebSocket connection attached to a query session.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	SessionID string

	// ctx is cancelled when the connection closes, stopping its query.
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
}

// NewClient creates a Client for conn in the given session.
func NewClient(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan []byte, sendBufferSize),
		SessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Hub tracks the clients of every live query session and delivers messages
// to them. All writes to a Client's Send channel go through the Hub.
type Hub struct {
	Sessions   map[string]map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan *SessionMessage
	mu         sync.RWMutex
}

// SessionMessage carries a message for the clients of one session.
type SessionMessage struct {
	SessionID string
	Message   []byte
	// Target restricts delivery to one client; nil means the whole session.
	Target *Client
}

// NewHub creates and returns a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		Sessions:   make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *SessionMessage),
	}
}

// Run handles register, unregister, and broadcast events. It should be
// launched as a goroutine.
func (h *Hub) Run() {
	log := logger.Get()

	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.Sessions[client.SessionID] == nil {
				h.Sessions[client.SessionID] = make(map[*Client]bool)
			}
			h.Sessions[client.SessionID][client] = true
			h.mu.Unlock()

			log.Info("client registered", zap.String("session_id", client.SessionID))

		case client := <-h.Unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

			log.Info("client unregistered", zap.String("session_id", client.SessionID))

		case msg := <-h.Broadcast:
			h.mu.Lock()
			for client := range h.Sessions[msg.SessionID] {
				if msg.Target != nil && client != msg.Target {
					continue
				}
				select {
				case client.Send <- msg.Message:
				default:
					log.Warn("dropping slow websocket client", zap.String("session_id", client.SessionID))
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// removeLocked detaches client and closes its Send channel. h.mu must be held.
func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.Sessions[client.SessionID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.Send)
	if client.cancel != nil {
		client.cancel()
	}
	if len(clients) == 0 {
		delete(h.Sessions, client.SessionID)
	}
}

// HasSession reports whether any client is attached to sessionID.
func (h *Hub) HasSession(sessionID string) bool {
	return h.ClientCount(sessionID) > 0
}

// ClientCount returns the number of clients attached to sessionID.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Sessions[sessionID])
}

// ReadPump reads messages from the WebSocket connection. It is intended to be
// run in a per-client goroutine. The provided handler is called for each
// incoming message.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.cancel()
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
			) {
				logger.Get().Warn("unexpected websocket close",
					zap.String("session_id", c.SessionID),
					zap.Error(err),
				)
			}
			break
		}
		handler(c, message)
	}
}

// WritePump sends messages from the Send channel to the WebSocket connection.
// It also sends periodic pings to keep the connection alive. It is intended to
// be run in a per-client goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
