package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"github.com/windoze95/groceryplan-api/internal/models"
	"github.com/windoze95/groceryplan-api/internal/service"
	"go.uber.org/zap"
)

// WebSocket message types for the query protocol.
const (
	MsgTypeQuery     = "query"     // Client submits a free-text query
	MsgTypeConnected = "connected" // Connection confirmed
	MsgTypeProgress  = "progress"  // A candidate URL changed state
	MsgTypeResult    = "result"    // Final query result
	MsgTypeError     = "error"     // Error message
)

const (
	defaultQueryTimeout = 2 * time.Minute
	retryAfterSeconds   = 30
)

// WSMessage is the envelope for all messages sent over the query WebSocket.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// QueryPayload is sent by the client to start a query.
type QueryPayload struct {
	Query string `json:"query"`
}

// ConnectedPayload confirms a successful connection.
type ConnectedPayload struct {
	SessionID string `json:"session_id"`
}

// ErrorPayload carries an error message to the client.
type ErrorPayload struct {
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// QueryRunner runs a query and reports acquisition progress.
type QueryRunner interface {
	RunObserved(ctx context.Context, query string, observe service.OutcomeObserver) (*service.QueryResult, error)
}

// QueryHandler streams query progress over WebSocket connections. Every
// client of a session sees the progress and result of queries started in
// that session.
type QueryHandler struct {
	Hub      *Hub
	Runner   QueryRunner
	Validate func(string) error
	Timeout  time.Duration
	upgrader websocket.Upgrader
}

// NewQueryHandler returns a new QueryHandler. validate may be nil.
// allowedOrigins lists the browser origins allowed to connect; "*" allows any.
func NewQueryHandler(hub *Hub, runner QueryRunner, validate func(string) error, allowedOrigins []string) *QueryHandler {
	return &QueryHandler{
		Hub:      hub,
		Runner:   runner,
		Validate: validate,
		Timeout:  defaultQueryTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// originChecker allows requests without an Origin header, any configured
// origin and localhost for development.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimSuffix(strings.TrimSpace(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		return strings.HasPrefix(origin, "http://localhost:") || origin == "http://localhost"
	}
}

// HandleQuerySession upgrades an HTTP request to a WebSocket connection.
// A "session_id" query parameter joins an existing session; otherwise a new
// session is started.
func (h *QueryHandler) HandleQuerySession(c *gin.Context) {
	log := logger.FromGin(c)

	sessionID := c.Query("session_id")
	if sessionID != "" {
		if !h.Hub.HasSession(sessionID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
	} else {
		sessionID = uuid.New().String()
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	client := NewClient(h.Hub, conn, sessionID)
	h.Hub.Register <- client
	h.sendTo(client, MsgTypeConnected, ConnectedPayload{SessionID: sessionID})

	log.Info("query session attached", zap.String("session_id", sessionID))

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

// handleMessage parses an incoming WebSocket message and routes it to the
// appropriate handler.
func (h *QueryHandler) handleMessage(client *Client, data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(client, "invalid message format", 0)
		return
	}

	logger.Get().Debug("received ws message",
		zap.String("type", msg.Type),
		zap.String("session_id", client.SessionID),
	)

	switch msg.Type {
	case MsgTypeQuery:
		h.handleQuery(client, msg.Payload)
	default:
		h.sendError(client, "unknown message type: "+msg.Type, 0)
	}
}

// handleQuery validates a query and starts it in the background. A client
// runs one query at a time.
func (h *QueryHandler) handleQuery(client *Client, payload json.RawMessage) {
	var req QueryPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, "invalid query payload", 0)
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		h.sendError(client, "query is required", 0)
		return
	}
	if h.Validate != nil {
		if err := h.Validate(query); err != nil {
			h.sendError(client, err.Error(), 0)
			return
		}
	}

	if !client.running.CompareAndSwap(false, true) {
		h.sendError(client, "a query is already running", 0)
		return
	}
	go h.runQuery(client, query)
}

func (h *QueryHandler) runQuery(client *Client, query string) {
	defer client.running.Store(false)
	log := logger.With(zap.String("session_id", client.SessionID))

	ctx, cancel := context.WithTimeout(client.ctx, h.Timeout)
	defer cancel()

	result, err := h.Runner.RunObserved(ctx, query, func(o models.FetchOutcome) {
		h.publish(client.SessionID, MsgTypeProgress, o)
	})
	if err != nil {
		var searchErr *service.SearchError
		if errors.As(err, &searchErr) {
			log.Warn("ws query failed on web search", zap.Error(err))
			h.sendError(client, searchErr.Error(), retryAfterSeconds)
			return
		}
		log.Error("ws query failed", zap.Error(err))
		h.sendError(client, "Error processing query", 0)
		return
	}

	h.publish(client.SessionID, MsgTypeResult, result)
}

// publish sends a message to every client of a session.
func (h *QueryHandler) publish(sessionID, msgType string, payload interface{}) {
	if data, ok := encode(msgType, payload); ok {
		h.Hub.Broadcast <- &SessionMessage{SessionID: sessionID, Message: data}
	}
}

// sendTo sends a message to a single client.
func (h *QueryHandler) sendTo(client *Client, msgType string, payload interface{}) {
	if data, ok := encode(msgType, payload); ok {
		h.Hub.Broadcast <- &SessionMessage{SessionID: client.SessionID, Message: data, Target: client}
	}
}

// sendError sends an error message to a single client.
func (h *QueryHandler) sendError(client *Client, message string, retryAfter int) {
	h.sendTo(client, MsgTypeError, ErrorPayload{Message: message, RetryAfter: retryAfter})
}

func encode(msgType string, payload interface{}) ([]byte, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Get().Error("failed to encode ws payload", zap.String("type", msgType), zap.Error(err))
		return nil, false
	}
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: raw})
	if err != nil {
		return nil, false
	}
	return data, true
}
