package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/windoze95/groceryplan-api/internal/models"
	"github.com/windoze95/groceryplan-api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRunner is a QueryRunner whose behaviour is set per test.
type fakeRunner struct {
	RunObservedFunc func(ctx context.Context, query string, observe service.OutcomeObserver) (*service.QueryResult, error)
}

func (f *fakeRunner) RunObserved(ctx context.Context, query string, observe service.OutcomeObserver) (*service.QueryResult, error) {
	return f.RunObservedFunc(ctx, query, observe)
}

// setupTestQueryHandler creates a QueryHandler with a running Hub.
func setupTestQueryHandler(runner *fakeRunner) *QueryHandler {
	hub := NewHub()
	go hub.Run()
	validate := func(q string) error {
		if strings.Contains(q, "forbidden") {
			return errors.New("query must be at most 10 characters")
		}
		return nil
	}
	return NewQueryHandler(hub, runner, validate, []string{"https://app.example.com"})
}

// newTestClient registers a Client with no real websocket.Conn. This works
// because the handler methods deliver through the Hub rather than Conn.
func newTestClient(hub *Hub, sessionID string) *Client {
	client := NewClient(hub, nil, sessionID)
	hub.Register <- client
	return client
}

// readMessage reads a single WSMessage from the client's Send channel with a
// short timeout to prevent tests from hanging.
func readMessage(t *testing.T, client *Client) WSMessage {
	t.Helper()
	select {
	case data := <-client.Send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("failed to unmarshal message from Send channel: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message on Send channel")
		return WSMessage{}
	}
}

// assertNoMoreMessages verifies nothing else is pending on the Send channel.
func assertNoMoreMessages(t *testing.T, client *Client) {
	t.Helper()
	select {
	case data := <-client.Send:
		t.Fatalf("unexpected extra message on Send channel: %s", string(data))
	case <-time.After(50 * time.Millisecond):
	}
}

func readError(t *testing.T, client *Client) ErrorPayload {
	t.Helper()
	msg := readMessage(t, client)
	if msg.Type != MsgTypeError {
		t.Fatalf("expected type %q, got %q", MsgTypeError, msg.Type)
	}
	var payload ErrorPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("failed to unmarshal ErrorPayload: %v", err)
	}
	return payload
}

func queryMessage(query string) []byte {
	payload, _ := json.Marshal(QueryPayload{Query: query})
	data, _ := json.Marshal(WSMessage{Type: MsgTypeQuery, Payload: payload})
	return data
}

func progressRunner() *fakeRunner {
	return &fakeRunner{
		RunObservedFunc: func(ctx context.Context, query string, observe service.OutcomeObserver) (*service.QueryResult, error) {
			observe(models.FetchOutcome{Candidate: models.CandidateURL{Index: 0, URL: "https://a.example/1"}, State: models.URLSkipped, Reason: "unsupported site"})
			observe(models.FetchOutcome{Candidate: models.CandidateURL{Index: 1, URL: "https://b.example/2"}, State: models.URLPersisted, RecipeID: 9})
			return &service.QueryResult{
				Intent:          models.EmptyIntent(),
				Recipes:         []*service.RecipeResponse{{ID: 9, Name: "Lentil Soup"}},
				RecipesFromWeb:  1,
				SearchPerformed: true,
			}, nil
		},
	}
}

func TestHandleQuery_StreamsProgressThenResult(t *testing.T) {
	h := setupTestQueryHandler(progressRunner())
	client := newTestClient(h.Hub, "session-1")

	h.handleMessage(client, queryMessage("vegan soup"))

	first := readMessage(t, client)
	if first.Type != MsgTypeProgress {
		t.Fatalf("expected type %q, got %q", MsgTypeProgress, first.Type)
	}
	var outcome models.FetchOutcome
	if err := json.Unmarshal(first.Payload, &outcome); err != nil {
		t.Fatalf("failed to unmarshal FetchOutcome: %v", err)
	}
	if outcome.State != models.URLSkipped || outcome.Reason != "unsupported site" {
		t.Errorf("unexpected first outcome %+v", outcome)
	}

	if second := readMessage(t, client); second.Type != MsgTypeProgress {
		t.Fatalf("expected type %q, got %q", MsgTypeProgress, second.Type)
	}

	last := readMessage(t, client)
	if last.Type != MsgTypeResult {
		t.Fatalf("expected type %q, got %q", MsgTypeResult, last.Type)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(last.Payload, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["recipes_from_web"] != float64(1) {
		t.Errorf("recipes_from_web = %v, want 1", result["recipes_from_web"])
	}
	assertNoMoreMessages(t, client)
}

func TestHandleQuery_SessionWatchersSeeProgress(t *testing.T) {
	h := setupTestQueryHandler(progressRunner())
	owner := newTestClient(h.Hub, "session-1")
	watcher := newTestClient(h.Hub, "session-1")
	stranger := newTestClient(h.Hub, "session-2")

	h.handleMessage(owner, queryMessage("vegan soup"))

	for _, want := range []string{MsgTypeProgress, MsgTypeProgress, MsgTypeResult} {
		if msg := readMessage(t, watcher); msg.Type != want {
			t.Fatalf("watcher: expected type %q, got %q", want, msg.Type)
		}
	}
	assertNoMoreMessages(t, stranger)
}

func TestHandleQuery_ErrorsGoOnlyToSender(t *testing.T) {
	h := setupTestQueryHandler(progressRunner())
	owner := newTestClient(h.Hub, "session-1")
	watcher := newTestClient(h.Hub, "session-1")

	h.handleMessage(owner, queryMessage(""))

	if got := readError(t, owner); got.Message != "query is required" {
		t.Errorf("unexpected error message: %q", got.Message)
	}
	assertNoMoreMessages(t, watcher)
}

func TestHandleQuery_ValidationRejected(t *testing.T) {
	h := setupTestQueryHandler(progressRunner())
	client := newTestClient(h.Hub, "session-1")

	h.handleMessage(client, queryMessage("something forbidden"))

	if got := readError(t, client); got.Message != "query must be at most 10 characters" {
		t.Errorf("unexpected error message: %q", got.Message)
	}
	assertNoMoreMessages(t, client)
}

func TestHandleQuery_SearchErrorCarriesRetryAfter(t *testing.T) {
	h := setupTestQueryHandler(&fakeRunner{
		RunObservedFunc: func(ctx context.Context, query string, observe service.OutcomeObserver) (*service.QueryResult, error) {
			return nil, &service.SearchError{Err: errors.New("quota exceeded")}
		},
	})
	client := newTestClient(h.Hub, "session-1")

	h.handleMessage(client, queryMessage("vegan soup"))

	got := readError(t, client)
	if got.RetryAfter != retryAfterSeconds {
		t.Errorf("RetryAfter = %d, want %d", got.RetryAfter, retryAfterSeconds)
	}
}

func TestHandleQuery_RunnerError(t *testing.T) {
	h := setupTestQueryHandler(&fakeRunner{
		RunObservedFunc: func(ctx context.Context, query string, observe service.OutcomeObserver) (*service.QueryResult, error) {
			return nil, errors.New("db gone")
		},
	})
	client := newTestClient(h.Hub, "session-1")

	h.handleMessage(client, queryMessage("vegan soup"))

	got := readError(t, client)
	if got.Message != "Error processing query" || got.RetryAfter != 0 {
		t.Errorf("unexpected error payload: %+v", got)
	}
}

func TestHandleQuery_OneQueryAtATime(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	h := setupTestQueryHandler(&fakeRunner{
		RunObservedFunc: func(ctx context.Context, query string, observe service.OutcomeObserver) (*service.QueryResult, error) {
			close(started)
			<-release
			return &service.QueryResult{Intent: models.EmptyIntent()}, nil
		},
	})
	client := newTestClient(h.Hub, "session-1")

	h.handleMessage(client, queryMessage("first"))
	<-started
	h.handleMessage(client, queryMessage("second"))

	if got := readError(t, client); got.Message != "a query is already running" {
		t.Errorf("unexpected error message: %q", got.Message)
	}

	close(release)
	if msg := readMessage(t, client); msg.Type != MsgTypeResult {
		t.Fatalf("expected type %q, got %q", MsgTypeResult, msg.Type)
	}
}

func TestHandleMessage_UnknownType(t *testing.T) {
	h := setupTestQueryHandler(progressRunner())
	client := newTestClient(h.Hub, "session-1")

	data, _ := json.Marshal(WSMessage{Type: "chat_message", Payload: json.RawMessage(`{}`)})
	h.handleMessage(client, data)

	if got := readError(t, client); got.Message != "unknown message type: chat_message" {
		t.Errorf("unexpected error message: %q", got.Message)
	}
}

func TestHandleMessage_InvalidJSON(t *testing.T) {
	h := setupTestQueryHandler(progressRunner())
	client := newTestClient(h.Hub, "session-1")

	h.handleMessage(client, []byte("not json"))

	if got := readError(t, client); got.Message != "invalid message format" {
		t.Errorf("unexpected error message: %q", got.Message)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com/"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://app.example.com", true},
		{"http://localhost:3000", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws/query", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := check(req); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}

	if !originChecker([]string{"*"})(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Error("wildcard should allow any origin")
	}
}

func TestHandleQuerySession_EndToEnd(t *testing.T) {
	h := setupTestQueryHandler(progressRunner())
	r := gin.New()
	r.GET("/ws/query", h.HandleQuerySession)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/query"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var connected WSMessage
	if err := conn.ReadJSON(&connected); err != nil {
		t.Fatalf("read connected: %v", err)
	}
	if connected.Type != MsgTypeConnected {
		t.Fatalf("expected type %q, got %q", MsgTypeConnected, connected.Type)
	}
	var session ConnectedPayload
	if err := json.Unmarshal(connected.Payload, &session); err != nil || session.SessionID == "" {
		t.Fatalf("expected a session id, got %s (%v)", connected.Payload, err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, queryMessage("vegan soup")); err != nil {
		t.Fatalf("write query: %v", err)
	}

	var types []string
	for len(types) < 3 {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		types = append(types, msg.Type)
	}
	if types[0] != MsgTypeProgress || types[1] != MsgTypeProgress || types[2] != MsgTypeResult {
		t.Errorf("message types = %v", types)
	}
}

func TestHandleQuerySession_UnknownSession(t *testing.T) {
	h := setupTestQueryHandler(progressRunner())
	r := gin.New()
	r.GET("/ws/query", h.HandleQuerySession)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/query?session_id=missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 response, got %v", resp)
	}
}
