package transport

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// echoHandler sends every payload back and records the lifecycle events.
type echoHandler struct {
	mu           sync.Mutex
	connected    []domain.Connection
	messages     [][]byte
	disconnected chan domain.Connection
}

func newEchoHandler() *echoHandler {
	return &echoHandler{disconnected: make(chan domain.Connection, 16)}
}

func (h *echoHandler) OnConnect(conn domain.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = append(h.connected, conn)
}

func (h *echoHandler) OnMessage(_ context.Context, conn domain.Connection, payload []byte) {
	h.mu.Lock()
	h.messages = append(h.messages, payload)
	h.mu.Unlock()
	_ = conn.Send(payload)
}

func (h *echoHandler) OnDisconnect(conn domain.Connection) {
	h.disconnected <- conn
}

func (h *echoHandler) received() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func testConfig() Config {
	return Config{
		AllowedOrigins:          []string{"http://allowed.example"},
		MaxMessageSize:          512,
		RateLimitBurst:          100,
		RateLimitRefillInterval: time.Second,
		SendBuffer:              16,
	}
}

func startServer(t *testing.T, config Config) (*Server, *echoHandler, string) {
	t.Helper()
	handler := newEchoHandler()
	server := NewServer(logs.GetLoggerFromLevel(slog.LevelDebug), handler, config)
	httpServer := httptest.NewServer(server.Routes(nil))
	t.Cleanup(httpServer.Close)
	return server, handler, httpServer.URL
}

func dial(t *testing.T, baseURL string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	return websocket.DefaultDialer.Dial(url, header)
}

func TestServer_Echo_And_Disconnect(t *testing.T) {
	req := require.New(t)
	_, handler, baseURL := startServer(t, testConfig())

	// Given a connected client
	conn, _, err := dial(t, baseURL, nil)
	req.NoError(err)

	// When it sends two frames
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connect","content":"Alice"}`)))
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","content":"hi"}`)))

	// Then the replies arrive in order, one frame each
	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, first, err := conn.ReadMessage()
	req.NoError(err)
	req.JSONEq(`{"type":"connect","content":"Alice"}`, string(first))
	_, second, err := conn.ReadMessage()
	req.NoError(err)
	req.JSONEq(`{"type":"message","content":"hi"}`, string(second))

	// When the client leaves
	req.NoError(conn.Close())

	// Then the handler is told about that connection
	select {
	case gone := <-handler.disconnected:
		req.NotEmpty(gone.ID())
		req.Equal("127.0.0.1", gone.RemoteAddr())
	case <-time.After(2 * time.Second):
		req.Fail("OnDisconnect was not called")
	}
}

func TestServer_Origin_Policy(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{name: "no origin header", origin: "", ok: true},
		{name: "allowed origin", origin: "http://ALLOWED.example", ok: true},
		{name: "other origin", origin: "http://evil.example", ok: false},
		{name: "malformed origin", origin: "not a url", ok: false},
	}

	_, _, baseURL := startServer(t, testConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := dial(t, baseURL, header)
			if tt.ok {
				req.NoError(err)
				_ = conn.Close()
				return
			}
			req.ErrorIs(err, websocket.ErrBadHandshake)
			req.Equal(http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestServer_Rate_Limit_Discards(t *testing.T) {
	req := require.New(t)
	config := testConfig()
	config.RateLimitBurst = 2
	config.RateLimitRefillInterval = time.Hour
	_, handler, baseURL := startServer(t, config)

	conn, _, err := dial(t, baseURL, nil)
	req.NoError(err)
	defer conn.Close()

	for range 5 {
		req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","content":"spam"}`)))
	}
	// Only the first two frames are echoed, the others are dropped.
	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	for range 2 {
		_, _, err := conn.ReadMessage()
		req.NoError(err)
	}
	time.Sleep(100 * time.Millisecond)
	req.Equal(2, handler.received())
}

func TestServer_Oversized_Message_Closes_Connection(t *testing.T) {
	req := require.New(t)
	_, handler, baseURL := startServer(t, testConfig())

	conn, _, err := dial(t, baseURL, nil)
	req.NoError(err)
	defer conn.Close()

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 1024))))

	select {
	case <-handler.disconnected:
	case <-time.After(2 * time.Second):
		req.Fail("oversized message should close the connection")
	}
	req.Zero(handler.received())
}

func TestServer_Health(t *testing.T) {
	req := require.New(t)
	_, _, baseURL := startServer(t, testConfig())

	resp, err := http.Get(baseURL + "/healthz")
	req.NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Contains(string(body), "chat-relay is running")

	resp, err = http.Post(baseURL+"/ws", "text/plain", nil)
	req.NoError(err)
	_ = resp.Body.Close()
	req.Equal(http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_CloseAll(t *testing.T) {
	req := require.New(t)
	server, handler, baseURL := startServer(t, testConfig())

	var conns []*websocket.Conn
	for range 3 {
		conn, _, err := dial(t, baseURL, nil)
		req.NoError(err)
		conns = append(conns, conn)
	}
	req.Eventually(func() bool { return server.Connections() == 3 }, 2*time.Second, 10*time.Millisecond)

	// When the server closes every client
	req.NoError(server.CloseAll(2 * time.Second))

	// Then each client reads a close frame
	for _, conn := range conns {
		req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
		_, _, err := conn.ReadMessage()
		req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
		_ = conn.Close()
	}
	req.Zero(server.Connections())
	req.Len(handler.disconnected, 3)
}

func TestClient_Send_After_Close(t *testing.T) {
	req := require.New(t)
	client := &Client{id: "c1", send: make(chan []byte, 1), log: slog.Default()}

	req.NoError(client.Send([]byte("one")))

	// When the queue is full the client is closed
	req.ErrorIs(client.Send([]byte("two")), errors.ErrConnectionClosed)
	req.ErrorIs(client.Send([]byte("three")), errors.ErrConnectionClosed)
	req.NoError(client.Close())

	// And the queued payload is still drained in order
	payload, ok := <-client.send
	req.True(ok)
	req.Equal("one", string(payload))
	_, ok = <-client.send
	req.False(ok)
}
