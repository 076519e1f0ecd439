// Package transport carries the relay protocol over websockets and exposes
// the HTTP and gRPC side endpoints (health, metrics, history inspector).
package transport

import (
	"chat-relay/contract"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config tunes every websocket connection.
type Config struct {
	AllowedOrigins          []string
	MaxMessageSize          int64
	RateLimitBurst          int
	RateLimitRefillInterval time.Duration
	SendBuffer              int
}

// Server upgrades HTTP requests into clients and keeps track of them for shutdown.
type Server struct {
	log      *slog.Logger
	handler  contract.ConnectionHandler
	config   Config
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

func NewServer(log *slog.Logger, handler contract.ConnectionHandler, config Config) *Server {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	origins := newOriginPolicy(config.AllowedOrigins, log)
	return &Server{
		log:     log,
		handler: handler,
		config:  config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		clients: make(map[*Client]struct{}),
	}
}

// Routes mounts /ws and /healthz, plus every extra handler given by path.
func (s *Server) Routes(extra map[string]http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWebSocket)
	mux.HandleFunc("/healthz", s.health)
	for path, handler := range extra {
		mux.Handle(path, handler)
	}
	return mux
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chat-relay is running, %d connections", s.Connections())
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := newClient(conn, r.RemoteAddr, s.handler, s.config, s.log)
	s.track(client)
	defer s.untrack(client)

	// The request context lives until this handler returns, which is when the read pump ends.
	client.serve(r.Context(), s.config.MaxMessageSize)
}

func (s *Server) track(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
	s.wg.Add(1)
}

func (s *Server) untrack(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
	s.wg.Done()
}

func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// CloseAll closes every client and waits, at most timeout, for their read pumps to end.
func (s *Server) CloseAll(timeout time.Duration) error {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info(fmt.Sprintf("Closed %d client connections", len(clients)))
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%d connections still open after %s", s.Connections(), timeout)
	}
}
