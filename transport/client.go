package transport

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one websocket connection. Inbound frames are handed to the
// handler one at a time; outbound payloads go through a FIFO queue drained
// by the write pump.
type Client struct {
	id      string
	conn    *websocket.Conn
	addr    string
	handler contract.ConnectionHandler
	limiter *rate.Limiter
	log     *slog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	send   chan []byte
}

var _ domain.Connection = (*Client)(nil)

func newClient(conn *websocket.Conn, remoteAddr string, handler contract.ConnectionHandler,
	config Config, log *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:      id,
		conn:    conn,
		addr:    hostOf(remoteAddr),
		handler: handler,
		limiter: newRateLimiter(config.RateLimitBurst, config.RateLimitRefillInterval),
		log:     log.With("conn", id),
		send:    make(chan []byte, config.SendBuffer),
		now:     time.Now,
	}
}

// hostOf strips the port of an "ip:port" remote address.
func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func (c *Client) ID() string         { return c.id }
func (c *Client) RemoteAddr() string { return c.addr }

// Send queues payload without blocking. A closed client or a full queue
// fails with errors.ErrConnectionClosed; a full queue also closes the client.
func (c *Client) Send(payload []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return errors.ErrConnectionClosed
	}
	select {
	case c.send <- payload:
		c.mu.RUnlock()
		return nil
	default:
	}
	c.mu.RUnlock()

	c.log.Warn("Outbound queue full, closing slow client", "addr", c.addr)
	_ = c.Close()
	return errors.ErrConnectionClosed
}

// Close stops the write pump, which sends a close frame and closes the socket.
// It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

// serve runs the write pump in the background and the read pump on the calling goroutine.
// It returns once the connection is gone and the handler has been told.
func (c *Client) serve(ctx context.Context, maxMessageSize int64) {
	c.handler.OnConnect(c)
	go c.writePump()
	c.readPump(ctx, maxMessageSize)
}

func (c *Client) readPump(ctx context.Context, maxMessageSize int64) {
	defer func() {
		c.handler.OnDisconnect(c)
		_ = c.Close()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("Error closing connection in readPump", "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err, maxMessageSize)
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		if !c.limiter.AllowN(c.now(), 1) {
			c.log.Info("Rate limit exceeded, discarding message", "addr", c.addr)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		c.handler.OnMessage(ctx, c, payload)
	}
}

func (c *Client) logReadError(err error, maxMessageSize int64) {
	switch {
	case stderrors.Is(err, websocket.ErrReadLimit):
		c.log.Info("Message exceeded maximum size", "addr", c.addr, "max", maxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.log.Debug("Client disconnected", "addr", c.addr)
	case stderrors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug("Client connection closed", "addr", c.addr, "error", err)
	default:
		c.log.Info("Websocket read error", "addr", c.addr, "error", err)
	}
}

// writePump is the only writer of the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("Error closing connection in writePump", "error", err)
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Debug("Error writing message", "error", err)
				}
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if stderrors.Is(err, net.ErrClosed) || stderrors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	return strings.Contains(err.Error(), "broken pipe")
}
