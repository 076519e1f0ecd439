package runtime_test

import (
	"chat-relay/domain"
	"chat-relay/mocks"
	"chat-relay/observability"
	"chat-relay/protocol"
	"chat-relay/runtime"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// countingConn counts the frames it receives per reply type.
type countingConn struct {
	id       string
	mu       sync.Mutex
	received map[string]int
}

func newCountingConn(id string) *countingConn {
	return &countingConn{id: id, received: make(map[string]int)}
}

func (c *countingConn) ID() string         { return c.id }
func (c *countingConn) RemoteAddr() string { return "127.0.0.1" }
func (c *countingConn) Close() error       { return nil }

func (c *countingConn) Send(payload []byte) error {
	msg, err := protocol.Decode(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.received[msg.Type()]++
	c.mu.Unlock()
	return nil
}

func (c *countingConn) count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received[kind]
}

func TestRouter_LoadTest(t *testing.T) {
	req := require.New(t)

	// 1. Store is mocked so the disk does not bound the throughput
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	var appended atomic.Uint64
	store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ string, _ domain.StoredMessage) (string, error) {
			appended.Add(1)
			return "message-id", nil
		},
	).AnyTimes()

	log := slog.New(slog.DiscardHandler)
	ids := runtime.NewIDGenerator()
	identities := runtime.NewIdentityRegistry(ids)
	groups := runtime.NewGroupRegistry(identities, ids)
	router := runtime.NewRouter(log, identities, groups, store, nil, nil,
		observability.NewMetrics(prometheus.NewRegistry()), false)

	numClients := 50
	messagesPerClient := 40
	ctx := context.Background()

	// 2. Every client is bound before the traffic starts
	conns := make([]*countingConn, numClients)
	for i := range conns {
		conns[i] = newCountingConn(fmt.Sprintf("conn-%d", i))
		router.OnConnect(conns[i])
		router.OnMessage(ctx, conns[i], []byte(fmt.Sprintf(`{"type":"connect","content":"user-%d"}`, i)))
	}
	req.Equal(numClients, identities.Count())

	// 3. Traffic: one goroutine per connection, as the read pumps do
	payload, err := json.Marshal(map[string]string{"type": "message", "content": "load test message"})
	req.NoError(err)

	start := time.Now()
	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *countingConn) {
			defer wg.Done()
			for j := 0; j < messagesPerClient; j++ {
				router.OnMessage(ctx, conn, payload)
			}
		}(conn)
	}
	wg.Wait()
	duration := time.Since(start)

	// 4. Every message reached every client exactly once
	total := numClients * messagesPerClient
	req.Equal(uint64(total), appended.Load())
	for _, conn := range conns {
		req.Equal(total, conn.count(protocol.TypeMessage), conn.id)
		req.Zero(conn.count(protocol.TypeError), conn.id)
	}
	t.Logf("%d messages fanned out to %d clients in %v (%.0f msg/sec)",
		total, numClients, duration, float64(total)/duration.Seconds())
}
