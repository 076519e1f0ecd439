package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Handler_Exposes_Registered_Series(t *testing.T) {
	req := require.New(t)

	// Given metrics touched by the router
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.ConnectionsActive.Inc()
	metrics.MessagesReceived.WithLabelValues("connect").Inc()
	metrics.PersistenceErrors.WithLabelValues("append").Add(2)

	// When prometheus scrapes the handler
	server := httptest.NewServer(metrics.Handler())
	defer server.Close()
	resp, err := http.Get(server.URL)
	req.NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)

	// Then the series are named under the relay namespace
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Contains(string(body), "chat_relay_transport_connections_active 1")
	req.Contains(string(body), `chat_relay_router_messages_received_total{type="connect"} 1`)
	req.Contains(string(body), `chat_relay_history_errors_total{operation="append"} 2`)
}

func TestNewMetrics_Registers_Once_Per_Registry(t *testing.T) {
	req := require.New(t)
	registry := prometheus.NewRegistry()

	NewMetrics(registry)

	req.Panics(func() { NewMetrics(registry) })
	req.NotPanics(func() { NewMetrics(prometheus.NewRegistry()) })
}
