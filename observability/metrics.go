// Package observability exposes the relay's prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_relay"

// Metrics contains every counter the router and the transport update.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	UsersActive       prometheus.Gauge
	ChatsTotal        prometheus.Gauge
	MessagesReceived  *prometheus.CounterVec
	MessagesRejected  *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	PersistenceErrors *prometheus.CounterVec
	HandleDuration    *prometheus.HistogramVec
	ProcessRSS        prometheus.Gauge
	ProcessCPU        prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics creates the metrics and registers them on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connections_active",
			Help:      "Number of open transport connections",
		}),
		UsersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "users_active",
			Help:      "Number of connections bound to a user",
		}),
		ChatsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "chats_total",
			Help:      "Number of private and group chats created since startup",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "messages_received_total",
			Help:      "Inbound protocol messages by type",
		}, []string{"type"}),
		MessagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "messages_rejected_total",
			Help:      "Inbound protocol messages answered with an error reply",
		}, []string{"reply"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "deliveries_total",
			Help:      "Outbound payloads handed to the transport (status=sent|dropped)",
		}, []string{"status"}),
		PersistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "errors_total",
			Help:      "Failed history store operations",
		}, []string{"operation"}),
		HandleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling one inbound message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		ProcessRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "resident_memory_bytes",
			Help:      "Resident memory of the relay as last sampled by the stats worker",
		}),
		ProcessCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "cpu_percent",
			Help:      "CPU usage of the relay as last sampled by the stats worker",
		}),
		gatherer: registry,
	}

	registry.MustRegister(
		m.ConnectionsActive,
		m.UsersActive,
		m.ChatsTotal,
		m.MessagesReceived,
		m.MessagesRejected,
		m.Deliveries,
		m.PersistenceErrors,
		m.HandleDuration,
		m.ProcessRSS,
		m.ProcessCPU,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
