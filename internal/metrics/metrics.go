// Package metrics provides Prometheus instrumentation for the chat service.
// It exposes gauges for connection and presence counts, counters for message
// throughput, and a histogram for message handling latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parley_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineUsers tracks the current number of authenticated online users.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parley_online_users",
		Help: "Current number of authenticated online users",
	})

	// MessagesTotal counts the messages processed, labeled by kind:
	// "room", "direct", "file", or "deleted".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"kind"})

	// MessageLatency records message handling latency in seconds, from frame
	// receipt to fan-out publish.
	MessageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parley_message_latency_seconds",
		Help:    "Message handling latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// DirectoryBroadcasts counts full user-directory pushes.
	DirectoryBroadcasts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parley_directory_broadcasts_total",
		Help: "Total number of user directory broadcasts",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		MessagesTotal,
		MessageLatency,
		DirectoryBroadcasts,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
