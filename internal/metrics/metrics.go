// Package metrics provides Prometheus instrumentation for the chat gateway.
// It exposes gauges for connection counts, counters for message outcomes,
// and histograms for send latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of live WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_total",
		Help: "Current number of live WebSocket connections",
	})

	// AuthenticatedSessions tracks connections that have passed the
	// authenticate gate.
	AuthenticatedSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_authenticated_sessions",
		Help: "Current number of authenticated connections",
	})

	// AuthFailuresTotal counts rejected authenticate attempts.
	AuthFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_auth_failures_total",
		Help: "Total number of rejected authenticate attempts",
	})

	// MessagesTotal counts send-message outcomes, labeled by result:
	// "persisted", "broadcast", "rejected", or "failed".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total number of send-message events by outcome",
	}, []string{"result"})

	// SendLatency records end-to-end send-message handling latency in
	// seconds (parse to broadcast).
	SendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_send_latency_seconds",
		Help:    "send-message handling latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// ResolveConflictsTotal counts unique-constraint conflicts recovered
	// during lazy conversation creation.
	ResolveConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_resolve_conflicts_total",
		Help: "Conversation creation races recovered via re-query",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		AuthenticatedSessions,
		AuthFailuresTotal,
		MessagesTotal,
		SendLatency,
		ResolveConflictsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
