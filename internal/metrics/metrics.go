// Package metrics holds the Prometheus collectors of the push server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "pushd"

// Metrics are registered once at startup and passed to the components that
// record them.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	ActiveConnections prometheus.Gauge
	SessionsEnded     prometheus.Counter
	MessagesSent      *prometheus.CounterVec
	DeliveryFailures  *prometheus.CounterVec
	MessagesSkipped   *prometheus.CounterVec
	UnicastErrors     *prometheus.CounterVec
	InboundDropped    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of sessions with a controller.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of open push sockets.",
		}),
		SessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "ended_total",
			Help:      "Total number of sessions that lost their last connection.",
		}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "messages_sent_total",
			Help:      "Messages delivered to a connection, by message type.",
		}, []string{"type"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "delivery_failures_total",
			Help:      "Per-connection multicast delivery failures, by message type.",
		}, []string{"type"}),
		MessagesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "messages_skipped_total",
			Help:      "Sends withheld from legacy clients, by message type.",
		}, []string{"type"}),
		UnicastErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "unicast_errors_total",
			Help:      "Unicast commands that could not be delivered, by reason.",
		}, []string{"reason"}),
		InboundDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "inbound_dropped_total",
			Help:      "Inbound client messages dropped by the rate limiter.",
		}),
	}

	reg.MustRegister(
		m.ActiveSessions,
		m.ActiveConnections,
		m.SessionsEnded,
		m.MessagesSent,
		m.DeliveryFailures,
		m.MessagesSkipped,
		m.UnicastErrors,
		m.InboundDropped,
	)
	return m
}

// NewNoop returns metrics bound to a throwaway registry, for tests and tools
// that do not expose /metrics.
func NewNoop() *Metrics {
	return New(prometheus.NewRegistry())
}
