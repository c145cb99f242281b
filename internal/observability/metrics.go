package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the relay.
type Metrics struct {
	ActiveConnections  prometheus.Gauge
	ConnectionEvents   *prometheus.CounterVec
	RelayMessages      *prometheus.CounterVec
	UpstreamEvents     *prometheus.CounterVec
	UpstreamReconnects prometheus.Counter
	BroadcastErrors    prometheus.Counter
	EnrichmentOutcomes *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of connected downstream clients.",
		}),
		ConnectionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_events_total",
			Help:      "Downstream connection events by type.",
		}, []string{"event"}),
		RelayMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_messages_total",
			Help:      "Relay messages by direction and type.",
		}, []string{"direction", "type"}),
		UpstreamEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_events_total",
			Help:      "Upstream frames by kind (text, binary, parse_error).",
		}, []string{"kind"}),
		UpstreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_reconnects_total",
			Help:      "Upstream reconnect attempts.",
		}),
		BroadcastErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_errors_total",
			Help:      "Per-connection send failures during broadcast.",
		}),
		EnrichmentOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_outcomes_total",
			Help:      "Profile enrichment fetches by outcome (full, partial, minimal).",
		}, []string{"outcome"}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
