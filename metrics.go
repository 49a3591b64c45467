package providers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the provider transport.
type Metrics struct {
	// Request pipeline metrics
	RequestsTotal    *prometheus.CounterVec
	RequestsFailed   *prometheus.CounterVec
	RequestsRejected prometheus.Counter
	PendingRequests  prometheus.Gauge

	// Pushed traffic metrics
	NotificationsTotal prometheus.Counter
	SnapshotsTotal     prometheus.Counter

	// Diagnostics
	ConsistencyWarnings prometheus.Counter

	// Lifecycle metrics
	Connected        prometheus.Gauge
	DisconnectsTotal *prometheus.CounterVec
	DroppedResponses prometheus.Counter
}

// NewMetrics initializes and registers metrics on the default
// registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry initializes and registers metrics with a
// custom registry. A nil registry falls back to the default registerer.
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "The total number of RPC requests dispatched, by method",
		}, []string{"method"}),
		RequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_requests_failed_total",
			Help: "The total number of RPC requests that resolved with an error, by method",
		}, []string{"method"}),
		RequestsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "provider_requests_rejected_total",
			Help: "The total number of requests rejected locally before reaching the transport",
		}),
		PendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "provider_pending_requests",
			Help: "The current number of requests awaiting a response",
		}),
		NotificationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "provider_notifications_total",
			Help: "The total number of unsolicited notifications received",
		}),
		SnapshotsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "provider_state_snapshots_total",
			Help: "The total number of pushed state snapshots applied",
		}),
		ConsistencyWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "provider_consistency_warnings_total",
			Help: "The total number of detected state consistency anomalies",
		}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "provider_connected",
			Help: "Whether the provider transport is currently connected (1) or not (0)",
		}),
		DisconnectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_disconnects_total",
			Help: "The total number of terminal disconnects, by origin (remote or local)",
		}, []string{"origin"}),
		DroppedResponses: factory.NewCounter(prometheus.CounterOpts{
			Name: "provider_dropped_responses_total",
			Help: "The total number of responses dropped because no request was pending for their id",
		}),
	}
}

// noopMetrics returns a Metrics instance backed by a private registry,
// used when the host application did not supply one.
func noopMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}
