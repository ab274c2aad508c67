package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for hub metrics
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	invocationsTotal   *prometheus.CounterVec
	adminSentTotal     *prometheus.CounterVec
	adminReceivedTotal *prometheus.CounterVec
	adminDroppedTotal  *prometheus.CounterVec
	relayTotal         *prometheus.CounterVec
	cacheRequestsTotal *prometheus.CounterVec

	// Histograms
	invocationDuration *prometheus.HistogramVec

	// Gauges
	uptime            prometheus.GaugeFunc
	activeInvocations prometheus.Gauge
	connectorThreads  *prometheus.GaugeVec
}

// Default histogram buckets for invocation duration (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}
	if namespace == "" {
		namespace = "meridian"
	}

	registry := prometheus.NewRegistry()
	// Register default Go and process collectors
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total remote function invocations by connector, function type, and status",
			},
			[]string{"connector", "type", "status"},
		),

		adminSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_messages_sent_total",
				Help:      "Total admin messages published to the cluster by message type",
			},
			[]string{"type"},
		),

		adminReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_messages_received_total",
				Help:      "Total admin messages delivered to the local handler by message type",
			},
			[]string{"type"},
		),

		adminDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_messages_dropped_total",
				Help:      "Total admin messages discarded before delivery",
			},
			[]string{"reason"},
		),

		relayTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_messages_total",
				Help:      "Cross-cluster relay outcomes per target endpoint",
			},
			[]string{"outcome"},
		),

		cacheRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),

		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_milliseconds",
				Help:      "Remote function invocation duration in milliseconds",
				Buckets:   buckets,
			},
			[]string{"connector", "type"},
		),

		activeInvocations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_invocations",
				Help:      "Number of currently in-flight invocation requests",
			},
		),

		connectorThreads: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connector_threads",
				Help:      "Concurrency budget of the active client generation by connector",
			},
			[]string{"connector"},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the hub daemon started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.invocationsTotal,
		pm.adminSentTotal,
		pm.adminReceivedTotal,
		pm.adminDroppedTotal,
		pm.relayTotal,
		pm.cacheRequestsTotal,
		pm.invocationDuration,
		pm.uptime,
		pm.activeInvocations,
		pm.connectorThreads,
	)

	promMetrics = pm
}

// RecordPrometheusInvocation records an invocation in Prometheus collectors
func RecordPrometheusInvocation(connectorID, kind string, durationMs int64, success bool) {
	if promMetrics == nil {
		return
	}

	status := "success"
	if !success {
		status = "failed"
	}
	promMetrics.invocationsTotal.WithLabelValues(connectorID, kind, status).Inc()
	promMetrics.invocationDuration.WithLabelValues(connectorID, kind).Observe(float64(durationMs))
}

// RecordPrometheusAdminSent records a published admin message
func RecordPrometheusAdminSent(msgType string) {
	if promMetrics == nil {
		return
	}
	promMetrics.adminSentTotal.WithLabelValues(msgType).Inc()
}

// RecordPrometheusAdminReceived records a locally delivered admin message
func RecordPrometheusAdminReceived(msgType string) {
	if promMetrics == nil {
		return
	}
	promMetrics.adminReceivedTotal.WithLabelValues(msgType).Inc()
}

// RecordPrometheusAdminDropped records a discarded admin message
func RecordPrometheusAdminDropped(reason string) {
	if promMetrics == nil {
		return
	}
	promMetrics.adminDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordPrometheusRelay records a relay outcome for one target endpoint
func RecordPrometheusRelay(outcome string) {
	if promMetrics == nil {
		return
	}
	promMetrics.relayTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup records a cache hit or miss for one tier
func RecordCacheLookup(tier, result string) {
	if promMetrics == nil {
		return
	}
	promMetrics.cacheRequestsTotal.WithLabelValues(tier, result).Inc()
}

// IncActiveInvocations increments the in-flight invocation gauge
func IncActiveInvocations() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeInvocations.Inc()
}

// DecActiveInvocations decrements the in-flight invocation gauge
func DecActiveInvocations() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeInvocations.Dec()
}

// SetConnectorThreads sets the concurrency budget gauge for a connector
func SetConnectorThreads(connectorID string, threads int) {
	if promMetrics == nil {
		return
	}
	promMetrics.connectorThreads.WithLabelValues(connectorID).Set(float64(threads))
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors)
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
