// Package metrics collects in-process counters for invocations, admin
// messaging, and relaying, and exposes them as JSON and Prometheus
// endpoints.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// TimeSeriesBucket holds one hour of invocation activity
type TimeSeriesBucket struct {
	Timestamp    time.Time
	Invocations  int64
	Errors       int64
	TotalLatency int64
	Count        int64 // for calculating avg
}

// Metrics collects and exposes hub runtime metrics
type Metrics struct {
	// Invocation metrics
	TotalInvocations   atomic.Int64
	SuccessInvocations atomic.Int64
	FailedInvocations  atomic.Int64

	// Latency metrics (in milliseconds)
	TotalLatencyMs atomic.Int64
	MinLatencyMs   atomic.Int64
	MaxLatencyMs   atomic.Int64

	// Admin messaging metrics
	AdminSent     atomic.Int64
	AdminReceived atomic.Int64
	AdminDropped  atomic.Int64

	// Cross-cluster relay metrics
	RelayDeliveries atomic.Int64
	RelayFailures   atomic.Int64

	// Per-connector metrics
	connMetrics sync.Map // connector ID -> *ConnectorMetrics

	// Time-series data (hourly buckets for last 24 hours)
	timeSeriesMu sync.RWMutex
	timeSeries   []*TimeSeriesBucket

	startTime time.Time
}

// ConnectorMetrics tracks metrics for a single connector
type ConnectorMetrics struct {
	Invocations atomic.Int64
	Successes   atomic.Int64
	Failures    atomic.Int64
	TotalMs     atomic.Int64
	MinMs       atomic.Int64
	MaxMs       atomic.Int64
}

// Global metrics instance
var global = &Metrics{startTime: time.Now()}

func init() {
	global.MinLatencyMs.Store(int64(^uint64(0) >> 1)) // Max int64
	global.initTimeSeries()
}

// initTimeSeries initializes time series buckets for the last 24 hours
func (m *Metrics) initTimeSeries() {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(time.Hour)
	m.timeSeries = make([]*TimeSeriesBucket, 24)
	for i := 0; i < 24; i++ {
		m.timeSeries[i] = &TimeSeriesBucket{
			Timestamp: now.Add(time.Duration(i-23) * time.Hour),
		}
	}
}

// Global returns the global metrics instance
func Global() *Metrics {
	return global
}

// StartTime returns the time when the metrics system was initialized
func StartTime() time.Time {
	return global.startTime
}

// RecordInvocation records the result of one remote function call. The
// kind is the connector's remote function type, used as a Prometheus
// label.
func (m *Metrics) RecordInvocation(connectorID, kind string, durationMs int64, success bool) {
	m.TotalInvocations.Add(1)

	if success {
		m.SuccessInvocations.Add(1)
	} else {
		m.FailedInvocations.Add(1)
	}

	m.TotalLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	// Per-connector metrics
	cm := m.getConnectorMetrics(connectorID)
	cm.Invocations.Add(1)
	if success {
		cm.Successes.Add(1)
	} else {
		cm.Failures.Add(1)
	}
	cm.TotalMs.Add(durationMs)
	updateMin(&cm.MinMs, durationMs)
	updateMax(&cm.MaxMs, durationMs)

	// Time series recording
	m.recordTimeSeries(durationMs, !success)

	// Prometheus bridge
	RecordPrometheusInvocation(connectorID, kind, durationMs, success)
}

// recordTimeSeries adds an invocation to the current time bucket
func (m *Metrics) recordTimeSeries(durationMs int64, isError bool) {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(time.Hour)

	// Check if we need to rotate buckets
	if len(m.timeSeries) > 0 {
		lastBucket := m.timeSeries[len(m.timeSeries)-1]
		hoursDiff := int(now.Sub(lastBucket.Timestamp).Hours())

		if hoursDiff > 0 {
			// Rotate buckets
			if hoursDiff >= 24 {
				// Reset all buckets
				m.timeSeries = make([]*TimeSeriesBucket, 24)
				for i := 0; i < 24; i++ {
					m.timeSeries[i] = &TimeSeriesBucket{
						Timestamp: now.Add(time.Duration(i-23) * time.Hour),
					}
				}
			} else {
				// Shift and add new buckets
				m.timeSeries = m.timeSeries[hoursDiff:]
				for i := 0; i < hoursDiff; i++ {
					m.timeSeries = append(m.timeSeries, &TimeSeriesBucket{
						Timestamp: lastBucket.Timestamp.Add(time.Duration(i+1) * time.Hour),
					})
				}
			}
		}
	}

	// Record to current bucket
	if len(m.timeSeries) > 0 {
		bucket := m.timeSeries[len(m.timeSeries)-1]
		bucket.Invocations++
		bucket.TotalLatency += durationMs
		bucket.Count++
		if isError {
			bucket.Errors++
		}
	}
}

// RecordAdminSent records an admin message published to the cluster
func (m *Metrics) RecordAdminSent(msgType string) {
	m.AdminSent.Add(1)
	RecordPrometheusAdminSent(msgType)
}

// RecordAdminReceived records an admin message delivered to the local handler
func (m *Metrics) RecordAdminReceived(msgType string) {
	m.AdminReceived.Add(1)
	RecordPrometheusAdminReceived(msgType)
}

// RecordAdminDropped records an admin message discarded before delivery
func (m *Metrics) RecordAdminDropped(reason string) {
	m.AdminDropped.Add(1)
	RecordPrometheusAdminDropped(reason)
}

// RecordRelayDelivered records a message accepted by a remote cluster
func (m *Metrics) RecordRelayDelivered() {
	m.RelayDeliveries.Add(1)
	RecordPrometheusRelay("delivered")
}

// RecordRelayAbandoned records a relay target given up on after the retry
func (m *Metrics) RecordRelayAbandoned() {
	m.RelayFailures.Add(1)
	RecordPrometheusRelay("abandoned")
}

func (m *Metrics) getConnectorMetrics(connectorID string) *ConnectorMetrics {
	if v, ok := m.connMetrics.Load(connectorID); ok {
		return v.(*ConnectorMetrics)
	}

	cm := &ConnectorMetrics{}
	cm.MinMs.Store(int64(^uint64(0) >> 1))
	actual, _ := m.connMetrics.LoadOrStore(connectorID, cm)
	return actual.(*ConnectorMetrics)
}

// Snapshot returns a point-in-time snapshot of all metrics
func (m *Metrics) Snapshot() map[string]interface{} {
	total := m.TotalInvocations.Load()
	avgLatency := float64(0)
	if total > 0 {
		avgLatency = float64(m.TotalLatencyMs.Load()) / float64(total)
	}

	minLatency := m.MinLatencyMs.Load()
	if minLatency == int64(^uint64(0)>>1) {
		minLatency = 0
	}

	result := map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"invocations": map[string]interface{}{
			"total":   total,
			"success": m.SuccessInvocations.Load(),
			"failed":  m.FailedInvocations.Load(),
		},
		"latency_ms": map[string]interface{}{
			"avg": avgLatency,
			"min": minLatency,
			"max": m.MaxLatencyMs.Load(),
		},
		"admin_messages": map[string]interface{}{
			"sent":     m.AdminSent.Load(),
			"received": m.AdminReceived.Load(),
			"dropped":  m.AdminDropped.Load(),
		},
		"relay": map[string]interface{}{
			"delivered": m.RelayDeliveries.Load(),
			"abandoned": m.RelayFailures.Load(),
		},
	}

	return result
}

// ConnectorStats returns per-connector metrics
func (m *Metrics) ConnectorStats() map[string]interface{} {
	result := make(map[string]interface{})

	m.connMetrics.Range(func(key, value interface{}) bool {
		connectorID := key.(string)
		cm := value.(*ConnectorMetrics)

		total := cm.Invocations.Load()
		avgMs := float64(0)
		if total > 0 {
			avgMs = float64(cm.TotalMs.Load()) / float64(total)
		}

		minMs := cm.MinMs.Load()
		if minMs == int64(^uint64(0)>>1) {
			minMs = 0
		}

		result[connectorID] = map[string]interface{}{
			"invocations": total,
			"successes":   cm.Successes.Load(),
			"failures":    cm.Failures.Load(),
			"avg_ms":      avgMs,
			"min_ms":      minMs,
			"max_ms":      cm.MaxMs.Load(),
		}
		return true
	})

	return result
}

// JSONHandler returns an HTTP handler that exposes metrics in JSON format
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		result := m.Snapshot()
		result["connectors"] = m.ConnectorStats()
		json.NewEncoder(w).Encode(result)
	})
}

// TimeSeries returns the time-series data for the last 24 hours
func (m *Metrics) TimeSeries() []map[string]interface{} {
	m.timeSeriesMu.RLock()
	defer m.timeSeriesMu.RUnlock()

	result := make([]map[string]interface{}, len(m.timeSeries))
	for i, bucket := range m.timeSeries {
		avgDuration := float64(0)
		if bucket.Count > 0 {
			avgDuration = float64(bucket.TotalLatency) / float64(bucket.Count)
		}
		result[i] = map[string]interface{}{
			"timestamp":    bucket.Timestamp.Format(time.RFC3339),
			"invocations":  bucket.Invocations,
			"errors":       bucket.Errors,
			"avg_duration": avgDuration,
		}
	}
	return result
}

// TimeSeriesHandler returns an HTTP handler for time-series metrics
func (m *Metrics) TimeSeriesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.TimeSeries())
	})
}

// Helper functions

func updateMin(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value >= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value <= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}
