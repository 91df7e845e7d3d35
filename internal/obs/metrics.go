// Package obs wires process metrics for the entity engine.
package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	opsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantcore_operations_total",
			Help: "Total service operations by outcome.",
		},
		[]string{"operation", "status"},
	)

	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantcore_operation_duration_seconds",
			Help:    "Service operation latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	materializeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantcore_materialize_runs_total",
			Help: "Bundle/manifest regeneration runs by trigger and outcome.",
		},
		[]string{"trigger", "status"},
	)

	materializeSkips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantcore_materialize_skipped_objects_total",
			Help: "Objects listed but missing on read during regeneration scans.",
		},
	)
)

// Init registers the tenantcore metrics with the default registry.
// Safe to call once per process.
func Init() {
	prometheus.MustRegister(opsTotal, opDuration, materializeRuns, materializeSkips)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler { return promhttp.Handler() }

// ObserveOp records the outcome and latency of one service operation.
func ObserveOp(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	opsTotal.WithLabelValues(operation, status).Inc()
	opDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveMaterialization records one regeneration run.
func ObserveMaterialization(trigger string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	materializeRuns.WithLabelValues(trigger, status).Inc()
}

// CountSkippedObject records a listed-but-missing object skipped by a scan.
func CountSkippedObject() { materializeSkips.Inc() }
