// Package telemetry declares the asset service's Prometheus metrics,
// grounded directly on the teacher's internal/telemetry/metrics.go shape
// (package-level Collectors plus an All() registration helper).
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var PipelineOperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "assetsvc",
		Subsystem: "pipeline",
		Name:      "operations_total",
		Help:      "Total number of pipeline operations by verb and outcome.",
	},
	[]string{"operation", "outcome"},
)

var PipelineOperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "assetsvc",
		Subsystem: "pipeline",
		Name:      "operation_duration_seconds",
		Help:      "Pipeline operation duration in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	},
	[]string{"operation"},
)

var EventsHandledTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "assetsvc",
		Subsystem: "events",
		Name:      "handled_total",
		Help:      "Total number of lifecycle events handled by kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

var BackupSweepsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "assetsvc",
		Subsystem: "events",
		Name:      "backup_sweeps_total",
		Help:      "Total number of completed charging/periodic backup sweeps.",
	},
)

var InFlightOperations = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "assetsvc",
		Name:      "in_flight_operations",
		Help:      "Number of lifecycle event handlers currently executing.",
	},
)

var SessionsLive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "assetsvc",
		Subsystem: "session",
		Name:      "live",
		Help:      "Number of outstanding interactive-decrypt sessions.",
	},
)

// All returns every asset-service metric for registration with a
// prometheus.Registry.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		PipelineOperationsTotal,
		PipelineOperationDuration,
		EventsHandledTotal,
		BackupSweepsTotal,
		InFlightOperations,
		SessionsLive,
	}
}

// NewRegistry builds a Prometheus registry carrying the Go/process
// collectors plus every asset-service metric, grounded on the teacher's
// coretelemetry.NewMetricsRegistry helper.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
