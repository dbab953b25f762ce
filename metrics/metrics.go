// Package metrics exposes the Prometheus instruments of report generation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	namespace = "csvgen"

	reportsRequested = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_requested_total",
			Help:      "Total number of report generations accepted",
		},
	)

	reportsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_finished_total",
			Help:      "Total number of report generations finished, by terminal status",
		},
		[]string{"status"},
	)

	reportsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reports_in_flight",
			Help:      "Report generations currently running or waiting for a slot",
		},
	)

	reportRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_rows_total",
			Help:      "Total number of rows written to generated reports",
		},
	)

	reportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_duration_seconds",
			Help:      "Duration of report generation in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
)

// ReportStarted records an accepted generation.
func ReportStarted() {
	reportsRequested.Inc()
	reportsInFlight.Inc()
}

// ReportFinished records the end of a generation started with ReportStarted.
func ReportFinished(status string, rows int, elapsed time.Duration) {
	reportsInFlight.Dec()
	reportsFinished.WithLabelValues(status).Inc()
	reportRows.Add(float64(rows))
	reportDuration.Observe(elapsed.Seconds())
}
