// Package metrics defines the Prometheus collectors of the matching engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "visualmatch"

// Engine Prometheus metrics.
var (
	ExtractorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractor_requests_total",
			Help:      "Total number of feature extractor requests",
		},
		[]string{"mode", "status"}, // mode: url / bytes
	)

	ExtractorRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extractor_request_duration_seconds",
			Help:      "Feature extractor request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"mode"},
	)

	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Total number of subject registrations",
		},
		[]string{"kind", "status"},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "similarity_queries_total",
			Help:      "Total number of similarity queries",
		},
		[]string{"kind", "status"},
	)

	QueryResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "similarity_query_results",
			Help:      "Number of matches returned per similarity query",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"kind"},
	)

	BackfillOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_outcomes_total",
			Help:      "Backfill item outcomes",
		},
		[]string{"kind", "status"},
	)
)

var registerOnce sync.Once

// Register registers all engine collectors with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ExtractorRequestsTotal,
			ExtractorRequestDuration,
			RegistrationsTotal,
			QueriesTotal,
			QueryResults,
			BackfillOutcomesTotal,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}

// Status maps an error to the status label used by the counters.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
