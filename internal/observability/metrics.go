package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	apiRequestsTotal    *prometheus.CounterVec
	apiLatencySeconds   *prometheus.HistogramVec
	apiErrorsTotal      *prometheus.CounterVec
	resultsProcessed    *prometheus.CounterVec
	resultScores        prometheus.Histogram
	duplicateDetections prometheus.Counter
	registryChanges     *prometheus.CounterVec
	reEvaluatedResults  *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	streamClientsActive prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the grader.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_api_requests_total",
			Help: "Total number of grading API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_api_latency_seconds",
			Help:    "Latency distribution for grading API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_api_errors_total",
			Help: "Total number of error responses returned by grading endpoints.",
		}, []string{"method", "route", "status"})

		resultsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_results_processed_total",
			Help: "Build results processed, partitioned by source and outcome.",
		}, []string{"source", "outcome"})

		resultScores = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grader_result_score",
			Help:    "Distribution of computed result scores.",
			Buckets: []float64{0, 10, 25, 50, 75, 90, 100},
		})

		duplicateDetections = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grader_duplicate_test_case_detections_total",
			Help: "Results in which duplicate test case names were detected.",
		})

		registryChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_test_case_registry_changes_total",
			Help: "Test case registry writes, partitioned by trigger.",
		}, []string{"trigger"})

		reEvaluatedResults = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_re_evaluated_results_total",
			Help: "Results re-scored after a test case change.",
		}, []string{"outcome"})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_notifications_published_total",
			Help: "Notifications delivered to live subscribers.",
		}, []string{"type"})

		streamClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grader_stream_clients_active",
			Help: "Currently connected live stream clients.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			resultsProcessed,
			resultScores,
			duplicateDetections,
			registryChanges,
			reEvaluatedResults,
			notificationsTotal,
			streamClientsActive,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// ResultsProcessed counts processed build results.
func ResultsProcessed() *prometheus.CounterVec {
	RegisterMetrics()
	return resultsProcessed
}

// ResultScores observes final scores.
func ResultScores() prometheus.Histogram {
	RegisterMetrics()
	return resultScores
}

// DuplicateDetections counts results flagged with duplicate test names.
func DuplicateDetections() prometheus.Counter {
	RegisterMetrics()
	return duplicateDetections
}

// RegistryChanges counts test case registry writes.
func RegistryChanges() *prometheus.CounterVec {
	RegisterMetrics()
	return registryChanges
}

// ReEvaluatedResults counts re-scored results.
func ReEvaluatedResults() *prometheus.CounterVec {
	RegisterMetrics()
	return reEvaluatedResults
}

// NotificationsPublishedTotal counts delivered notifications.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsTotal
}

// StreamClientsActive tracks open live stream connections.
func StreamClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return streamClientsActive
}
