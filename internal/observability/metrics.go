package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	queueEnqueuedTotal  *prometheus.CounterVec
	queueClaimsTotal    *prometheus.CounterVec
	queueOutcomesTotal  *prometheus.CounterVec
	queueReclaimedTotal *prometheus.CounterVec
	deliveryLatency     *prometheus.HistogramVec

	attemptTransitionsTotal *prometheus.CounterVec
	sweeperTransitionsTotal *prometheus.CounterVec
	sweeperRunsTotal        *prometheus.CounterVec

	streamClientsActive prometheus.Gauge

	uploadRejectedTotal *prometheus.CounterVec
	uploadLatency       prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltest_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skilltest_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltest_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		queueEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltest_queue_enqueued_total",
			Help: "Items written to a work queue.",
		}, []string{"queue"})

		queueClaimsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltest_queue_claims_total",
			Help: "Items exclusively claimed by a worker.",
		}, []string{"queue"})

		queueOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltest_queue_outcomes_total",
			Help: "Finalised queue items by outcome.",
		}, []string{"queue", "outcome"})

		queueReclaimedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltest_queue_reclaimed_total",
			Help: "Stale running items returned to pending.",
		}, []string{"queue"})

		deliveryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skilltest_webhook_delivery_seconds",
			Help:    "Duration of outbound webhook calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"event_type"})

		attemptTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltest_attempt_transitions_total",
			Help: "Attempt state transitions by target status and trigger.",
		}, []string{"status", "trigger"})

		sweeperTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltest_sweeper_transitions_total",
			Help: "Rows changed by the deadline sweeper.",
		}, []string{"kind"})

		sweeperRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltest_sweeper_runs_total",
			Help: "Deadline sweeper passes by result.",
		}, []string{"result"})

		streamClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skilltest_attempt_stream_clients",
			Help: "Connected staff attempt stream clients.",
		})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltest_presentation_upload_rejected_total",
			Help: "Rejected presentation uploads by reason.",
		}, []string{"reason"})

		uploadLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skilltest_presentation_upload_seconds",
			Help:    "Time spent validating and storing presentation uploads.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			queueEnqueuedTotal, queueClaimsTotal, queueOutcomesTotal, queueReclaimedTotal, deliveryLatency,
			attemptTransitionsTotal, sweeperTransitionsTotal, sweeperRunsTotal,
			streamClientsActive, uploadRejectedTotal, uploadLatency,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// QueueEnqueued counts items written per queue.
func QueueEnqueued() *prometheus.CounterVec {
	RegisterMetrics()
	return queueEnqueuedTotal
}

// QueueClaims counts successful claims per queue.
func QueueClaims() *prometheus.CounterVec {
	RegisterMetrics()
	return queueClaimsTotal
}

// QueueOutcomes counts finalised items per queue and outcome.
func QueueOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return queueOutcomesTotal
}

// QueueReclaimed counts stale items reset to pending.
func QueueReclaimed() *prometheus.CounterVec {
	RegisterMetrics()
	return queueReclaimedTotal
}

// DeliveryLatency observes outbound webhook call durations.
func DeliveryLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return deliveryLatency
}

// AttemptTransitions counts attempt status changes.
func AttemptTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return attemptTransitionsTotal
}

// SweeperTransitions counts rows changed by the deadline sweeper.
func SweeperTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return sweeperTransitionsTotal
}

// SweeperRuns counts sweeper passes.
func SweeperRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return sweeperRunsTotal
}

// StreamClients tracks connected staff stream clients.
func StreamClients() prometheus.Gauge {
	RegisterMetrics()
	return streamClientsActive
}

// UploadRejected counts presentation uploads refused by validation or storage.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// UploadLatency observes presentation upload handling time.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatency
}
