package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code", "caller_role"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	// Queue metrics
	queueOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_dispatch_outcomes_total",
			Help: "Dispatch cycle outcomes by queue kind",
		},
		[]string{"kind", "status"},
	)

	queueDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_dispatch_duration_seconds",
			Help:    "Time spent executing one queue item",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_items",
			Help: "Number of queue items by kind and status",
		},
		[]string{"kind", "status"},
	)

	// Orchestrator metrics
	orchestratorStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_stage_duration_seconds",
			Help:    "Duration of each orchestration stage",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	orchestratorResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_results_total",
			Help: "Orchestration results by outcome",
		},
		[]string{"outcome"},
	)

	// Relay metrics
	relayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total number of relay requests",
		},
		[]string{"operation", "status"},
	)

	relayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "Relay request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Wallet metrics
	walletSignTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_sign_total",
			Help: "Wallet signing attempts by result",
		},
		[]string{"result"},
	)

	// Media metrics
	mediaUploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_upload_bytes_total",
			Help: "Bytes uploaded by media category",
		},
		[]string{"category"},
	)

	// Storage metrics
	redisOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)
)

func RecordHTTPRequest(method, endpoint, statusCode, callerRole string, duration float64) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, callerRole).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, statusCode).Observe(duration)
}

func RecordQueueOutcome(kind, status string) {
	queueOutcomesTotal.WithLabelValues(kind, status).Inc()
}

func ObserveDispatchDuration(kind string, d time.Duration) {
	queueDispatchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func SetQueueSize(kind, status string, size float64) {
	queueSize.WithLabelValues(kind, status).Set(size)
}

func ObserveOrchestratorStage(stage string, d time.Duration) {
	orchestratorStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func RecordOrchestratorResult(outcome string) {
	orchestratorResultsTotal.WithLabelValues(outcome).Inc()
}

func RecordRelayRequest(operation, status string, d time.Duration) {
	relayRequestsTotal.WithLabelValues(operation, status).Inc()
	relayRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func RecordWalletSign(result string) {
	walletSignTotal.WithLabelValues(result).Inc()
}

func AddMediaUploadBytes(category string, size int64) {
	mediaUploadBytes.WithLabelValues(category).Add(float64(size))
}

func RecordRedisOperation(operation, status string) {
	redisOperationsTotal.WithLabelValues(operation, status).Inc()
}

func RecordDBQuery(operation, table string, d time.Duration) {
	dbQueryDuration.WithLabelValues(operation, table).Observe(d.Seconds())
}
