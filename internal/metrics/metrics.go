package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agribot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agribot_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agribot_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "endpoint"},
	)

	// Dashboard cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agribot_cycles_total",
			Help: "Total number of dashboard evaluation cycles",
		},
		[]string{"outcome"}, // outcome: ok, invalid, fetch_error, malformed, closed
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agribot_cycle_duration_seconds",
			Help:    "Time taken by one fetch-evaluate-process cycle",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	SnapshotSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agribot_snapshot_readings",
			Help:    "Number of readings in fetched snapshots",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	StoreFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agribot_store_fetch_errors_total",
			Help: "Total number of failed snapshot fetches",
		},
		[]string{"backend"},
	)

	// Alert metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agribot_notifications_total",
			Help: "Total number of notification events emitted",
		},
		[]string{"category", "transition"},
	)

	AlertEvaluationsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agribot_alert_evaluations_skipped_total",
			Help: "Total number of alert evaluations skipped inside the deadband",
		},
	)

	ToastsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agribot_toasts_dropped_total",
			Help: "Total number of toasts dropped because a sink was saturated",
		},
		[]string{"sink"},
	)

	// Series metrics
	SeriesResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agribot_series_results_total",
			Help: "Total number of processed chart series by result",
		},
		[]string{"result"}, // result: series or the empty reason
	)

	// Live mode
	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agribot_live_sessions",
			Help: "Number of sessions in live mode",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agribot_sessions",
			Help: "Number of open dashboard sessions",
		},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agribot_websocket_clients",
			Help: "Number of connected websocket clients",
		},
	)

	// Notification publishing
	WorkerQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agribot_worker_queue_size",
			Help: "Current size of the notification publish queue",
		},
	)

	WorkerQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agribot_worker_queue_capacity",
			Help: "Capacity of the notification publish queue",
		},
	)

	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agribot_worker_processed_total",
			Help: "Total number of notifications published by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agribot_worker_failed_total",
			Help: "Total number of notifications workers failed to publish",
		},
	)

	WorkerBatchPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agribot_worker_batch_publish_duration_seconds",
			Help:    "Time taken to publish a batch to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agribot_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agribot_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agribot_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agribot_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agribot_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
