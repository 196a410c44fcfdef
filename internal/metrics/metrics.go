package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	EventsEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_events_evaluated_total",
			Help: "Total number of events evaluated, by decision",
		},
		[]string{"decision"},
	)

	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_aggregation_duration_seconds",
			Help:    "Duration of window count queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AggregationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_aggregation_errors_total",
			Help: "Total number of failed window count queries",
		},
	)

	// Remediation side effects, by step (disable, audit, alert) and result
	RemediationSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_remediation_steps_total",
			Help: "Total number of remediation side effects by step and result",
		},
		[]string{"step", "result"},
	)

	// Alert relay
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_alerts_total",
			Help: "Total number of alert deliveries by status",
		},
		[]string{"status"},
	)

	// Feed consumer
	FeedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_feed_messages_total",
			Help: "Total number of change-feed messages by result",
		},
		[]string{"result"},
	)

	FeedQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_feed_queue_depth",
			Help: "Current number of events waiting for a worker",
		},
	)

	// Scheduled jobs
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_job_runs_total",
			Help: "Total number of job runs by job and status",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_job_duration_seconds",
			Help:    "Duration of job runs in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"job"},
	)

	RetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_retention_deleted_total",
			Help: "Total number of events removed by retention",
		},
	)

	ExportDocuments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_export_documents_total",
			Help: "Total number of documents exported by collection",
		},
		[]string{"collection"},
	)
)
