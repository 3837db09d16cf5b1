// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics track run-level behavior
var (
	// RunsTotal counts pipeline runs by final status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"}, // status: completed, failed, skipped
	)

	// RunDuration measures end-to-end pipeline run duration in seconds
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "End-to-end pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// EntriesProcessedTotal counts entries by processing outcome
	EntriesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_entries_processed_total",
			Help: "Total number of entries processed",
		},
		[]string{"category", "outcome"}, // outcome: success, retried, abandoned, permanent, skipped
	)

	// EntryProcessDuration measures time to process a single entry
	EntryProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_entry_process_duration_seconds",
			Help:    "Time taken to process a single entry",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"category"},
	)

	// RetryQueueDepth tracks the number of entries waiting in the retry queue
	RetryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_retry_queue_depth",
			Help: "Number of entries currently in the retry queue",
		},
	)

	// ProcessedEntriesTotal tracks the number of entries ever processed
	ProcessedEntriesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_processed_entries",
			Help: "Total number of entries recorded as processed",
		},
	)
)

// Feed metrics track feed fetching behavior
var (
	// FeedFetchDuration measures time to fetch and parse one feed
	FeedFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_feed_fetch_duration_seconds",
			Help:    "Time taken to fetch and parse a feed",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"category"},
	)

	// FeedFetchErrors counts errors during feed fetching
	FeedFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_feed_fetch_errors_total",
			Help: "Total number of feed fetch errors",
		},
		[]string{"category", "error_type"},
	)

	// EntriesDiscoveredTotal counts new entries discovered per feed category
	EntriesDiscoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_entries_discovered_total",
			Help: "Total number of new entries discovered in feeds",
		},
		[]string{"category"},
	)
)

// Post-processing metrics track the evaluation phase
var (
	// PostProcessBatchesTotal counts post-processing batches by result
	PostProcessBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_postprocess_batches_total",
			Help: "Total number of post-processing batches",
		},
		[]string{"result"}, // result: success, failure, timeout
	)

	// PostProcessBatchDuration measures time per post-processing batch
	PostProcessBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_postprocess_batch_duration_seconds",
			Help:    "Time taken per post-processing batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
)

// Notification metrics track webhook delivery
var (
	// NotificationsTotal counts notification deliveries by channel and result
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_notifications_total",
			Help: "Total number of notification deliveries",
		},
		[]string{"channel", "result"},
	)
)
