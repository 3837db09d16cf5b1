package metrics

import (
	"time"
)

// RecordRun records the result of a pipeline run.
// Status should be "completed", "failed", or "skipped".
func RecordRun(status string, duration time.Duration) {
	RunsTotal.WithLabelValues(status).Inc()
	if status != "skipped" {
		RunDuration.Observe(duration.Seconds())
	}
}

// RecordEntryProcessed records the outcome of processing a single entry.
// Outcome should be one of: success, retried, abandoned, permanent, skipped.
func RecordEntryProcessed(category, outcome string, duration time.Duration) {
	EntriesProcessedTotal.WithLabelValues(category, outcome).Inc()
	if duration > 0 {
		EntryProcessDuration.WithLabelValues(category).Observe(duration.Seconds())
	}
}

// RecordFeedFetch records metrics for one feed fetch.
func RecordFeedFetch(category string, duration time.Duration, discovered int) {
	FeedFetchDuration.WithLabelValues(category).Observe(duration.Seconds())
	if discovered > 0 {
		EntriesDiscoveredTotal.WithLabelValues(category).Add(float64(discovered))
	}
}

// RecordFeedFetchError records an error during feed fetching.
func RecordFeedFetchError(category, errorType string) {
	FeedFetchErrors.WithLabelValues(category, errorType).Inc()
}

// RecordPostProcessBatch records a post-processing batch result.
// Result should be "success", "failure", or "timeout".
func RecordPostProcessBatch(result string, duration time.Duration) {
	PostProcessBatchesTotal.WithLabelValues(result).Inc()
	PostProcessBatchDuration.Observe(duration.Seconds())
}

// RecordNotification records a notification delivery attempt.
func RecordNotification(channel string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	NotificationsTotal.WithLabelValues(channel, result).Inc()
}

// UpdateQueueGauges updates the retry queue depth and processed entry count.
// These gauges should be refreshed at the start and end of each run.
func UpdateQueueGauges(retryDepth, processedTotal int) {
	RetryQueueDepth.Set(float64(retryDepth))
	ProcessedEntriesTotal.Set(float64(processedTotal))
}
