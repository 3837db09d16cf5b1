package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordRun(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		duration time.Duration
	}{
		{
			name:     "completed run",
			status:   "completed",
			duration: 42 * time.Second,
		},
		{
			name:     "failed run",
			status:   "failed",
			duration: 3 * time.Second,
		},
		{
			name:     "skipped run",
			status:   "skipped",
			duration: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordRun(tt.status, tt.duration)
			})
		})
	}
}

func TestRecordEntryProcessed(t *testing.T) {
	tests := []struct {
		name     string
		category string
		outcome  string
		duration time.Duration
	}{
		{
			name:     "success",
			category: "articles",
			outcome:  "success",
			duration: 30 * time.Second,
		},
		{
			name:     "transient failure queued for retry",
			category: "youtube",
			outcome:  "retried",
			duration: 5 * time.Second,
		},
		{
			name:     "abandoned after schedule exhausted",
			category: "podcasts",
			outcome:  "abandoned",
			duration: 5 * time.Second,
		},
		{
			name:     "skipped with zero duration",
			category: "articles",
			outcome:  "skipped",
			duration: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordEntryProcessed(tt.category, tt.outcome, tt.duration)
			})
		})
	}
}

func TestRecordFeedFetch(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordFeedFetch("articles", 800*time.Millisecond, 4)
		RecordFeedFetch("youtube", 200*time.Millisecond, 0)
	})
}

func TestRecordFeedFetchError(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordFeedFetchError("articles", "timeout")
		RecordFeedFetchError("podcasts", "parse")
	})
}

func TestRecordPostProcessBatch(t *testing.T) {
	tests := []struct {
		name   string
		result string
	}{
		{name: "success", result: "success"},
		{name: "failure", result: "failure"},
		{name: "timeout", result: "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordPostProcessBatch(tt.result, 90*time.Second)
			})
		})
	}
}

func TestRecordNotification(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordNotification("slack", true)
		RecordNotification("discord", false)
	})
}

func TestUpdateQueueGauges(t *testing.T) {
	assert.NotPanics(t, func() {
		UpdateQueueGauges(3, 1200)
		UpdateQueueGauges(0, 0)
	})
}
