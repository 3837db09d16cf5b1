package entity

import "time"

// ProcessedRecord is the durable proof that an entry guid has been handled.
// A guid appears here at most once; once present, the entry is never
// reprocessed and must not remain in the retry queue.
type ProcessedRecord struct {
	ID           int64
	GUID         string
	FeedID       int64
	URL          string
	Title        string
	ProcessedAt  time.Time
	ArtifactPath string
}

// RetryEntry is a pending transient failure awaiting its backoff window.
// A guid is in at most one of {ProcessedRecord, RetryEntry} at any time.
type RetryEntry struct {
	ID            int64
	GUID          string
	FeedID        int64
	URL           string
	Title         string
	Category      Category
	FirstFailedAt time.Time
	LastAttemptAt time.Time
	NextRetryAt   time.Time
	Attempts      int
	LastError     string
}

// Entry rebuilds a transient Entry from the retry-queue snapshot. Content,
// author, and publish time are not snapshotted; the processor works from the
// URL alone on a retry.
func (r *RetryEntry) Entry() Entry {
	title := r.Title
	if title == "" {
		title = "Untitled"
	}
	return Entry{
		GUID:     r.GUID,
		Title:    title,
		URL:      r.URL,
		FeedID:   r.FeedID,
		Category: r.Category,
	}
}

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord is one row per pipeline execution. A row left in "running" state
// marks a crashed run; it is detectable but never auto-healed.
type RunRecord struct {
	ID             int64
	StartedAt      time.Time
	CompletedAt    *time.Time
	ItemsFetched   int
	ItemsProcessed int
	ItemsFailed    int
	Status         RunStatus
}
