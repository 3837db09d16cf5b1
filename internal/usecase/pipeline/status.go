package pipeline

import (
	"context"
	"fmt"
	"time"

	"research-pipeline/internal/domain/entity"
)

// Status is the operator-facing snapshot of pipeline state.
type Status struct {
	LastSuccessfulRun *time.Time
	PendingNew        int
	DueRetries        int
	RetryQueueDepth   int
	ProcessedTotal    int
	FeedsByCategory   map[entity.Category]int
}

// Status gathers the current pipeline state: last run, pending new entries,
// retry queue, and feed counts per category.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{FeedsByCategory: make(map[entity.Category]int)}

	lastRun, err := s.runs.LastSuccessfulRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("Status: last successful run: %w", err)
	}
	st.LastSuccessfulRun = lastRun

	pending, err := s.source.CollectNew(ctx)
	if err != nil {
		return nil, fmt.Errorf("Status: collect entries: %w", err)
	}
	st.PendingNew = len(pending)

	due, err := s.retries.DueCandidates(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("Status: due retries: %w", err)
	}
	st.DueRetries = len(due)

	depth, err := s.retries.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("Status: retry queue depth: %w", err)
	}
	st.RetryQueueDepth = depth

	total, err := s.processed.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("Status: processed count: %w", err)
	}
	st.ProcessedTotal = total

	feeds, err := s.feeds.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("Status: list feeds: %w", err)
	}
	for _, feed := range feeds {
		st.FeedsByCategory[feed.Category]++
	}

	return st, nil
}
