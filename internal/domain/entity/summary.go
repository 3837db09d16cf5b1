package entity

import (
	"fmt"
	"time"
)

// RunSummary condenses a pipeline run's outcome for notification delivery.
type RunSummary struct {
	DryRun            bool
	Processed         int
	Failed            int
	Retried           int
	Skipped           int
	PermanentFailures int
	FirstFailureTitle string
	FirstFailureError string
	FinishedAt        time.Time
	Duration          time.Duration
}

// Message renders the human-readable notification body.
func (s *RunSummary) Message() string {
	switch {
	case s.Skipped > 0 && s.DryRun:
		return fmt.Sprintf("Dry run: %d items previewed", s.Skipped)
	case s.Processed == 0 && s.Failed == 0 && s.PermanentFailures == 0:
		return "No items to process"
	case s.Failed > 0:
		msg := fmt.Sprintf("Processed %d, Failed %d", s.Processed, s.Failed)
		if s.PermanentFailures > 0 {
			msg += fmt.Sprintf(", %d skipped (permanent)", s.PermanentFailures)
		}
		if s.FirstFailureTitle != "" {
			title := s.FirstFailureTitle
			if len(title) > 30 {
				title = title[:30] + "..."
			}
			msg += "\nFirst failure: " + title
		}
		return msg
	default:
		msg := fmt.Sprintf("Processed %d items", s.Processed)
		if s.Retried > 0 {
			msg += fmt.Sprintf(" (%d retried)", s.Retried)
		}
		if s.PermanentFailures > 0 {
			msg += fmt.Sprintf(", %d skipped (permanent)", s.PermanentFailures)
		}
		return msg
	}
}
