// Package agent provides the external processors that turn a feed entry into
// a markdown note artifact. Two implementations exist: a CLI runner that
// drives the claude command-line tool with per-category skills, and an API
// runner that fetches, summarizes, and writes notes directly.
package agent

import (
	"context"

	"research-pipeline/internal/domain/entity"
)

// Outcome is the result of processing one entry. It is a value, never a
// panic: transient failures are retried later by the scheduler, permanent
// failures are dropped after counting.
type Outcome struct {
	Success      bool
	ArtifactPath string
	Message      string
	Permanent    bool
}

// Succeed builds a success outcome carrying the created note path.
func Succeed(artifactPath string) Outcome {
	return Outcome{Success: true, ArtifactPath: artifactPath}
}

// Fail builds a transient failure outcome.
func Fail(message string) Outcome {
	return Outcome{Success: false, Message: message}
}

// FailPermanent builds a permanent failure outcome. The entry will never be
// retried.
func FailPermanent(message string) Outcome {
	return Outcome{Success: false, Message: message, Permanent: true}
}

// Processor turns one entry into a note artifact.
type Processor interface {
	// Process handles one entry and reports the outcome.
	Process(ctx context.Context, entry *entity.Entry) Outcome

	// Validate returns the names of missing capabilities (skills, binaries,
	// vault). An empty slice means the processor is ready.
	Validate() []string

	// EvaluateBatch post-processes one batch of created notes. Failures are
	// reported as errors for the caller to log; they never fail the run.
	EvaluateBatch(ctx context.Context, notePaths []string) error
}
