// Package pipeline implements the run orchestrator: the state machine that
// takes discovered entries and due retries through processing, retry
// bookkeeping, post-processing, and run finalization under the run lock.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"research-pipeline/internal/domain/entity"
	"research-pipeline/internal/infra/agent"
	"research-pipeline/internal/infra/lock"
	"research-pipeline/internal/observability/logging"
	"research-pipeline/internal/observability/metrics"
	"research-pipeline/internal/repository"
)

// catchUpThreshold is how long since the last completed run before a
// catch-up warning is emitted.
const catchUpThreshold = 36 * time.Hour

// Options controls one pipeline run.
type Options struct {
	// DryRun previews candidates without acquiring the lock or mutating
	// any state.
	DryRun bool

	// Limit caps the number of items processed; 0 means no limit. New
	// entries take priority over retries when the limit truncates.
	Limit int

	// Verbose enables per-item progress logging.
	Verbose bool

	// Force proceeds even when another run holds the lock.
	Force bool
}

// Failure is one transient item failure with its error message.
type Failure struct {
	Entry   entity.Entry
	Message string
}

// Result is the outcome of one pipeline run.
type Result struct {
	Processed         int
	Failed            int
	Retried           int
	Skipped           int
	PermanentFailures int
	Artifacts         []string
	Failures          []Failure
}

// Summary converts the result into the notification payload.
func (r *Result) Summary(dryRun bool, finishedAt time.Time, duration time.Duration) *entity.RunSummary {
	s := &entity.RunSummary{
		DryRun:            dryRun,
		Processed:         r.Processed,
		Failed:            r.Failed,
		Retried:           r.Retried,
		Skipped:           r.Skipped,
		PermanentFailures: r.PermanentFailures,
		FinishedAt:        finishedAt,
		Duration:          duration,
	}
	if len(r.Failures) > 0 {
		s.FirstFailureTitle = r.Failures[0].Entry.Title
		s.FirstFailureError = r.Failures[0].Message
	}
	return s
}

// FeedSource discovers new, not-yet-processed entries.
type FeedSource interface {
	CollectNew(ctx context.Context) ([]*entity.Entry, error)
}

// RunLock serializes pipeline runs across processes.
type RunLock interface {
	Acquire() error
	Release()
}

// Notifier receives the end-of-run summary, fire-and-forget.
type Notifier interface {
	NotifyRunSummary(ctx context.Context, summary *entity.RunSummary)
}

// Service is the run orchestrator.
type Service struct {
	processed repository.ProcessedRepository
	retries   repository.RetryRepository
	runs      repository.RunRepository
	feeds     repository.FeedRepository
	source    FeedSource
	processor agent.Processor
	lock      RunLock
	notifier  Notifier
	logger    *slog.Logger

	batchSize    int
	batchTimeout time.Duration

	now func() time.Time
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Processed repository.ProcessedRepository
	Retries   repository.RetryRepository
	Runs      repository.RunRepository
	Feeds     repository.FeedRepository
	Source    FeedSource
	Processor agent.Processor
	Lock      RunLock
	Notifier  Notifier
	Logger    *slog.Logger

	// BatchSize and BatchTimeout control post-processing; zero values fall
	// back to 6 items and 10 minutes.
	BatchSize    int
	BatchTimeout time.Duration
}

// NewService creates the orchestrator.
func NewService(d Deps) *Service {
	if d.BatchSize <= 0 {
		d.BatchSize = 6
	}
	if d.BatchTimeout <= 0 {
		d.BatchTimeout = 10 * time.Minute
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		processed:    d.Processed,
		retries:      d.Retries,
		runs:         d.Runs,
		feeds:        d.Feeds,
		source:       d.Source,
		processor:    d.Processor,
		lock:         d.Lock,
		notifier:     d.Notifier,
		logger:       d.Logger,
		batchSize:    d.BatchSize,
		batchTimeout: d.BatchTimeout,
		now:          time.Now,
	}
}

// Run executes the pipeline. Dry runs never touch the lock or mutate state.
// Force proceeds past a held lock with a warning naming the holder.
func (s *Service) Run(ctx context.Context, opts Options) (*Result, error) {
	start := s.now()

	if !opts.DryRun {
		if err := s.lock.Acquire(); err != nil {
			var held *lock.ErrLockHeld
			if opts.Force && errors.As(err, &held) {
				s.logger.Warn("force override: proceeding despite held lock",
					slog.Int("holder_pid", held.PID))
			} else {
				return nil, fmt.Errorf("Run: %w", err)
			}
		} else {
			defer s.lock.Release()
		}
	}

	result, err := s.run(ctx, opts, start)
	if err != nil {
		metrics.RecordRun("failed", s.now().Sub(start))
		return nil, err
	}

	status := "completed"
	if opts.DryRun {
		status = "skipped"
	}
	metrics.RecordRun(status, s.now().Sub(start))
	return result, nil
}

func (s *Service) run(ctx context.Context, opts Options, start time.Time) (*Result, error) {
	// Validation aborts before any RunRecord is written
	if missing := s.processor.Validate(); len(missing) > 0 {
		return nil, &ErrMissingCapability{Names: missing}
	}

	if lastRun, err := s.runs.LastSuccessfulRun(ctx); err != nil {
		return nil, fmt.Errorf("Run: last successful run: %w", err)
	} else if lastRun != nil {
		if since := s.now().Sub(*lastRun); since > catchUpThreshold {
			s.logger.Warn("catch-up mode",
				slog.Float64("hours_since_last_run", since.Hours()))
		}
	}

	newEntries, err := s.source.CollectNew(ctx)
	if err != nil {
		return nil, fmt.Errorf("Run: collect entries: %w", err)
	}

	dueRetries, err := s.retries.DueCandidates(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("Run: due retries: %w", err)
	}

	candidates, retryGUIDs := buildCandidates(newEntries, dueRetries, opts.Limit)
	s.logger.Info("run candidates assembled",
		slog.Int("new", len(newEntries)),
		slog.Int("retries", len(dueRetries)),
		slog.Int("candidates", len(candidates)),
		slog.Int("limit", opts.Limit))

	if opts.DryRun {
		for _, entry := range candidates {
			s.logger.Info("[dry run] would process",
				slog.String("title", entry.Title),
				slog.String("category", entry.Category.String()))
		}
		return &Result{Skipped: len(candidates)}, nil
	}

	runID, err := s.runs.RecordRunStart(ctx)
	if err != nil {
		return nil, fmt.Errorf("Run: record run start: %w", err)
	}
	runLogger := logging.WithRun(s.logger, runID)

	result := s.processLoop(ctx, runLogger, candidates, retryGUIDs, opts.Verbose)

	s.postProcess(ctx, runLogger, result.Artifacts)

	if err := s.runs.RecordRunComplete(ctx, runID, result.Processed, result.Failed); err != nil {
		return nil, fmt.Errorf("Run: record run complete: %w", err)
	}

	s.refreshQueueGauges(ctx)

	finishedAt := s.now()
	if s.notifier != nil {
		s.notifier.NotifyRunSummary(ctx, result.Summary(false, finishedAt, finishedAt.Sub(start)))
	}

	return result, nil
}

// buildCandidates concatenates new entries before retries and truncates to
// limit. Returns the candidate list and the set of guids that came from the
// retry queue.
func buildCandidates(newEntries []*entity.Entry, dueRetries []*entity.RetryEntry, limit int) ([]*entity.Entry, map[string]bool) {
	retryGUIDs := make(map[string]bool, len(dueRetries))

	candidates := make([]*entity.Entry, 0, len(newEntries)+len(dueRetries))
	candidates = append(candidates, newEntries...)
	for _, row := range dueRetries {
		entry := row.Entry()
		candidates = append(candidates, &entry)
		retryGUIDs[row.GUID] = true
	}

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	return candidates, retryGUIDs
}

// processLoop handles each candidate sequentially. Every failure is routed
// to exactly one of {already-processed, permanent, transient}; one item
// never aborts the loop. A duplicate-guid conflict from the store is the
// exception: it is a contract violation and is surfaced on that item.
func (s *Service) processLoop(ctx context.Context, logger *slog.Logger, candidates []*entity.Entry, retryGUIDs map[string]bool, verbose bool) *Result {
	result := &Result{}
	total := len(candidates)

	for idx, entry := range candidates {
		isRetry := retryGUIDs[entry.GUID]

		if verbose {
			logger.Info("processing entry",
				slog.Int("index", idx+1),
				slog.Int("total", total),
				slog.String("title", entry.Title),
				slog.Bool("retry", isRetry))
		}

		itemStart := s.now()

		seen, err := s.processed.IsProcessed(ctx, entry.GUID)
		if err != nil {
			s.recordTransient(ctx, logger, result, entry, fmt.Sprintf("processed lookup failed: %v", err))
			continue
		}
		if seen {
			// A parallel manual run may have handled a retry candidate;
			// reconcile the zombie queue row and move on.
			if isRetry {
				if err := s.retries.Remove(ctx, entry.GUID); err != nil {
					logger.Warn("failed to remove stale retry row",
						slog.String("guid", entry.GUID),
						slog.Any("error", err))
				} else if verbose {
					logger.Info("already processed, removed from retry queue",
						slog.String("guid", entry.GUID))
				}
			}
			metrics.RecordEntryProcessed(entry.Category.String(), "skipped", 0)
			continue
		}

		outcome := s.processor.Process(ctx, entry)
		duration := s.now().Sub(itemStart)

		switch {
		case outcome.Success:
			rec := &entity.ProcessedRecord{
				GUID:         entry.GUID,
				FeedID:       entry.FeedID,
				URL:          entry.URL,
				Title:        entry.Title,
				ProcessedAt:  s.now(),
				ArtifactPath: outcome.ArtifactPath,
			}
			if err := s.processed.MarkProcessed(ctx, rec); err != nil {
				if errors.Is(err, entity.ErrDuplicateGUID) {
					// A record already exists for this guid, so it must not be
					// rescheduled; clear any retry row instead of enqueueing one.
					logger.Error("duplicate guid on mark processed",
						slog.String("guid", entry.GUID),
						slog.String("title", entry.Title),
						slog.Any("error", err))
					if rmErr := s.retries.Remove(ctx, entry.GUID); rmErr != nil {
						logger.Warn("failed to remove retry row after guid conflict",
							slog.String("guid", entry.GUID),
							slog.Any("error", rmErr))
					}
					result.Failed++
					result.Failures = append(result.Failures, Failure{Entry: *entry, Message: err.Error()})
					continue
				}
				s.recordTransient(ctx, logger, result, entry, fmt.Sprintf("mark processed failed: %v", err))
				continue
			}

			if isRetry {
				if err := s.retries.Remove(ctx, entry.GUID); err != nil {
					logger.Warn("failed to remove retry row after success",
						slog.String("guid", entry.GUID),
						slog.Any("error", err))
				}
				result.Retried++
			}

			result.Artifacts = append(result.Artifacts, outcome.ArtifactPath)
			result.Processed++
			metrics.RecordEntryProcessed(entry.Category.String(), "success", duration)
			if verbose {
				logger.Info("entry processed",
					slog.String("artifact", outcome.ArtifactPath))
			}

		case outcome.Permanent:
			result.PermanentFailures++
			metrics.RecordEntryProcessed(entry.Category.String(), "permanent", duration)
			logger.Warn("permanent failure",
				slog.String("title", entry.Title),
				slog.String("error", outcome.Message))

		default:
			s.recordTransient(ctx, logger, result, entry, outcome.Message)
			metrics.RecordEntryProcessed(entry.Category.String(), "retried", duration)
		}
	}

	return result
}

// recordTransient enqueues a transient failure for later retry and counts it.
func (s *Service) recordTransient(ctx context.Context, logger *slog.Logger, result *Result, entry *entity.Entry, message string) {
	if message == "" {
		message = "unknown error"
	}

	disposition, err := s.retries.Upsert(ctx, entry, message, s.now())
	if err != nil {
		logger.Error("failed to record retry",
			slog.String("guid", entry.GUID),
			slog.Any("error", err))
	} else if disposition == repository.RetryAbandoned {
		logger.Warn("entry abandoned after exhausting retry schedule",
			slog.String("guid", entry.GUID),
			slog.String("title", entry.Title))
		metrics.RecordEntryProcessed(entry.Category.String(), "abandoned", 0)
	}

	result.Failed++
	result.Failures = append(result.Failures, Failure{Entry: *entry, Message: message})
	logger.Error("transient failure",
		slog.String("title", entry.Title),
		slog.String("error", message))
}

// postProcess runs the evaluation pass over created artifacts in fixed-size
// batches. Batch failures and timeouts are logged and never affect counts.
func (s *Service) postProcess(ctx context.Context, logger *slog.Logger, artifacts []string) {
	if len(artifacts) == 0 {
		return
	}

	batches := (len(artifacts) + s.batchSize - 1) / s.batchSize
	logger.Info("post-processing created notes",
		slog.Int("notes", len(artifacts)),
		slog.Int("batches", batches),
		slog.Int("batch_size", s.batchSize))

	for i := 0; i < len(artifacts); i += s.batchSize {
		end := i + s.batchSize
		if end > len(artifacts) {
			end = len(artifacts)
		}
		batch := artifacts[i:end]
		batchIdx := i/s.batchSize + 1

		batchStart := s.now()
		batchCtx, cancel := context.WithTimeout(ctx, s.batchTimeout)
		err := s.processor.EvaluateBatch(batchCtx, batch)
		cancel()
		batchDuration := s.now().Sub(batchStart)

		if err != nil {
			label := "failure"
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(batchCtx.Err(), context.DeadlineExceeded) {
				label = "timeout"
			}
			logger.Warn("post-processing batch failed, continuing",
				slog.Int("batch", batchIdx),
				slog.Int("batches", batches),
				slog.String("result", label),
				slog.Any("error", err))
			metrics.RecordPostProcessBatch(label, batchDuration)
			continue
		}

		logger.Info("post-processing batch done",
			slog.Int("batch", batchIdx),
			slog.Int("batches", batches),
			slog.Int("notes", len(batch)))
		metrics.RecordPostProcessBatch("success", batchDuration)
	}
}

// refreshQueueGauges updates the retry depth and processed total gauges.
func (s *Service) refreshQueueGauges(ctx context.Context) {
	retryDepth, err := s.retries.Count(ctx)
	if err != nil {
		s.logger.Warn("failed to count retry queue", slog.Any("error", err))
		return
	}
	processedTotal, err := s.processed.Count(ctx)
	if err != nil {
		s.logger.Warn("failed to count processed entries", slog.Any("error", err))
		return
	}
	metrics.UpdateQueueGauges(retryDepth, processedTotal)
}
