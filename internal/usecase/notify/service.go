// Package notify dispatches run summaries to the configured notification
// channels. Dispatch is fire-and-forget: the pipeline never waits on or
// fails because of a webhook.
package notify

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"research-pipeline/internal/domain/entity"
	"research-pipeline/internal/infra/notifier"
	"research-pipeline/internal/observability/metrics"
)

const (
	circuitBreakerThreshold = 5               // consecutive failures before opening
	circuitBreakerTimeout   = 5 * time.Minute // how long the channel stays disabled
	workerPoolTimeout       = 5 * time.Second // timeout for acquiring a worker slot
	notificationTimeout     = 30 * time.Second
)

// Service dispatches run summaries to all channels.
type Service interface {
	// NotifyRunSummary dispatches the summary to every channel in background
	// goroutines. It never returns an error; channel failures are logged.
	NotifyRunSummary(ctx context.Context, summary *entity.RunSummary)

	// ChannelHealth reports per-channel circuit breaker state.
	ChannelHealth() []ChannelHealthStatus

	// Shutdown waits for in-flight notifications to finish or the context
	// to expire.
	Shutdown(ctx context.Context) error
}

// ChannelHealthStatus is one channel's circuit breaker state.
type ChannelHealthStatus struct {
	Name               string
	CircuitBreakerOpen bool
	DisabledUntil      *time.Time
}

type service struct {
	channels       []notifier.Notifier
	workerPool     chan struct{}
	channelHealth  map[string]*channelHealth
	healthMu       sync.RWMutex
	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

type channelHealth struct {
	consecutiveFailures int
	disabledUntil       time.Time
	mu                  sync.Mutex
}

// NewService creates a notification service over the given channels.
// maxConcurrent bounds how many notifications are in flight at once.
func NewService(channels []notifier.Notifier, maxConcurrent int) Service {
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	svc := &service{
		channels:       channels,
		workerPool:     make(chan struct{}, maxConcurrent),
		channelHealth:  make(map[string]*channelHealth),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	for _, ch := range channels {
		svc.channelHealth[ch.Name()] = &channelHealth{}
	}

	return svc
}

// NotifyRunSummary implements Service.
func (s *service) NotifyRunSummary(ctx context.Context, summary *entity.RunSummary) {
	if summary == nil {
		slog.Warn("nil run summary, nothing to notify")
		return
	}

	if len(s.channels) == 0 {
		slog.Debug("no notification channels configured")
		return
	}

	requestID := uuid.New().String()

	slog.Info("dispatching run notification",
		slog.String("request_id", requestID),
		slog.Int("channels", len(s.channels)),
		slog.Int("processed", summary.Processed),
		slog.Int("failed", summary.Failed))

	for _, ch := range s.channels {
		s.wg.Add(1)
		go s.notifyChannel(requestID, ch, summary)
	}
}

// notifyChannel delivers the summary to one channel in a goroutine.
func (s *service) notifyChannel(requestID string, channel notifier.Notifier, summary *entity.RunSummary) {
	defer s.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in notification channel",
				slog.String("request_id", requestID),
				slog.String("channel", channel.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	select {
	case s.workerPool <- struct{}{}:
		defer func() { <-s.workerPool }()
	case <-time.After(workerPoolTimeout):
		slog.Warn("notification dropped: worker pool full",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()))
		metrics.RecordNotification(channel.Name(), false)
		return
	}

	health := s.getChannelHealth(channel.Name())
	health.mu.Lock()
	if time.Now().Before(health.disabledUntil) {
		slog.Warn("channel temporarily disabled by circuit breaker",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.Time("disabled_until", health.disabledUntil))
		health.mu.Unlock()
		metrics.RecordNotification(channel.Name(), false)
		return
	}
	health.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.shutdownCtx, notificationTimeout)
	defer cancel()

	startTime := time.Now()
	err := channel.NotifyRun(ctx, summary)
	duration := time.Since(startTime)

	health.mu.Lock()
	if err != nil {
		health.consecutiveFailures++
		if health.consecutiveFailures >= circuitBreakerThreshold {
			health.disabledUntil = time.Now().Add(circuitBreakerTimeout)
			slog.Error("circuit breaker opened for channel",
				slog.String("request_id", requestID),
				slog.String("channel", channel.Name()),
				slog.Int("consecutive_failures", health.consecutiveFailures))
		}
	} else {
		health.consecutiveFailures = 0
	}
	health.mu.Unlock()

	metrics.RecordNotification(channel.Name(), err == nil)

	if err != nil {
		slog.Warn("channel notification failed",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.Duration("send_duration", duration),
			slog.Any("error", err))
	} else {
		slog.Info("channel notification sent",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.Duration("send_duration", duration))
	}
}

func (s *service) getChannelHealth(channelName string) *channelHealth {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.channelHealth[channelName]
}

// ChannelHealth implements Service.
func (s *service) ChannelHealth() []ChannelHealthStatus {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()

	statuses := make([]ChannelHealthStatus, 0, len(s.channels))

	for _, ch := range s.channels {
		health := s.channelHealth[ch.Name()]

		health.mu.Lock()
		var disabledUntil *time.Time
		open := false
		if time.Now().Before(health.disabledUntil) {
			open = true
			until := health.disabledUntil
			disabledUntil = &until
		}
		health.mu.Unlock()

		statuses = append(statuses, ChannelHealthStatus{
			Name:               ch.Name(),
			CircuitBreakerOpen: open,
			DisabledUntil:      disabledUntil,
		})
	}

	return statuses
}

// Shutdown implements Service.
func (s *service) Shutdown(ctx context.Context) error {
	slog.Info("shutting down notification service")

	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("notification service shutdown complete")
		return nil
	case <-ctx.Done():
		slog.Warn("notification service shutdown timeout")
		return ctx.Err()
	}
}
