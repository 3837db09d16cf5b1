package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"research-pipeline/internal/domain/entity"
	"research-pipeline/internal/infra/notifier"
)

type fakeChannel struct {
	name  string
	err   error
	mu    sync.Mutex
	calls int
}

func (f *fakeChannel) NotifyRun(ctx context.Context, summary *entity.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitForDispatch(t *testing.T, svc Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown err=%v", err)
	}
}

func TestNotifyRunSummary_DeliversToAllChannels(t *testing.T) {
	a := &fakeChannel{name: "slack"}
	b := &fakeChannel{name: "discord"}
	svc := NewService([]notifier.Notifier{a, b}, 4)

	svc.NotifyRunSummary(context.Background(), &entity.RunSummary{Processed: 3})
	waitForDispatch(t, svc)

	if a.callCount() != 1 || b.callCount() != 1 {
		t.Errorf("calls = slack:%d discord:%d, want 1 each", a.callCount(), b.callCount())
	}
}

func TestNotifyRunSummary_NilSummaryIsNoOp(t *testing.T) {
	a := &fakeChannel{name: "slack"}
	svc := NewService([]notifier.Notifier{a}, 4)

	svc.NotifyRunSummary(context.Background(), nil)
	waitForDispatch(t, svc)

	if a.callCount() != 0 {
		t.Errorf("calls = %d, want 0", a.callCount())
	}
}

func TestNotifyRunSummary_FailureDoesNotPropagate(t *testing.T) {
	a := &fakeChannel{name: "slack", err: errors.New("webhook down")}
	svc := NewService([]notifier.Notifier{a}, 4)

	// Must not panic or block
	svc.NotifyRunSummary(context.Background(), &entity.RunSummary{Failed: 1})
	waitForDispatch(t, svc)

	if a.callCount() != 1 {
		t.Errorf("calls = %d, want 1", a.callCount())
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	a := &fakeChannel{name: "slack", err: errors.New("webhook down")}
	svc := NewService([]notifier.Notifier{a}, 4).(*service)

	for i := 0; i < circuitBreakerThreshold; i++ {
		svc.NotifyRunSummary(context.Background(), &entity.RunSummary{})
		// Dispatch is async; wait for each send to land before the next
		deadline := time.Now().Add(time.Second)
		for a.callCount() < i+1 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	statuses := svc.ChannelHealth()
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(statuses))
	}
	if !statuses[0].CircuitBreakerOpen {
		t.Error("circuit breaker not open after consecutive failures")
	}
	if statuses[0].DisabledUntil == nil {
		t.Error("DisabledUntil not set")
	}

	// Further notifications are dropped without calling the channel
	before := a.callCount()
	svc.NotifyRunSummary(context.Background(), &entity.RunSummary{})
	waitForDispatch(t, Service(svc))
	if a.callCount() != before {
		t.Errorf("calls = %d, want %d (dropped)", a.callCount(), before)
	}
}

func TestChannelHealth_ClosedByDefault(t *testing.T) {
	svc := NewService([]notifier.Notifier{&fakeChannel{name: "slack"}}, 4)

	statuses := svc.ChannelHealth()
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(statuses))
	}
	if statuses[0].CircuitBreakerOpen {
		t.Error("circuit breaker open on fresh service")
	}
	if statuses[0].Name != "slack" {
		t.Errorf("Name = %q", statuses[0].Name)
	}
}
