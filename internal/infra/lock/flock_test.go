package lock_test

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"research-pipeline/internal/infra/lock"
)

func TestRunLock_AcquireWritesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.lock")

	l := lock.New(path)
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire err=%v", err)
	}
	defer l.Release()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil || pid != os.Getpid() {
		t.Fatalf("lock file payload = %q, want pid %d", data, os.Getpid())
	}
}

func TestRunLock_SecondAcquireReportsHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.lock")

	first := lock.New(path)
	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire err=%v", err)
	}
	defer first.Release()

	// flock is per open file description, so a second RunLock in the same
	// process contends the same way a second process would.
	second := lock.New(path)
	err := second.Acquire()
	var held *lock.ErrLockHeld
	if !errors.As(err, &held) {
		t.Fatalf("second Acquire err=%v, want ErrLockHeld", err)
	}
	if held.PID != os.Getpid() {
		t.Fatalf("ErrLockHeld.PID = %d, want %d", held.PID, os.Getpid())
	}
}

func TestRunLock_ReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.lock")

	l := lock.New(path)
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire err=%v", err)
	}
	l.Release()
	l.Release() // second release is a no-op

	if err := l.Acquire(); err != nil {
		t.Fatalf("reacquire after Release err=%v", err)
	}
	l.Release()
}

func TestRunLock_HolderPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.lock")

	l := lock.New(path)
	if _, held := l.HolderPID(); held {
		t.Fatal("HolderPID reported a holder before any Acquire")
	}

	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire err=%v", err)
	}
	defer l.Release()

	pid, held := lock.New(path).HolderPID()
	if !held || pid != os.Getpid() {
		t.Fatalf("HolderPID = %d, %v, want %d, true", pid, held, os.Getpid())
	}
}
