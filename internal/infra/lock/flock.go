// Package lock provides the cross-process run lock for the pipeline.
// It uses an OS advisory lock (flock) on a well-known file so that a crashed
// process releases the lock automatically, while the file payload keeps the
// holder's PID readable for diagnostics.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrLockHeld reports that another pipeline run holds the lock. PID is the
// holder's process id when it could be read from the lock file; it may be
// stale or unavailable (best effort).
type ErrLockHeld struct {
	PID int // 0 when unknown
}

func (e *ErrLockHeld) Error() string {
	if e.PID != 0 {
		return fmt.Sprintf("pipeline is already running (PID %d)", e.PID)
	}
	return "pipeline is already running"
}

// RunLock is an exclusive advisory lock bound to a filesystem path.
// Acquire and Release are not safe for concurrent use by multiple goroutines
// of the same process; the lock guards processes, not goroutines.
type RunLock struct {
	path string
	file *os.File
}

// New creates a RunLock for the given lock file path. Nothing is locked
// until Acquire is called.
func New(path string) *RunLock {
	return &RunLock{path: path}
}

// Acquire takes the lock without blocking. On success the lock file is
// truncated and overwritten with this process's PID. On contention it reads
// the holder PID best-effort and returns *ErrLockHeld.
func (l *RunLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		held := &ErrLockHeld{PID: readPID(file)}
		_ = file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return held
		}
		return fmt.Errorf("flock: %w", err)
	}

	if err := file.Truncate(0); err != nil {
		_ = file.Close()
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := file.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		_ = file.Close()
		return fmt.Errorf("write pid to lock file: %w", err)
	}

	l.file = file
	return nil
}

// Release unlocks and closes the lock file. Safe to call when the lock was
// never acquired; errors are swallowed because Release runs on every exit
// path and there is nothing useful a caller can do with them.
func (l *RunLock) Release() {
	if l.file == nil {
		return
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
}

// HolderPID reports the PID recorded in the lock file if another process
// currently holds the lock. The second return is false when the lock is free.
func (l *RunLock) HolderPID() (int, bool) {
	file, err := os.OpenFile(l.path, os.O_RDWR, 0o644)
	if err != nil {
		return 0, false
	}
	defer func() { _ = file.Close() }()

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return readPID(file), true
	}
	_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
	return 0, false
}

// readPID parses the PID payload from an open lock file. Returns 0 when the
// payload is missing or malformed.
func readPID(file *os.File) int {
	buf := make([]byte, 32)
	n, err := file.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return 0
	}
	return pid
}
