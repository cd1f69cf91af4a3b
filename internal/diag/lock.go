// Package diag provides the rebuild/verify tool's diagnostics output and
// process-exclusivity guard.
package diag

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrAlreadyLocked is returned by Acquire when another process already holds
// the exclusive lock on the same path. Callers should use errors.Is(err,
// ErrAlreadyLocked).
var ErrAlreadyLocked = errors.New("diag: image is locked by another process")

// Lock is an advisory, non-blocking exclusive lock on a sidecar ".lock"
// file, modeling LIBXFS_EXCLUSIVELY: the repair tool refuses to run rebuild
// concurrently against the same image from two processes on the same host.
//
// Unlike the teacher's ticket lock (which retries with a timeout because
// multiple editors cooperate over the same ticket), a second repair process
// racing the same image is a usage error, not a transient condition, so
// Acquire fails immediately rather than waiting.
type Lock struct {
	file *os.File
	path string
}

// Acquire opens (creating if necessary) the lock file at path and takes a
// non-blocking exclusive flock on it. If another process already holds it,
// Acquire returns an error wrapping ErrAlreadyLocked.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("diag: open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyLocked, path)
		}

		return nil, fmt.Errorf("diag: flock %s: %w", path, err)
	}

	return &Lock{file: f, path: path}, nil
}

// Release unlocks and closes the lock file. It does not remove the file:
// unlike the teacher's ticket lock, a stale lock file beside an image is
// harmless evidence the image was once repaired, not a correctness hazard,
// so there is no inode-recreation race to guard against on release.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}

	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("diag: unlock %s: %w", l.path, unlockErr)
	}

	return closeErr
}

// WithLock acquires the exclusive lock at path, runs fn, and always releases
// the lock before returning, matching the teacher's WithLock helper shape.
func WithLock(path string, fn func() error) error {
	lock, err := Acquire(path)
	if err != nil {
		return err
	}

	defer func() { _ = lock.Release() }()

	return fn()
}
