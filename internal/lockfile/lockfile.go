// Package lockfile prevents more than one instance of a process from
// running at once, using an exclusive, non-blocking flock on a file
// under /tmp. The OS releases the lock automatically on process exit,
// even on SIGKILL, so there is no "stale lock" state to clean up.
package lockfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned by Acquire when another instance already
// holds the lock.
var ErrAlreadyRunning = fmt.Errorf("another instance is already running")

// Lock is a held exclusive process lock. Release drops it.
type Lock struct {
	f *os.File
}

// Acquire takes an exclusive, non-blocking lock on /tmp/data_log_<name>.lock.
// Returns ErrAlreadyRunning if another process already holds it.
func Acquire(name string) (*Lock, error) {
	path := fmt.Sprintf("/tmp/data_log_%s.lock", name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("lockfile: flock %s: %w", path, err)
	}

	return &Lock{f: f}, nil
}

// Release drops the lock and closes the underlying file. Safe to call
// once; a second call is a no-op returning nil.
func (l *Lock) Release() error {
	if l.f == nil {
		return nil
	}
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		l.f = nil
		return fmt.Errorf("lockfile: unlock: %w", err)
	}
	err := l.f.Close()
	l.f = nil
	return err
}
