// Package lock serializes downloads of the same cache entry across
// processes. Each in-flight download holds a lock file next to its
// temporary path; a second fetch of the same URL fails fast instead of
// corrupting the partial file.
package lock

import (
	"os"

	"github.com/gofrs/flock"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/utils"
)

// Lock guards one download path.
type Lock struct {
	path  string
	flock *flock.Flock
}

// New creates a lock for the given download path. The lock file lives at
// path + ".lock" so the guarded path itself stays free for the download.
func New(path string) *Lock {
	lockPath := path + ".lock"
	return &Lock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// TryAcquire takes the lock without blocking. A lock already held by any
// process, this one included, yields a LockHeldError.
func (l *Lock) TryAcquire() error {
	if err := utils.EnsureDir(l.path); err != nil {
		return err
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return err
	}
	if !locked {
		return domain.NewLockHeldError(l.path)
	}
	return nil
}

// Release drops the lock and removes the lock file. Safe to call when the
// lock was never acquired.
func (l *Lock) Release() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return err
	}
	// Removal is cosmetic; a stale empty lock file does not block the
	// next TryLock.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
