// Package instance enforces that only one Campus VPN process runs per user.
// Two concurrent processes would race over the browser profile and spawn
// duplicate tunnels, so the second invocation must refuse to start.
package instance

import (
	"github.com/gofrs/flock"

	"github.com/yllada/campus-vpn/common"
)

// Lease holds the single-instance lock for the lifetime of the process.
// The lock is released by Release or automatically when the process exits.
type Lease struct {
	lock *flock.Flock
}

// Acquire takes the single-instance lock in the user's data directory.
// It fails immediately with ErrAlreadyRunning when another process holds it.
func Acquire() (*Lease, error) {
	path, err := common.GetLockFilePath()
	if err != nil {
		return nil, err
	}
	return AcquireAt(path)
}

// AcquireAt takes the lock at an explicit path.
func AcquireAt(path string) (*Lease, error) {
	lock := flock.New(path)

	locked, err := lock.TryLock()
	if err != nil {
		return nil, common.WrapError(err, "failed to acquire instance lock")
	}
	if !locked {
		return nil, common.ErrAlreadyRunning
	}

	return &Lease{lock: lock}, nil
}

// Release drops the lock. Call it once at shutdown.
func (l *Lease) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

// Path returns the lock file path.
func (l *Lease) Path() string {
	if l == nil || l.lock == nil {
		return ""
	}
	return l.lock.Path()
}
