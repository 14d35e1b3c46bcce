// Package workspace serializes runs that share an application workspace.
package workspace

import (
	"os"
	"path/filepath"

	"github.com/danjacques/gofslock/fslock"
	"github.com/pkg/errors"
)

// ErrBusy is returned when another run holds the workspace.
var ErrBusy = errors.New("deployment already in progress for this workspace")

// Locker implements ports.WorkspaceLocker with a lock file next to the
// workspace directory, so the directory itself stays clonable.
type Locker struct{}

func (Locker) Lock(dir string) (func() error, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating workspace root")
	}

	h, err := fslock.Lock(dir + ".lock")
	switch {
	case err == fslock.ErrLockHeld:
		return nil, errors.Wrap(ErrBusy, dir)
	case err != nil:
		return nil, errors.Wrapf(err, "locking workspace %s", dir)
	}
	return h.Unlock, nil
}
