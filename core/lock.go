package core

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// lockFileName is the zero-byte file used for whole-directory exclusion.
const lockFileName = "notus.lock"

// dirLock holds the exclusive OS-level lock on a datastore directory's
// notus.lock file for the lifetime of an open DB.
type dirLock struct {
	dir  string
	file *os.File
}

// acquireDirLock creates (if needed) and exclusively, non-blockingly
// locks <dir>/notus.lock, following the pattern of
// calvinalkan-agent-task's internal/ticket/lock.go: a plain flock on a
// dedicated lock file rather than a library wrapper around the whole
// directory. It returns ErrLockFailed if another process already
// holds the lock.
func acquireDirLock(dir string) (*dirLock, error) {
	path := filepath.Join(dir, lockFileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %q: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s", ErrLockFailed, dir)
	}

	return &dirLock{dir: dir, file: f}, nil
}

// release unlocks and closes the lock file. It does not remove it:
// the lock file is a permanent fixture of the datastore directory.
func (l *dirLock) release() error {
	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
