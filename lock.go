// OS-level advisory file locking for cross-process exclusion.
//
// kelo supports exactly one open handle per database directory (spec.md
// §5): a second Open/Create on the same path must fail fast rather than
// block. fileLock wraps flock(2) / LockFileEx in non-blocking mode with
// a mutex guarding the file handle's lifetime, so a concurrent Close
// cannot race the flock syscall against Fd().
package kelo

import (
	"os"
	"path/filepath"
	"sync"
)

type fileLock struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// acquireLock opens (creating if necessary) the zero-byte LOCK file in
// dir and takes a non-blocking exclusive flock on it. Returns
// *DatabaseLockedError if another handle already holds it.
func acquireLock(dir string) (*fileLock, error) {
	path := filepath.Join(dir, "LOCK")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	l := &fileLock{f: f, path: path}
	if err := l.lock(); err != nil {
		f.Close()
		return nil, &DatabaseLockedError{Path: path}
	}
	return l, nil
}

// release unlocks and closes the lock file. Safe to call once.
func (l *fileLock) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return
	}
	_ = l.unlock()
	_ = l.f.Close()
	l.f = nil
}
