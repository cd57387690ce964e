//go:build unix || linux || darwin

// flock(2) implementation for Unix platforms, non-blocking.
package kelo

import "syscall"

func (l *fileLock) lock() error {
	return syscall.Flock(int(l.f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func (l *fileLock) unlock() error {
	return syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
}
