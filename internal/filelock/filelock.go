// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package filelock provides the non-blocking advisory lock that keeps a second
// devbox session from starting in the same project.
package filelock

import (
	"errors"
	"os"
	"strings"

	"github.com/gofrs/flock"
)

// ErrAlreadyLocked indicates the lock is currently held by another process.
var ErrAlreadyLocked = errors.New("already locked")

// Lock represents a held file lock.
type Lock interface{ Release() error }

type fileLock struct{ fl *flock.Flock }

// Acquire obtains a non-blocking exclusive lock for path and optionally writes payload.
func Acquire(path string, payload string) (Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyLocked
	}
	l := &fileLock{fl: fl}
	if payload != "" {
		if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
			return nil, errors.Join(err, l.Release())
		}
	}
	return l, nil
}

// IsLocked reports whether path is currently locked by another process.
func IsLocked(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return false
	}
	if ok {
		fl.Unlock()
		return false
	}
	return true
}

// Owner returns the payload the holder of the lock at path wrote, with
// surrounding whitespace removed.
func Owner(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (l *fileLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
