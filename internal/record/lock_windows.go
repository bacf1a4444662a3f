// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows
// +build windows

package record

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// chainLock holds an exclusive byte-range lock on the chain lock file via
// LockFileEx, the Windows analogue of the unix flock.
type chainLock struct {
	f *os.File
}

// acquireLock takes the exclusive chain lock, polling non-blocking until
// wait expires. A holder past the deadline is a chain conflict.
func acquireLock(path string, wait time.Duration) (*chainLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open chain lock file: %w", err)
	}
	deadline := time.Now().Add(wait)
	for {
		ol := new(windows.Overlapped)
		err = windows.LockFileEx(windows.Handle(f.Fd()),
			windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
			0, 1, 0, ol)
		if err == nil {
			return &chainLock{f: f}, nil
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("%w: another process holds the chain lock", ErrChainConflict)
		}
		time.Sleep(lockRetryInterval)
	}
}

func (l *chainLock) release() {
	if l == nil || l.f == nil {
		return
	}
	ol := new(windows.Overlapped)
	_ = windows.UnlockFileEx(windows.Handle(l.f.Fd()), 0, 1, 0, ol)
	_ = l.f.Close()
	l.f = nil
}
