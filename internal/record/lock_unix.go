// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows
// +build !windows

package record

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// chainLock holds an exclusive advisory flock on the chain lock file. The
// lock excludes other processes and other open descriptors in this process,
// which is what serializes concurrent builders.
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
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &chainLock{f: f}, nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
			f.Close()
			return nil, fmt.Errorf("failed to lock chain: %w", err)
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
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
	l.f = nil
}
