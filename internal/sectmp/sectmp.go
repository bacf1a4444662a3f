// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sectmp provides scoped temporary files for payloads that may hold
// sensitive content. Files are created owner-only, access is tightened with
// platform ACLs where the OS supports it, and removal is guaranteed on every
// exit path, including panics in the caller's function.
package sectmp

import (
	"fmt"
	"io"
	"os"
)

// filePattern is the name template handed to os.CreateTemp. The random
// middle section keeps concurrent callers from colliding.
const filePattern = "rigtrail-*.tmp"

// warnOutput receives permission warnings. Tests swap it to capture output.
var warnOutput io.Writer = os.Stderr

// Scoped is a temporary file that lives until Close. Most callers should use
// WithFile; Scoped exists for the cases where the file must outlive a single
// function call, such as handing a path to a subprocess.
type Scoped struct {
	// Path is the absolute location of the temporary file.
	Path string
}

// Create writes content to a fresh temporary file in the system temp
// directory and tightens its permissions to the current user. A failure to
// tighten permissions is reported on stderr but does not abort: the file was
// already created 0600 by os.CreateTemp, and refusing to proceed would leave
// the pipeline unable to record anything on filesystems without ACL support.
func Create(content []byte) (*Scoped, error) {
	f, err := os.CreateTemp("", filePattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := restrictAccess(path); err != nil {
		fmt.Fprintf(warnOutput, "Warning: could not restrict permissions on %s: %v\n", path, err)
	}

	return &Scoped{Path: path}, nil
}

// Close removes the file. Safe to call more than once.
func (s *Scoped) Close() error {
	if s == nil || s.Path == "" {
		return nil
	}
	err := os.Remove(s.Path)
	s.Path = ""
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temporary file: %w", err)
	}
	return nil
}

// WithFile writes content to a scoped temporary file, invokes fn with its
// path, and removes the file before returning. Removal happens even if fn
// panics. fn's error takes precedence over a removal error.
func WithFile(content []byte, fn func(path string) error) error {
	s, err := Create(content)
	if err != nil {
		return err
	}
	// Close is idempotent; the defer covers the panic path only.
	defer s.Close()

	if err := fn(s.Path); err != nil {
		s.Close()
		return err
	}
	return s.Close()
}
