// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists audit records as discrete write-once files: one
// JSON file per record under pending/, relocated to a sibling processed/
// directory only after confirmed remote delivery, and purged from
// processed/ once past the retention window.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/rigtrail/internal/util"
)

const (
	pendingDir   = "pending"
	processedDir = "processed"
	recordExt    = ".json"
)

// Handle identifies one persisted record file.
type Handle struct {
	ID      string
	Path    string
	ModTime time.Time
}

// Store is a record directory rooted at one working dir.
type Store struct {
	root string
}

// Open prepares the pending/ and processed/ layout under root.
func Open(root string) (*Store, error) {
	for _, sub := range []string{pendingDir, processedDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0700); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store's working directory.
func (s *Store) Root() string { return s.root }

// PendingDir returns the directory holding undelivered records.
func (s *Store) PendingDir() string { return filepath.Join(s.root, pendingDir) }

// ProcessedDir returns the directory holding delivered records.
func (s *Store) ProcessedDir() string { return filepath.Join(s.root, processedDir) }

// Persist writes one record, write-once. An existing pending or processed
// record with the same id is refused: record files are immutable and
// duplicate unique ids mean a caller bug, not a retry.
func (s *Store) Persist(id string, data []byte) (Handle, error) {
	if id == "" {
		return Handle{}, fmt.Errorf("record id is empty")
	}
	name := id + recordExt
	pendingPath := filepath.Join(s.PendingDir(), name)
	processedPath := filepath.Join(s.ProcessedDir(), name)

	for _, p := range []string{pendingPath, processedPath} {
		if _, err := os.Stat(p); err == nil {
			return Handle{}, fmt.Errorf("record %s already exists at %s", id, p)
		}
	}

	if err := util.AtomicWriteFile(pendingPath, data, 0600); err != nil {
		return Handle{}, fmt.Errorf("failed to persist record %s: %w", id, err)
	}
	info, err := os.Stat(pendingPath)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to stat persisted record: %w", err)
	}
	return Handle{ID: id, Path: pendingPath, ModTime: info.ModTime()}, nil
}

// Read returns the record bytes for a handle.
func (s *Store) Read(h Handle) ([]byte, error) {
	data, err := os.ReadFile(h.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", h.ID, err)
	}
	return data, nil
}

// ListPending returns undelivered records oldest first. Record creation is
// serialized behind the chain lock, so mtime order is chain order; the id
// breaks ties.
func (s *Store) ListPending() ([]Handle, error) {
	return s.list(s.PendingDir())
}

// ListProcessed mirrors ListPending for the processed area.
func (s *Store) ListProcessed() ([]Handle, error) {
	return s.list(s.ProcessedDir())
}

func (s *Store) list(dir string) ([]Handle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	handles := make([]Handle, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// File vanished between ReadDir and stat.
			continue
		}
		handles = append(handles, Handle{
			ID:      strings.TrimSuffix(e.Name(), recordExt),
			Path:    filepath.Join(dir, e.Name()),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(handles, func(i, j int) bool {
		if handles[i].ModTime.Equal(handles[j].ModTime) {
			return handles[i].ID < handles[j].ID
		}
		return handles[i].ModTime.Before(handles[j].ModTime)
	})
	return handles, nil
}

// MoveToProcessed relocates a delivered record. Plain rename: atomic under
// normal filesystem semantics, never copy+delete, and mtime survives so
// retention still measures creation age.
func (s *Store) MoveToProcessed(h Handle) error {
	dest := filepath.Join(s.ProcessedDir(), h.ID+recordExt)
	if err := os.Rename(h.Path, dest); err != nil {
		return fmt.Errorf("failed to move record %s to processed: %w", h.ID, err)
	}
	return nil
}

// IsProcessed reports whether a record id already reached the processed
// area. This is the delivery idempotency guard: a crash between remote
// acceptance and the local move leaves the record pending, and the next run
// consults this before re-submitting.
func (s *Store) IsProcessed(id string) bool {
	_, err := os.Stat(filepath.Join(s.ProcessedDir(), id+recordExt))
	return err == nil
}

// RemovePending deletes one pending record file. Only the delivery engine
// calls this, and only for records whose processed twin already exists.
func (s *Store) RemovePending(h Handle) error {
	if err := os.Remove(h.Path); err != nil {
		return fmt.Errorf("failed to remove pending record %s: %w", h.ID, err)
	}
	return nil
}

// PurgeProcessedOlderThan deletes processed records whose creation age
// exceeds maxAge. The pending area is never touched: an undelivered record
// outlives any retention window.
func (s *Store) PurgeProcessedOlderThan(maxAge time.Duration) ([]Handle, error) {
	candidates, err := s.PreviewPurge(maxAge)
	if err != nil {
		return nil, err
	}
	purged := make([]Handle, 0, len(candidates))
	for _, h := range candidates {
		if err := os.Remove(h.Path); err != nil {
			return purged, fmt.Errorf("failed to purge record %s: %w", h.ID, err)
		}
		purged = append(purged, h)
	}
	return purged, nil
}

// PreviewPurge lists what PurgeProcessedOlderThan would delete, deleting
// nothing.
func (s *Store) PreviewPurge(maxAge time.Duration) ([]Handle, error) {
	handles, err := s.ListProcessed()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-maxAge)
	var old []Handle
	for _, h := range handles {
		if h.ModTime.Before(cutoff) {
			old = append(old, h)
		}
	}
	return old, nil
}
