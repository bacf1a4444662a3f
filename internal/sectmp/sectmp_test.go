// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sectmp

import (
	"bytes"
	"errors"
	"os"
	"runtime"
	"testing"
)

// ===== WITHFILE LIFECYCLE =====

func TestWithFile_ContentVisibleInsideCallback(t *testing.T) {
	want := []byte("request payload with secrets")

	var seen []byte
	err := WithFile(want, func(path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		seen = data
		return nil
	})
	if err != nil {
		t.Fatalf("WithFile failed: %v", err)
	}
	if !bytes.Equal(seen, want) {
		t.Errorf("callback read %q, want %q", seen, want)
	}
}

func TestWithFile_RemovesFileOnSuccess(t *testing.T) {
	var path string
	err := WithFile([]byte("data"), func(p string) error {
		path = p
		return nil
	})
	if err != nil {
		t.Fatalf("WithFile failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file %s still exists after WithFile returned", path)
	}
}

func TestWithFile_RemovesFileOnError(t *testing.T) {
	wantErr := errors.New("callback failure")

	var path string
	err := WithFile([]byte("data"), func(p string) error {
		path = p
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithFile error = %v, want %v", err, wantErr)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file %s still exists after callback error", path)
	}
}

func TestWithFile_RemovesFileOnPanic(t *testing.T) {
	var path string

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = WithFile([]byte("data"), func(p string) error {
			path = p
			panic("callback blew up")
		})
	}()

	if path == "" {
		t.Fatal("callback never ran")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file %s still exists after callback panic", path)
	}
}

// ===== PERMISSIONS =====

func TestWithFile_OwnerOnlyPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("mode bits are not meaningful on Windows")
	}

	err := WithFile([]byte("data"), func(path string) error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if perm := info.Mode().Perm(); perm&0077 != 0 {
			t.Errorf("temporary file mode = %o, want owner-only", perm)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithFile failed: %v", err)
	}
}

// ===== SCOPED FORM =====

func TestScoped_CreateAndClose(t *testing.T) {
	s, err := Create([]byte("long-lived payload"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "long-lived payload" {
		t.Errorf("content = %q, want %q", data, "long-lived payload")
	}

	path := s.Path
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file %s still exists after Close", path)
	}
}

func TestScoped_CloseIsIdempotent(t *testing.T) {
	s, err := Create([]byte("data"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestScoped_CloseNil(t *testing.T) {
	var s *Scoped
	if err := s.Close(); err != nil {
		t.Fatalf("Close on nil receiver failed: %v", err)
	}
}

func TestWithFile_EmptyContent(t *testing.T) {
	err := WithFile(nil, func(path string) error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.Size() != 0 {
			t.Errorf("file size = %d, want 0", info.Size())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithFile failed: %v", err)
	}
}
