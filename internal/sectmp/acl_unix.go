// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows
// +build !windows

package sectmp

import (
	"fmt"
	"os"
)

// restrictAccess strips any group and world bits from the file and verifies
// the result. os.CreateTemp already creates files 0600, so this guards
// against permissive umasks and filesystems that ignore the create mode.
func restrictAccess(path string) error {
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("chmod failed: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat after chmod failed: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("file still group/world accessible (mode %o)", perm)
	}
	return nil
}
