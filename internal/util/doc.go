// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides shared filesystem helpers for the rigtrail pipeline.
//
// Everything rigtrail persists is either security-sensitive (key material,
// chain state) or tamper-evident (audit records), so all writes funnel
// through the atomic helpers here rather than os.WriteFile.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//   - AtomicWriteFileWithDir: same, with explicit directory permissions
//   - WriteJSONFile: indented JSON through the atomic path
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
package util
