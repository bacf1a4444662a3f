// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists audit records as discrete write-once files.
//
// A store root contains two areas: pending/ holds records awaiting remote
// delivery and processed/ holds records the remote sink has acknowledged.
// Records move between areas by rename only, so a crash can never leave a
// record in both places or neither. Retention deletes from processed/
// exclusively; a record that never delivered is never deleted.
//
// # Key Types
//
//   - Store: The two-area record directory
//   - Handle: One record file (id, path, creation time)
//
// # Usage
//
//	st, err := store.Open(dir)
//	h, err := st.Persist(id, recordJSON)
//
// Delivery walks the backlog oldest first:
//
//	pending, err := st.ListPending()
//	for _, h := range pending {
//		// submit, then on acknowledgment:
//		err := st.MoveToProcessed(h)
//	}
//
// # Storage Location
//
// The store root defaults to ~/.rigtrail/records/.
package store
