// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package trace generates and parses the correlation identifiers that tie
// one request/response exchange to its audit record.
//
// A trace id couples a version-4 UUID with a UTC creation timestamp at
// second resolution, externally rendered as "<uuid>:<ISO8601>". The string
// form of the timestamp component sorts in creation order, which downstream
// consumers rely on for chronological replay.
//
// # Key Types
//
//   - TraceID: The identifier value, a UUID plus its creation time
//
// # Usage
//
//	id := trace.New()
//	fmt.Println(id.String())   // 3b241101-…-4b9d:2025-06-01T12:00:00Z
//	fmt.Println(id.FileName()) // 3b241101-…-4b9d.json
//
// Parse the external form back into its parts:
//
//	id, err := trace.Parse("3b241101-e85b-42f1-9e1e-6c9d53da4b9d:2025-06-01T12:00:00Z")
package trace
