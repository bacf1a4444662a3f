// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package trace generates and parses the trace identifiers that key every
// audit record.
//
// A TraceID pairs a version-4 UUID with a UTC wall-clock timestamp truncated
// to whole seconds. The string form "<uuid>:<RFC3339>" sorts chronologically
// by its timestamp component, which is what the delivery engine relies on for
// oldest-first replay.
package trace

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the wire format of the timestamp component. Second
// resolution: identifiers created in sequence compare non-decreasing.
const TimestampLayout = "2006-01-02T15:04:05Z"

// timeNow is swapped in tests to pin the clock.
var timeNow = time.Now

// TraceID uniquely identifies one request/response exchange. Immutable once
// created; owned by the caller for the lifetime of the exchange.
type TraceID struct {
	UUID      uuid.UUID
	CreatedAt time.Time
}

// New returns a fresh TraceID from a cryptographically strong random UUID
// and the current UTC time truncated to seconds. It never fails.
func New() TraceID {
	return TraceID{
		UUID:      uuid.New(),
		CreatedAt: timeNow().UTC().Truncate(time.Second),
	}
}

// String renders the identifier as "<uuid>:<YYYY-MM-DDTHH:mm:ssZ>".
func (t TraceID) String() string {
	return t.UUID.String() + ":" + t.CreatedAt.UTC().Format(TimestampLayout)
}

// FileName returns the record file name derived from the unique component.
// The timestamp is deliberately excluded so renames and retention never have
// to re-parse it.
func (t TraceID) FileName() string {
	return t.UUID.String() + ".json"
}

// IsZero reports whether t is the zero TraceID.
func (t TraceID) IsZero() bool {
	return t.UUID == uuid.Nil && t.CreatedAt.IsZero()
}

// Parse reverses String. The timestamp component itself contains colons, so
// only the first colon separates the two halves.
func Parse(s string) (TraceID, error) {
	idPart, tsPart, found := strings.Cut(s, ":")
	if !found {
		return TraceID{}, fmt.Errorf("invalid trace id %q: missing ':' separator", s)
	}

	id, err := uuid.Parse(idPart)
	if err != nil {
		return TraceID{}, fmt.Errorf("invalid trace id %q: bad uuid: %w", s, err)
	}

	ts, err := time.Parse(TimestampLayout, tsPart)
	if err != nil {
		return TraceID{}, fmt.Errorf("invalid trace id %q: bad timestamp: %w", s, err)
	}

	return TraceID{UUID: id, CreatedAt: ts.UTC()}, nil
}
