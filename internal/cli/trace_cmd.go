// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// trace_cmd.go - Trace identifier generation for rigtrail.
//
// Command: trace-id
// Short:   Generate one trace identifier
//
// Examples:
//   rigtrail trace-id            Print <uuid>:<timestamp>
//   rigtrail trace-id --json     Print structured identifier

package cli

import (
	"fmt"

	"github.com/jeranaias/rigtrail/internal/trace"
)

// HandleTraceID handles the "trace-id" command. The identifier pairs a v4
// UUID with a second-resolution UTC creation timestamp; callers thread it
// through masking and recording so one exchange stays correlated end to end.
func HandleTraceID(args Args) error {
	id := trace.New()

	if args.JSON {
		resp := NewJSONResponse("trace-id", TraceData{
			TraceID:   id.String(),
			UUID:      id.UUID.String(),
			CreatedAt: id.CreatedAt.Format(trace.TimestampLayout),
		})
		return resp.Print()
	}

	fmt.Println(id.String())
	return nil
}
