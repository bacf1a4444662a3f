// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line interface parsing and execution for
// rigtrail.
//
// This package implements all CLI commands for the rigtrail audit pipeline:
// minting trace IDs, masking PII, building signed records, and moving them
// to CloudWatch Logs.
//
// # Key Types
//
//   - Command: Enumeration of all available CLI commands
//   - Args: Parsed global flags plus the command's own raw arguments
//   - JSONResponse: Envelope for --json output so scripted callers get a
//     stable shape across commands
//
// # Usage
//
// Parse and dispatch commands:
//
//	cmd, args := cli.Parse()
//	switch cmd {
//	case cli.CmdRecord:
//	    err = cli.HandleRecord(args)
//	case cli.CmdUpload:
//	    err = cli.HandleUpload(args)
//	// ... other commands
//	}
//
// # Commands Overview
//
// Pipeline commands:
//   - trace-id: mint a correlation ID
//   - mask: redact PII from text
//   - record: build, sign, and persist an audit record
//
// Delivery commands:
//   - send: deliver one record file
//   - upload: drain the pending backlog, with --watch and --dry-run modes
//
// Integrity commands:
//   - verify: check signatures and hash-chain linkage
//   - keys: generate or inspect the signing pair
//   - status: show store, chain, key, and sink state
//
// All commands support --json for scripted callers.
package cli
