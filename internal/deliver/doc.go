// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package deliver drains the pending record backlog into the remote sink.
//
// Records are submitted oldest first so the remote log preserves chain
// order. Throttling signals retry with exponential backoff, successes are
// paced to stay under sustained-rate limits, and per-record failures never
// abort a batch. After each batch, processed records older than the
// retention window are purged. A dry-run mode walks the identical path
// without touching the sink or the store.
//
// # Key Types
//
//   - Engine: Runs delivery passes over a record store
//   - Options: Group, stream, pacing, retry, and retention tuning
//   - Summary: Per-pass counts and the failures that occurred
//
// # Usage
//
// Deliver the backlog once:
//
//	engine := deliver.New(st, sk, deliver.Options{Group: "/rigtrail/audit", Stream: "records"})
//	summary, err := engine.DeliverAll(ctx)
//
// Keep delivering as records arrive:
//
//	err := engine.Watch(ctx, deliver.DefaultDebounce, func(s deliver.Summary) {
//		fmt.Printf("delivered %d\n", s.Succeeded)
//	})
//
// # Delivery Guarantee
//
// A record moves from pending/ to processed/ only after the sink
// acknowledges it. A crash between acknowledgment and relocation leaves a
// duplicate pending copy, which the next pass detects and removes without
// resubmitting.
package deliver
