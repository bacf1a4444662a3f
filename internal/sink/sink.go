// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sink submits audit records to the remote log service. The Sink
// interface isolates the delivery engine from the concrete transport; the
// CloudWatch implementation classifies service failures into the three
// sentinel errors the retry logic dispatches on.
package sink

import (
	"context"
	"errors"
)

var (
	// ErrThrottled reports a rate-limit signal from the sink. The caller
	// may retry after backing off.
	ErrThrottled = errors.New("sink throttled the request")

	// ErrAuth reports rejected or missing credentials. Retrying cannot
	// succeed until the operator fixes the credential setup.
	ErrAuth = errors.New("sink rejected credentials")

	// ErrTransport reports any other delivery failure: network trouble,
	// service faults, malformed requests.
	ErrTransport = errors.New("sink transport failure")
)

// Event is one log event: an epoch-milliseconds timestamp and the record
// JSON as its message.
type Event struct {
	TimestampMs int64
	Message     string
}

// Sink accepts batches of events for one destination stream. Put returns
// nil only when the sink has acknowledged the batch; the delivery engine
// treats that acknowledgment as the point of no return for a record.
type Sink interface {
	Put(ctx context.Context, group, stream string, events []Event) error
}
