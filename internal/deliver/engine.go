// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package deliver drains the pending record backlog into the remote sink.
package deliver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/rigtrail/internal/record"
	"github.com/jeranaias/rigtrail/internal/sink"
	"github.com/jeranaias/rigtrail/internal/store"
	"github.com/jeranaias/rigtrail/internal/trace"
	"github.com/jeranaias/rigtrail/internal/util"
)

const (
	// DefaultRetention keeps processed records for seven days, matching the
	// remote log group's own retention so the two windows bound total
	// record lifetime together.
	DefaultRetention = 7 * 24 * time.Hour

	// DefaultPacing is the inter-record delay after each successful
	// delivery.
	DefaultPacing = 500 * time.Millisecond

	// DefaultMaxAttempts bounds submissions per record under throttling.
	DefaultMaxAttempts = 3

	failureReasonMax = 200
)

// retryState tracks one record through its delivery attempts.
type retryState int

const (
	stateAttempting retryState = iota
	stateBackoff
	stateSucceeded
	stateFailed
)

// Options configures a delivery engine.
type Options struct {
	Group       string
	Stream      string
	Retention   time.Duration
	Pacing      time.Duration
	MaxAttempts int
	DryRun      bool
	Out         io.Writer

	// baseBackoff is the unit for the 2^k throttle waits; tests shrink it.
	baseBackoff time.Duration
}

// Failure describes one record the batch could not deliver.
type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Summary reports the outcome of one delivery pass.
type Summary struct {
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Purged     int       `json:"purged"`
	WouldPurge int       `json:"would_purge,omitempty"`
	Failures   []Failure `json:"failures,omitempty"`
}

// Engine moves pending records into the sink and applies retention.
type Engine struct {
	store   *store.Store
	sink    sink.Sink
	opts    Options
	limiter *rate.Limiter
}

// withDefaults fills the zero fields so both the engine and one-shot sends
// run with the same retry posture.
func (o Options) withDefaults() Options {
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	if o.Pacing <= 0 {
		o.Pacing = DefaultPacing
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Out == nil {
		o.Out = io.Discard
	}
	if o.baseBackoff <= 0 {
		o.baseBackoff = time.Second
	}
	return o
}

// New builds an engine over st delivering into sk.
func New(st *store.Store, sk sink.Sink, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		store:   st,
		sink:    sk,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.Pacing), 1),
	}
}

// EventFor converts one serialized record into its sink event. The event
// timestamp is the trace creation time, so remote ordering reflects record
// creation rather than delivery; fallback covers records whose trace id no
// longer parses.
func EventFor(data []byte, fallback time.Time) (sink.Event, error) {
	rec, err := record.Unmarshal(data)
	if err != nil {
		return sink.Event{}, fmt.Errorf("failed to parse record for delivery: %w", err)
	}
	ts := fallback
	if id, err := trace.Parse(rec.TraceID); err == nil {
		ts = id.CreatedAt
	}
	return sink.Event{TimestampMs: ts.UnixMilli(), Message: string(data)}, nil
}

// DeliverAll walks the pending backlog oldest first, submits each record,
// relocates acknowledged ones, and finally purges processed records past
// the retention window. Per-record failures never abort the batch; context
// cancellation does, leaving the remainder pending.
func (e *Engine) DeliverAll(ctx context.Context) (Summary, error) {
	var s Summary

	pending, err := e.store.ListPending()
	if err != nil {
		return s, err
	}

	for _, h := range pending {
		if err := ctx.Err(); err != nil {
			return s, err
		}

		// Crash-after-acknowledgment recovery: the processed twin already
		// exists, so the pending copy is a duplicate, not a delivery.
		if e.store.IsProcessed(h.ID) {
			if e.opts.DryRun {
				fmt.Fprintf(e.opts.Out, "[DRY RUN] would remove duplicate pending record %s\n", h.ID)
			} else if err := e.store.RemovePending(h); err != nil {
				fmt.Fprintf(e.opts.Out, "Warning: %v\n", err)
			}
			s.Skipped++
			continue
		}

		if e.opts.DryRun {
			fmt.Fprintf(e.opts.Out, "[DRY RUN] would deliver record %s\n", h.ID)
			s.Succeeded++
			continue
		}

		err := e.submit(ctx, h)
		switch {
		case err == nil:
			if moveErr := e.store.MoveToProcessed(h); moveErr != nil {
				// Delivered but stuck in pending; the next run skips it via
				// the processed check only if the move half-succeeded, and
				// otherwise re-submits, which the sink tolerates.
				fmt.Fprintf(e.opts.Out, "Warning: record %s delivered but not relocated: %v\n", h.ID, moveErr)
			}
			s.Succeeded++
			fmt.Fprintf(e.opts.Out, "Delivered record %s\n", h.ID)
			if err := e.limiter.Wait(ctx); err != nil {
				return s, ctx.Err()
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return s, err
		default:
			s.Failed++
			s.Failures = append(s.Failures, Failure{
				ID:     h.ID,
				Reason: util.TruncateRunes(err.Error(), failureReasonMax),
			})
			fmt.Fprintf(e.opts.Out, "Failed to deliver record %s: %v\n", h.ID, err)
		}
	}

	if e.opts.DryRun {
		candidates, err := e.store.PreviewPurge(e.opts.Retention)
		if err != nil {
			return s, err
		}
		for _, h := range candidates {
			fmt.Fprintf(e.opts.Out, "[DRY RUN] would purge record %s\n", h.ID)
		}
		s.WouldPurge = len(candidates)
		return s, nil
	}

	purged, err := e.store.PurgeProcessedOlderThan(e.opts.Retention)
	s.Purged = len(purged)
	if err != nil {
		return s, fmt.Errorf("delivery completed but purge failed: %w", err)
	}
	return s, nil
}

// submit delivers one pending record through the retry state machine.
func (e *Engine) submit(ctx context.Context, h store.Handle) error {
	data, err := e.store.Read(h)
	if err != nil {
		return err
	}
	event, err := EventFor(data, h.ModTime)
	if err != nil {
		return err
	}
	return submitWithRetry(ctx, e.sink, e.opts, h.ID, event)
}

// SendOne submits a single serialized record with the same retry behavior
// DeliverAll applies per record. The send command uses it to push one record
// file without involving the pending backlog.
func SendOne(ctx context.Context, sk sink.Sink, opts Options, data []byte) error {
	opts = opts.withDefaults()

	rec, err := record.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("failed to parse record for delivery: %w", err)
	}
	label := rec.TraceID
	ts := time.Now()
	if id, err := trace.Parse(rec.TraceID); err == nil {
		label = id.UUID.String()
		ts = id.CreatedAt
	}
	event := sink.Event{TimestampMs: ts.UnixMilli(), Message: string(data)}
	return submitWithRetry(ctx, sk, opts, label, event)
}

// submitWithRetry drives one event through the retry state machine.
// Throttling backs off 2^k units after attempt k up to the attempt cap; any
// other error fails the record immediately.
func submitWithRetry(ctx context.Context, sk sink.Sink, opts Options, id string, event sink.Event) error {
	state := stateAttempting
	attempt := 0
	var lastErr error
	for {
		switch state {
		case stateAttempting:
			attempt++
			lastErr = sk.Put(ctx, opts.Group, opts.Stream, []sink.Event{event})
			switch {
			case lastErr == nil:
				state = stateSucceeded
			case errors.Is(lastErr, sink.ErrThrottled) && attempt < opts.MaxAttempts:
				state = stateBackoff
			default:
				state = stateFailed
			}
		case stateBackoff:
			wait := opts.baseBackoff << attempt
			fmt.Fprintf(opts.Out, "Throttled on record %s, retrying in %s\n", id, wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				state = stateAttempting
			}
		case stateSucceeded:
			return nil
		case stateFailed:
			return lastErr
		}
	}
}
