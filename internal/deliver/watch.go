// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package deliver drains the pending record backlog into the remote sink.
package deliver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last filesystem event
// before a delivery pass runs. Records land in bursts when a proxy fans
// out several captures; one pass per burst keeps sink traffic low.
const DefaultDebounce = 2 * time.Second

// Watch monitors the pending directory and runs a delivery pass after each
// quiet period. An initial pass drains whatever backlog predates the watch.
// Watch blocks until ctx is cancelled and returns nil on a clean stop;
// onPass, when non-nil, receives each pass's summary.
func (e *Engine) Watch(ctx context.Context, debounce time.Duration, onPass func(Summary)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start filesystem watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(e.store.PendingDir()); err != nil {
		return fmt.Errorf("failed to watch pending directory: %w", err)
	}

	if err := e.pass(ctx, onPass); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}

	var timer *time.Timer
	var quiet <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Create covers both direct writes and the rename that finishes
			// an atomic persist. Departures (our own relocations) are not
			// new work and must not retrigger a pass.
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				quiet = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}

		case <-quiet:
			timer = nil
			quiet = nil
			if err := e.pass(ctx, onPass); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(e.opts.Out, "Warning: filesystem watcher error: %v\n", err)
		}
	}
}

func (e *Engine) pass(ctx context.Context, onPass func(Summary)) error {
	summary, err := e.DeliverAll(ctx)
	if err != nil {
		return err
	}
	if onPass != nil {
		onPass(summary)
	}
	return nil
}
