// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Shared plumbing for rigtrail command handlers: config
// resolution, store/masker construction, and body input handling.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/rigtrail/internal/config"
	"github.com/jeranaias/rigtrail/internal/redact"
	"github.com/jeranaias/rigtrail/internal/sink"
	"github.com/jeranaias/rigtrail/internal/store"
)

// loadConfig resolves the effective configuration, honoring --config PATH,
// and installs it as the process global.
func loadConfig(args Args) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	config.SetGlobal(cfg)
	return cfg, nil
}

// openStore opens the record store at the configured root, creating the
// pending/ and processed/ layout on first use.
func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.StoreDir())
}

// readBody reads a request or response body from a file, or from stdin when
// path is "-". Bodies are hashed and scanned, never persisted, so there is
// no size guard here beyond the masker's own text budget.
func readBody(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// newMasker builds the layered masker from config. The remote classifier is
// constructed only when requested; a construction failure degrades to the
// local tier with a warning, because masking must never block on AWS
// availability.
func newMasker(ctx context.Context, cfg *config.Config, useRemote bool) (*redact.Masker, *redact.Comprehend) {
	opts := redact.Options{
		Threshold:     cfg.Redact.ConfidenceThreshold,
		MaxTextBytes:  cfg.Redact.MaxTextBytes,
		RemoteTimeout: cfg.SinkTimeout(),
	}

	var remote *redact.Comprehend
	if useRemote {
		var err error
		remote, err = redact.NewComprehend(ctx, cfg.Sink.Region, cfg.Sink.Profile, cfg.SinkTimeout())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: remote classifier unavailable, using local patterns only: %v\n", err)
			remote = nil
		} else {
			opts.Classifier = remote
		}
	}

	return redact.NewMasker(opts), remote
}

// newSink builds the CloudWatch sink from config.
func newSink(ctx context.Context, cfg *config.Config) (sink.Sink, error) {
	return sink.NewCloudWatch(ctx, cfg.Sink.Region, cfg.Sink.Profile, cfg.SinkTimeout())
}

// progressWriter returns the stream for incremental progress lines. Quiet
// discards them; JSON mode diverts them to stderr so stdout stays parseable.
func progressWriter(args Args) io.Writer {
	if args.Quiet {
		return io.Discard
	}
	if args.JSON {
		return os.Stderr
	}
	return os.Stdout
}

// verbosef prints a diagnostic line to stderr when --verbose is set.
func verbosef(args Args, format string, a ...interface{}) {
	if args.Verbose {
		fmt.Fprintf(os.Stderr, format+"\n", a...)
	}
}

// infof prints a progress line to stdout unless --quiet or --json is set.
// JSON mode keeps stdout machine-parseable; human notes go to stderr.
func infof(args Args, format string, a ...interface{}) {
	if args.Quiet {
		return
	}
	if args.JSON {
		fmt.Fprintf(os.Stderr, format+"\n", a...)
		return
	}
	fmt.Printf(format+"\n", a...)
}
