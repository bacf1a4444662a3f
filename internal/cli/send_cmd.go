// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// send_cmd.go - Single-record delivery for rigtrail.
//
// Command: send
// Short:   Deliver a single audit record to CloudWatch Logs
//
// Examples:
//   rigtrail send --record ~/.rigtrail/records/pending/<trace-id>.json
//   rigtrail record ... --json | rigtrail send --record -
//   rigtrail send --record rec.json --group /custom/group --stream ci-runner
//
// Flags:
//   --record FILE   Record JSON to deliver, or - to read it from stdin
//   --group NAME    Override the configured log group
//   --stream NAME   Override the configured log stream

package cli

import (
	"context"
	"fmt"

	"github.com/jeranaias/rigtrail/internal/deliver"
	"github.com/jeranaias/rigtrail/internal/record"
	"github.com/jeranaias/rigtrail/internal/sectmp"
	"github.com/jeranaias/rigtrail/internal/sink"
)

// HandleSend delivers one record file to the log sink, bypassing the store.
// Throttling is retried with backoff; auth and transport failures are not.
func HandleSend(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	parser := NewArgParser(args.Raw)
	recPath := parser.Flag("record")
	if recPath == "" {
		return ErrMissingArgument("--record",
			"rigtrail send --record ~/.rigtrail/records/pending/<trace-id>.json or --record - for stdin")
	}

	group := parser.FlagOrDefault("group", cfg.Sink.LogGroup)
	stream := parser.FlagOrDefault("stream", cfg.LogStream())

	ctx := context.Background()
	sk, err := newSink(ctx, cfg)
	if err != nil {
		return NewCommandError("send", "open sink", "could not build CloudWatch client", err)
	}

	opts := deliver.Options{
		Group:       group,
		Stream:      stream,
		MaxAttempts: cfg.Deliver.MaxAttempts,
		Out:         progressWriter(args),
	}

	if recPath == "-" {
		data, err := readBody("-")
		if err != nil {
			return NewCommandError("send", "read stdin", "could not read record from stdin", err)
		}
		// Piped records are spooled through an owner-only temp file so the
		// delivery path always works from a file and nothing readable is
		// left behind if the process dies mid-send.
		err = sectmp.WithFile(data, func(path string) error {
			return sendFile(ctx, args, sk, opts, path)
		})
		return err
	}
	return sendFile(ctx, args, sk, opts, recPath)
}

// sendFile reads a record from path, delivers it, and reports the result.
func sendFile(ctx context.Context, args Args, sk sink.Sink, opts deliver.Options, path string) error {
	data, err := readBody(path)
	if err != nil {
		return NewCommandError("send", "read record", fmt.Sprintf("could not read %s", path), err)
	}

	rec, err := record.Unmarshal(data)
	if err != nil {
		return NewCommandError("send", "parse record", fmt.Sprintf("%s is not a valid audit record", path), err)
	}

	verbosef(args, "Sending %s to %s/%s", rec.TraceID, opts.Group, opts.Stream)

	if err := deliver.SendOne(ctx, sk, opts, data); err != nil {
		return NewCommandError("send", "deliver record", fmt.Sprintf("delivery of %s failed", rec.TraceID), err)
	}

	if args.JSON {
		resp := NewJSONResponse("send", SendData{
			TraceID: rec.TraceID,
			Group:   opts.Group,
			Stream:  opts.Stream,
		})
		return resp.Print()
	}

	infof(args, "Delivered %s to %s/%s", rec.TraceID, opts.Group, opts.Stream)
	return nil
}
