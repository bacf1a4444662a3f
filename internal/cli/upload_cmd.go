// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// upload_cmd.go - Backlog delivery for rigtrail.
//
// Command: upload, deliver
// Short:   Drain the pending backlog into CloudWatch Logs, then purge old records
//
// Examples:
//   rigtrail upload
//   rigtrail upload --dry-run
//   rigtrail upload --watch
//   rigtrail upload --retention-days 30 --json
//
// Flags:
//   --dry-run           Report what a pass would do without touching the sink
//   --watch             Keep running and deliver new records as they appear
//   --retention-days N  Override the processed-record retention window
//   --group NAME        Override the configured log group
//   --stream NAME       Override the configured log stream

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/rigtrail/internal/deliver"
	"github.com/jeranaias/rigtrail/internal/sink"
)

// HandleUpload runs a delivery pass over the pending directory. Individual
// record failures end up in the summary rather than the exit code; only a
// pass that cannot run at all (store unreadable, sink unreachable,
// interrupted) fails the command.
func HandleUpload(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	parser := NewArgParser(args.Raw)
	dryRun := parser.BoolFlag("dry-run")
	watchMode := parser.BoolFlag("watch")

	retention := cfg.Retention()
	if v := parser.Flag("retention-days"); v != "" {
		days, err := ParseIntWithValidation(v, "--retention-days")
		if err != nil {
			return NewValidationError("--retention-days", v, err.Error())
		}
		retention = time.Duration(days) * 24 * time.Hour
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	// SIGINT during a long drain stops between records, leaving the
	// remainder pending for the next run.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Dry runs never contact AWS, so skip credential resolution entirely.
	var sk sink.Sink
	if !dryRun {
		sk, err = newSink(ctx, cfg)
		if err != nil {
			return NewCommandError("upload", "open sink", "could not build CloudWatch client", err)
		}
	}

	eng := deliver.New(st, sk, deliver.Options{
		Group:       parser.FlagOrDefault("group", cfg.Sink.LogGroup),
		Stream:      parser.FlagOrDefault("stream", cfg.LogStream()),
		Retention:   retention,
		Pacing:      cfg.Pacing(),
		MaxAttempts: cfg.Deliver.MaxAttempts,
		DryRun:      dryRun,
		Out:         progressWriter(args),
	})

	if watchMode {
		infof(args, "Watching %s for new records (Ctrl-C to stop)", st.PendingDir())
		err := eng.Watch(ctx, deliver.DefaultDebounce, func(s deliver.Summary) {
			printSummary(args, s, dryRun)
		})
		if err != nil {
			return NewCommandError("upload", "watch pending directory", "watch loop failed", err)
		}
		return nil
	}

	summary, err := eng.DeliverAll(ctx)
	if err != nil {
		return NewCommandError("upload", "deliver backlog", "delivery pass aborted", err)
	}
	printSummary(args, summary, dryRun)
	return nil
}

// printSummary reports one delivery pass in the selected output mode.
func printSummary(args Args, s deliver.Summary, dryRun bool) {
	if args.JSON {
		resp := NewJSONResponse("upload", UploadData{Summary: s, DryRun: dryRun})
		if err := resp.Print(); err != nil {
			StderrPrintf("Warning: %v\n", err)
		}
		return
	}

	if dryRun {
		infof(args, "[DRY RUN] %d record(s) would be delivered, %d duplicate(s) would be removed, %d would be purged",
			s.Succeeded, s.Skipped, s.WouldPurge)
		return
	}

	infof(args, "Delivered %d record(s), %d failed, %d duplicate(s) skipped, %d purged",
		s.Succeeded, s.Failed, s.Skipped, s.Purged)
	for _, f := range s.Failures {
		StderrPrintf("  %s: %s\n", f.ID, f.Reason)
	}
}
