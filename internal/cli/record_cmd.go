// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// record_cmd.go - Audit record creation for rigtrail.
//
// Command: record
// Short:   Build, sign, and persist one chain-linked audit record
//
// The request body is scanned for PII and both bodies are reduced to
// SHA-256 digests; no body text, masked or raw, ever reaches the record
// file. The record extends the local hash chain under an exclusive lock
// and lands in the pending area for later upload.
//
// Examples:
//   rigtrail record --method POST/chat --request-body req.json --response-body resp.json
//   rigtrail record --method POST/chat --request-body - --response-body resp.json \
//       --model claude-sonnet --status 200 --tokens 1847
//   rigtrail record --method POST/chat --request-body req.txt --response-body resp.txt \
//       --language en --remote --json
//
// Flags:
//   --method M              Request method label (required)
//   --request-body F|-      Request body file, or - for stdin (required)
//   --response-body F|-     Response body file, or - for stdin (required)
//   --model NAME            Model identifier stored in the record
//   --status S              Response status label (default: 200)
//   --tokens N              Token count stored in the record
//   --language LANG         Body language for PII detection
//   --remote                Use the remote classifier tier as well
//
// Missing key material is a setup error: run 'rigtrail keys generate' once
// before the first record.

package cli

import (
	"context"
	"strconv"

	"github.com/jeranaias/rigtrail/internal/keys"
	"github.com/jeranaias/rigtrail/internal/record"
	"github.com/jeranaias/rigtrail/internal/redact"
	"github.com/jeranaias/rigtrail/internal/trace"
)

// HandleRecord handles the "record" command.
func HandleRecord(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	parser := NewArgParser(args.Raw)

	method := parser.Flag("method")
	if method == "" {
		return ErrMissingArgument("--method", "rigtrail record --method POST/chat --request-body req.json --response-body resp.json")
	}
	reqPath := parser.Flag("request-body")
	if reqPath == "" {
		return ErrMissingArgument("--request-body", "rigtrail record --method POST/chat --request-body req.json --response-body resp.json")
	}
	respPath := parser.Flag("response-body")
	if respPath == "" {
		return ErrMissingArgument("--response-body", "rigtrail record --method POST/chat --request-body req.json --response-body resp.json")
	}
	if reqPath == "-" && respPath == "-" {
		return NewValidationError("--request-body/--response-body", "-", "only one body can come from stdin")
	}

	tokens := 0
	if raw := parser.Flag("tokens"); raw != "" {
		tokens, err = strconv.Atoi(raw)
		if err != nil || tokens < 0 {
			return NewValidationError("--tokens", raw, "must be a non-negative integer")
		}
	}

	kp, err := keys.Load(cfg.KeysDir())
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	reqBody, err := readBody(reqPath)
	if err != nil {
		return err
	}
	respBody, err := readBody(respPath)
	if err != nil {
		return err
	}

	id := trace.New()
	lang := parser.FlagOrDefault("language", cfg.Redact.Language)
	useRemote := parser.BoolFlag("remote") || cfg.Redact.UseRemote

	ctx := context.Background()
	masker, remote := newMasker(ctx, cfg, useRemote)

	detection := masker.Mask(ctx, string(reqBody), lang, useRemote)
	verbosef(args, "trace %s: detector %s masked %d span(s)",
		id.UUID, detection.DetectorUsed, detection.TotalMasked)

	// Auxiliary NLP analysis rides along only when the remote tier is up;
	// each sub-call is best-effort and a nil result simply omits the section.
	var analysis *redact.Analysis
	if remote != nil && cfg.Redact.AnalysisEnabled {
		analysis = remote.Analyze(ctx, string(reqBody), lang)
	}

	builder := record.NewBuilder(kp, st)
	rec, handle, err := builder.Build(record.Input{
		TraceID:      id,
		Method:       method,
		Model:        parser.Flag("model"),
		RequestBody:  reqBody,
		ResponseBody: respBody,
		Status:       parser.FlagOrDefault("status", "200"),
		Tokens:       tokens,
		PIIDetection: detection,
		NLPAnalysis:  analysis,
	})
	if err != nil {
		return err
	}

	if args.JSON {
		data := RecordData{
			TraceID:     rec.TraceID,
			Path:        handle.Path,
			RecordHash:  rec.RecordHash,
			TotalMasked: detection.TotalMasked,
			Detector:    detection.DetectorUsed,
		}
		if rec.PrevHash != nil {
			data.PrevHash = *rec.PrevHash
		}
		resp := NewJSONResponse("record", data)
		return resp.Print()
	}

	infof(args, "Recorded %s", rec.TraceID)
	infof(args, "  Record: %s", handle.Path)
	if detection.TotalMasked > 0 {
		infof(args, "  PII: %d span(s) masked by %s", detection.TotalMasked, detection.DetectorUsed)
	}
	return nil
}
