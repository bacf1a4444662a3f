// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// mask_cmd.go - Standalone PII masking for rigtrail.
//
// Command: mask <text>
// Short:   Mask PII in text without recording anything
//
// The local pattern tier always runs. The remote classifier tier is added
// with --remote (or redact.use_remote in config); when it is unreachable
// the command degrades to local patterns and says so in the result
// metadata instead of failing.
//
// Examples:
//   rigtrail mask "連絡先: taro@example.com"       Mask inline text
//   rigtrail mask --file prompt.txt                Mask a file's contents
//   rigtrail mask --file prompt.txt --remote      Add the remote tier
//   rigtrail mask "call +81-90-1234-5678" --language en --json
//
// Flags:
//   --file F          Read the text from a file instead of arguments
//   --language LANG   Text language (default from config)
//   --remote          Use the remote classifier tier as well
//   --json            Full detection result instead of masked text

package cli

import (
	"context"
	"fmt"

	"github.com/jeranaias/rigtrail/internal/redact"
)

// HandleMask handles the "mask" command.
func HandleMask(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	parser := NewArgParser(args.Raw)

	var text string
	if file := parser.Flag("file"); file != "" {
		data, err := readBody(file)
		if err != nil {
			return err
		}
		text = string(data)
	} else {
		text = JoinPositionalArgs(parser, 0)
	}
	if text == "" {
		return ErrMissingArgument("text", `rigtrail mask "some text" or rigtrail mask --file prompt.txt`)
	}

	lang := parser.FlagOrDefault("language", cfg.Redact.Language)
	useRemote := parser.BoolFlag("remote") || cfg.Redact.UseRemote

	ctx := context.Background()
	masker, remote := newMasker(ctx, cfg, useRemote)

	result := masker.Mask(ctx, text, lang, useRemote)
	verbosef(args, "detector: %s, masked: %d, score: %.2f",
		result.DetectorUsed, result.TotalMasked, result.Score)

	// Same pairing as the record path: when the remote tier is up, the
	// auxiliary analysis rides along best-effort.
	var analysis *redact.Analysis
	if remote != nil && cfg.Redact.AnalysisEnabled {
		analysis = remote.Analyze(ctx, text, lang)
		if analysis != nil {
			verbosef(args, "analysis: sentiment %s, %d key phrase(s), %d entity(ies)",
				analysis.Sentiment, len(analysis.KeyPhrases), len(analysis.Entities))
		}
	}

	if args.JSON {
		resp := NewJSONResponse("mask", MaskData{Detection: result, Analysis: analysis})
		return resp.Print()
	}

	fmt.Println(result.MaskedText)
	if !args.Quiet && result.TotalMasked > 0 {
		StderrPrintf("Masked %d span(s): %s\n", result.TotalMasked, formatDetections(result))
	}
	return nil
}

// formatDetections renders the per-category counts as "email=2 ipv4=1".
func formatDetections(r redact.Result) string {
	out := ""
	for _, category := range redact.Categories() {
		if n := r.Detections[category]; n > 0 {
			if out != "" {
				out += " "
			}
			out += fmt.Sprintf("%s=%d", category, n)
		}
	}
	// Remote categories are not in the local pattern list.
	for category, n := range r.Detections {
		if !isLocalCategory(category) {
			if out != "" {
				out += " "
			}
			out += fmt.Sprintf("%s=%d", category, n)
		}
	}
	return out
}

func isLocalCategory(category string) bool {
	for _, c := range redact.Categories() {
		if c == category {
			return true
		}
	}
	return false
}
