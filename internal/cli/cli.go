// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for rigtrail.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTraceID Command = iota
	CmdMask
	CmdRecord
	CmdSend
	CmdUpload
	CmdVerify
	CmdKeys
	CmdStatus
	CmdVersion
	CmdHelp
	CmdUnknown
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	JSON       bool   // Output in JSON format
	Quiet      bool   // Minimal output
	Verbose    bool   // Diagnostic output on stderr
	ConfigPath string // Alternate config file (--config PATH)

	// Command-specific
	Subcommand string

	// Raw args (remaining after global flag parsing)
	Raw []string
}

const usageText = `rigtrail - tamper-evident audit trail for AI assistant traffic

Rigtrail captures request/response exchanges as hash-chained, RSA-signed
audit records. Bodies are never stored: records carry content digests and
PII detection metadata only. Records accumulate locally and upload to
CloudWatch Logs in batches.

Usage:
  rigtrail trace-id              Generate one trace identifier
  rigtrail mask <text>           Mask PII in text (or --file F)
  rigtrail record [flags]        Build, sign, and persist an audit record
  rigtrail send --record F       Deliver a single record file to the sink
  rigtrail upload [flags]        Deliver all pending records, then purge
  rigtrail verify [flags]        Verify record signatures and chain links
  rigtrail keys <subcommand>     Manage signing key material
  rigtrail status, s             Show store, chain, key, and sink status
  rigtrail version               Show version information
  rigtrail help                  Show this help

Mask Flags:
  --file F                Read text from file instead of arguments
  --language LANG         Text language (default from config, ja)
  --remote                Use the remote classifier tier as well

Record Flags:
  --method M              Request method label (required), e.g. POST/chat
  --request-body F|-      Request body file, or - for stdin (required)
  --response-body F|-     Response body file, or - for stdin (required)
  --model NAME            Model identifier stored in the record
  --status S              Response status label (default: 200)
  --tokens N              Token count stored in the record
  --language LANG         Body language for PII detection
  --remote                Use the remote classifier tier as well

Send Flags:
  --record F|-            Serialized record file, or - for stdin (required)
  --group G               Override the configured log group
  --stream S              Override the configured log stream

Upload Flags:
  --dry-run               Report what would happen without doing it
  --watch                 Keep running, delivering records as they arrive
  --retention-days N      Override the processed retention window

Verify Flags:
  --record F              Verify a single record file in isolation
  --all                   Verify every stored record and the chain (default)

Keys Subcommands:
  generate [--force]      Create the RSA signing pair and content key
  show                    Show key fingerprint and paths (never key bytes)

Global Flags:
  --json                  Output in JSON format
  -q, --quiet             Minimal output
  -v, --verbose           Diagnostic output on stderr
  --config PATH           Use an alternate config file

Examples:
  # One-time setup
  rigtrail keys generate
  rigtrail status

  # Mask text directly
  rigtrail mask "連絡先: taro@example.com 090-1234-5678"
  rigtrail mask --file prompt.txt --language ja --remote

  # Record an exchange (bodies are hashed, never stored)
  rigtrail record --method POST/chat --request-body req.json \
      --response-body resp.json --model claude-sonnet --tokens 1847

  # Deliver the backlog
  rigtrail upload
  rigtrail upload --dry-run
  rigtrail upload --watch

  # Integrity checks
  rigtrail verify
  rigtrail verify --record ~/.rigtrail/records/pending/<uuid>.json

Configuration: ~/.rigtrail/config.toml (RIGTRAIL_* environment overrides)

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("rigtrail version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	return parse(os.Args[1:])
}

// parse is the testable core of Parse.
func parse(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdHelp, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "trace-id", "traceid":
		return CmdTraceID, parsedArgs

	case "mask", "redact":
		return CmdMask, parsedArgs

	case "record":
		return CmdRecord, parsedArgs

	case "send":
		return CmdSend, parsedArgs

	case "upload", "deliver":
		return CmdUpload, parsedArgs

	case "verify", "integrity":
		return CmdVerify, parsedArgs

	case "keys", "key":
		if len(remaining) > 0 {
			parsedArgs.Subcommand = remaining[0]
		}
		return CmdKeys, parsedArgs

	case "status", "s":
		return CmdStatus, parsedArgs

	case "version", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		// Preserve the unknown token so main can name it in the error.
		parsedArgs.Raw = append([]string{cmd}, remaining...)
		return CmdUnknown, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	i := 0
	for i < len(args) {
		arg := args[i]

		switch arg {
		case "--json":
			parsedArgs.JSON = true
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--config":
			if i+1 < len(args) {
				i++
				parsedArgs.ConfigPath = args[i]
			}
		default:
			if strings.HasPrefix(arg, "--config=") {
				parsedArgs.ConfigPath = strings.TrimPrefix(arg, "--config=")
			} else {
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	return remaining, parsedArgs
}

// HandleVersion handles the "version" command.
func HandleVersion(args Args) {
	if args.JSON {
		data := VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}
		resp := NewJSONResponse("version", data)
		resp.Print()
		return
	}
	PrintVersion()
}

// HandleHelp handles the "help" command.
func HandleHelp() {
	PrintUsage()
}
