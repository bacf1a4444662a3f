// rigtrail - A tamper-evident audit trail for AI assistant traffic.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/jeranaias/rigtrail/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.4.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	var err error
	switch cmd {
	case cli.CmdTraceID:
		err = cli.HandleTraceID(args)
	case cli.CmdMask:
		err = cli.HandleMask(args)
	case cli.CmdRecord:
		err = cli.HandleRecord(args)
	case cli.CmdSend:
		err = cli.HandleSend(args)
	case cli.CmdUpload:
		err = cli.HandleUpload(args)
	case cli.CmdVerify:
		err = cli.HandleVerify(args)
	case cli.CmdKeys:
		err = cli.HandleKeys(args)
	case cli.CmdStatus:
		err = cli.HandleStatus(args)
	case cli.CmdVersion:
		cli.HandleVersion(args)
	case cli.CmdHelp:
		cli.HandleHelp()
	default:
		name := ""
		if len(args.Raw) > 0 {
			name = args.Raw[0]
		}
		fmt.Fprintf(os.Stderr, "[ERROR] unknown command: %s\n", name)
		fmt.Fprintln(os.Stderr, "Run 'rigtrail help' to see available commands.")
		os.Exit(cli.ExitSetupError)
	}

	if err != nil {
		cli.HandleErrorAndExit(err, args.JSON)
	}
}
