// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// verify_cmd.go - Integrity verification for rigtrail.
//
// Command: verify
// Short:   Verify record signatures and hash-chain linkage
//
// Examples:
//   rigtrail verify
//   rigtrail verify --record ~/.rigtrail/records/processed/<trace-id>.json
//   rigtrail verify --json
//
// Flags:
//   --record FILE   Verify a single record file instead of the whole store
//   --all           Verify the whole store (the default; kept for scripts)

package cli

import (
	"fmt"

	"github.com/jeranaias/rigtrail/internal/keys"
	"github.com/jeranaias/rigtrail/internal/record"
)

// HandleVerify recomputes hashes and checks signatures over the store, or
// over one record file with --record. Verification only needs the public
// key, so it works on hosts that never held signing material.
func HandleVerify(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	pub, err := keys.LoadPublicKey(cfg.KeysDir())
	if err != nil {
		return NewCommandError("verify", "load public key",
			"no public key available; run 'rigtrail keys generate' or copy rigtrail_public.pem in", err)
	}
	verifier := record.NewVerifier(pub)

	parser := NewArgParser(args.Raw)
	if path := parser.Flag("record"); path != "" {
		return verifyOne(args, verifier, path)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	checked, err := verifier.VerifyStore(st)
	if err != nil {
		// Failure goes through the standard error path so JSON callers get
		// one envelope, not a success payload followed by an error.
		return NewCommandError("verify", "verify store",
			fmt.Sprintf("integrity check failed after checking %d record(s)", checked), err)
	}

	if args.JSON {
		resp := NewJSONResponse("verify", VerifyData{Checked: checked, Valid: true})
		return resp.Print()
	}
	infof(args, "Verified %d record(s): chain intact, all signatures valid", checked)
	return nil
}

// verifyOne checks a single record file in isolation. Chain linkage to
// neighbors is not checked; only the hash and signature of this record.
func verifyOne(args Args, verifier *record.Verifier, path string) error {
	rec, err := verifier.VerifyFile(path)
	if rec != nil {
		verbosef(args, "Record %s hash %s", rec.TraceID, rec.RecordHash)
	}
	if err != nil {
		return NewCommandError("verify", "verify record", fmt.Sprintf("%s failed verification", path), err)
	}

	if args.JSON {
		resp := NewJSONResponse("verify", VerifyData{Checked: 1, Valid: true, Record: path})
		return resp.Print()
	}
	infof(args, "Record %s verified: hash and signature valid", rec.TraceID)
	return nil
}
