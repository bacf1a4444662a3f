// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status_cmd.go - Pipeline state overview for rigtrail.
//
// Command: status, s
// Short:   Show store counts, chain head, key state, and sink coordinates
//
// Examples:
//   rigtrail status
//   rigtrail status --json

package cli

import (
	"github.com/jeranaias/rigtrail/internal/keys"
	"github.com/jeranaias/rigtrail/internal/record"
)

// HandleStatus reports the local pipeline state. Everything here is
// read-only; status never creates keys, records, or directories beyond the
// store layout itself.
func HandleStatus(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	pending, err := st.ListPending()
	if err != nil {
		return NewCommandError("status", "list pending records", "store unreadable", err)
	}
	processed, err := st.ListProcessed()
	if err != nil {
		return NewCommandError("status", "list processed records", "store unreadable", err)
	}

	chain, err := record.LoadChainState(st.Root())
	if err != nil {
		return NewCommandError("status", "read chain state", "chain head unreadable", err)
	}

	keysInfo := StatusKeysInfo{Dir: cfg.KeysDir()}
	if pub, err := keys.LoadPublicKey(cfg.KeysDir()); err == nil {
		if fp, err := keys.Fingerprint(pub); err == nil {
			keysInfo.Present = true
			keysInfo.Fingerprint = fp
		}
	}

	data := StatusData{
		Store: StatusStoreInfo{
			Root:      st.Root(),
			Pending:   len(pending),
			Processed: len(processed),
		},
		Chain: StatusChainInfo{
			LastHash:    chain.LastHash,
			LastTraceID: chain.LastTraceID,
			UpdatedAt:   chain.UpdatedAt,
		},
		Keys: keysInfo,
		Sink: StatusSinkInfo{
			LogGroup:  cfg.Sink.LogGroup,
			LogStream: cfg.LogStream(),
			Region:    cfg.Sink.Region,
		},
	}

	if args.JSON {
		resp := NewJSONResponse("status", data)
		return resp.Print()
	}

	infof(args, "Store: %s", data.Store.Root)
	infof(args, "  Pending:   %d record(s)", data.Store.Pending)
	infof(args, "  Processed: %d record(s)", data.Store.Processed)

	if chain.LastHash == "" {
		infof(args, "Chain: empty (no records yet)")
	} else {
		infof(args, "Chain head: %s", chain.LastHash)
		infof(args, "  Trace:   %s", chain.LastTraceID)
		infof(args, "  Updated: %s", chain.UpdatedAt)
	}

	if keysInfo.Present {
		infof(args, "Keys: %s (fingerprint %s)", keysInfo.Dir, keysInfo.Fingerprint)
	} else {
		infof(args, "Keys: not generated (run 'rigtrail keys generate')")
	}

	infof(args, "Sink: %s -> %s/%s", data.Sink.Region, data.Sink.LogGroup, data.Sink.LogStream)
	return nil
}
