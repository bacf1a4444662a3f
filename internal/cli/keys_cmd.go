// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// keys_cmd.go - Signing key management for rigtrail.
//
// Command: keys <subcommand>
// Short:   Manage the local signing pair and content key
//
// Examples:
//   rigtrail keys generate
//   rigtrail keys generate --force
//   rigtrail keys show --json
//
// Subcommands:
//   generate [--force]   Create the RSA signing pair and content key
//   show                 Print key paths and the public key fingerprint
//
// Key bytes are never printed. Output is limited to file paths and the
// SHA-256 fingerprint of the public key.

package cli

import (
	"fmt"
	"path/filepath"

	"github.com/jeranaias/rigtrail/internal/keys"
)

// HandleKeys dispatches the keys subcommands.
func HandleKeys(args Args) error {
	switch args.Subcommand {
	case "generate", "gen":
		return keysGenerate(args)
	case "show", "":
		return keysShow(args)
	default:
		return NewValidationErrorWithExample("subcommand", args.Subcommand,
			"unknown keys subcommand (expected generate or show)", "rigtrail keys generate")
	}
}

func keysGenerate(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	parser := NewArgParser(args.Raw)
	force := parser.BoolFlag("force")

	dir := cfg.KeysDir()
	pair, err := keys.Generate(dir, force)
	if err != nil {
		return NewCommandError("keys", "generate key material", "could not create signing pair", err)
	}

	fp, err := keys.Fingerprint(pair.Public)
	if err != nil {
		return NewCommandError("keys", "fingerprint public key", "key material written but unreadable", err)
	}

	if args.JSON {
		resp := NewJSONResponse("keys generate", keysData(dir, fp, true))
		return resp.Print()
	}

	infof(args, "Generated signing pair in %s", dir)
	infof(args, "  Private key: %s", filepath.Join(dir, keys.PrivateKeyFile))
	infof(args, "  Public key:  %s", filepath.Join(dir, keys.PublicKeyFile))
	infof(args, "  Content key: %s", filepath.Join(dir, keys.ContentKeyFile))
	infof(args, "  Fingerprint: %s", fp)
	return nil
}

func keysShow(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	dir := cfg.KeysDir()
	pub, err := keys.LoadPublicKey(dir)
	if err != nil {
		return NewCommandError("keys", "load public key", fmt.Sprintf("no key material in %s", dir), err)
	}

	fp, err := keys.Fingerprint(pub)
	if err != nil {
		return NewCommandError("keys", "fingerprint public key", "public key unreadable", err)
	}

	if args.JSON {
		resp := NewJSONResponse("keys show", keysData(dir, fp, false))
		return resp.Print()
	}

	infof(args, "Key directory: %s", dir)
	infof(args, "  Private key: %s", filepath.Join(dir, keys.PrivateKeyFile))
	infof(args, "  Public key:  %s", filepath.Join(dir, keys.PublicKeyFile))
	infof(args, "  Content key: %s", filepath.Join(dir, keys.ContentKeyFile))
	infof(args, "  Fingerprint: %s", fp)
	return nil
}

func keysData(dir, fingerprint string, generated bool) KeysData {
	return KeysData{
		Fingerprint:    fingerprint,
		PrivateKeyPath: filepath.Join(dir, keys.PrivateKeyFile),
		PublicKeyPath:  filepath.Join(dir, keys.PublicKeyFile),
		ContentKeyPath: filepath.Join(dir, keys.ContentKeyFile),
		Generated:      generated,
	}
}
