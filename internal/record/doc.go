// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package record builds, signs, and verifies the chain-linked audit records
// at the center of the rigtrail pipeline.
//
// Every record hashes its payload (RFC 8785 canonical JSON) together with
// the previous record's hash, and carries an RSA-PSS signature over that
// hash. The persisted chain head (chain.json) is read and extended under an
// exclusive file lock, so concurrent builders always produce a single
// unforked chain. Record bodies are never stored: the record holds content
// digests and detection metadata only.
//
// # Key Types
//
//   - Record: One chain-linked audit record, as serialized to disk
//   - Builder: Assembles, signs, and persists records under the chain lock
//   - Verifier: Recomputes hashes and checks signatures and linkage
//   - ChainState: The persisted chain head
//
// # Usage
//
//	b := record.NewBuilder(keyPair, st)
//	rec, handle, err := b.Build(record.Input{
//		TraceID:     trace.New(),
//		Method:      "chat",
//		RequestBody: body,
//		Status:      "success",
//	})
//
// Verification needs only the public key:
//
//	v := record.NewVerifier(keyPair.Public)
//	n, err := v.VerifyStore(st)
package record
