// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package keys manages the signing key material for the audit trail.
//
// A key directory holds an RSA-2048 pair (PKCS#8 private key, PKIX public
// key, both PEM) used to sign and verify audit records, plus a 32-byte
// symmetric content key for encrypting binary attachments. Generation is an
// explicit one-time operation; nothing in the hot path ever creates keys
// implicitly, and loading fails with ErrNoKeyPair until the operator runs
// it.
//
// The private key file must be readable by its owner only. Load refuses
// group- or world-readable private keys on unix; Windows relies on the
// profile directory ACLs.
//
// # Key Functions
//
//   - Generate: One-time creation of the key pair and content key
//   - Load: Read and validate the pair for signing/verification
//   - LoadContentKey: Read the symmetric content key
//   - Fingerprint: Short hex digest identifying a public key
//
// # Storage Location
//
// Key files live in the configured key directory, by default
// ~/.rigtrail/keys/.
package keys
