// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package redact masks personally identifiable information in text before
// any other component sees it.
//
// Masking runs in two tiers. The optional remote tier sends text to AWS
// Comprehend and applies its entity spans first. The local tier is a fixed
// regular-expression pattern set (email, phone numbers, national identifiers,
// postal codes, card numbers, IP addresses) that always runs, including over
// text the remote tier already masked, so locale-specific categories the
// remote classifier misses are still caught. Every finding is replaced
// in-place by a category placeholder such as [MASKED_EMAIL].
//
// Masking never fails: when the remote classifier is unreachable, times out,
// or does not support the language, the result degrades to the local tier
// and records that honestly in DetectorUsed, Limitations, and RemoteError.
//
// # Key Types
//
//   - Masker: Two-tier masking engine; safe for concurrent use
//   - Result: Masked text plus findings, detection counts, and tier metadata
//   - Classifier: Remote PII detection seam, implemented by Comprehend
//   - Analyzer: Best-effort sentiment/key-phrase/entity analysis
//
// # Usage
//
//	m := redact.NewMasker(redact.Options{})
//	res := m.Mask(ctx, "Contact: test@example.com", "en", false)
//	fmt.Println(res.MaskedText) // Contact: [MASKED_EMAIL]
//
// With the remote classifier:
//
//	cls, err := redact.NewComprehend(ctx, "us-east-1", "", 10*time.Second)
//	m := redact.NewMasker(redact.Options{Classifier: cls})
//	res := m.Mask(ctx, text, "en", true)
package redact
