// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package redact masks personally identifiable information before anything
// is persisted or transmitted.
package redact

import (
	"regexp"
	"strings"
)

// Local pattern tier. Table order matters: substitution removes a match
// before later patterns scan, so earlier categories win overlapping spans
// (a Japanese phone number must not be re-reported as a postal code).
var patterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"phone_jp", regexp.MustCompile(`\b0\d{1,4}-\d{1,4}-\d{4}\b`)},
	{"phone_intl", regexp.MustCompile(`\+81[-\s]?\d{1,4}[-\s]?\d{1,4}[-\s]?\d{4}\b`)},
	{"my_number", regexp.MustCompile(`\b\d{4}-\d{4}-\d{4}\b`)},
	{"zip_code_jp", regexp.MustCompile(`\b\d{3}-\d{4}\b`)},
	{"credit_card", regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)},
	{"ipv4", regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
}

// Placeholder returns the fixed masking token for a category, e.g.
// "[MASKED_EMAIL]" for email findings. Distinct per category so a masked
// text still shows what kind of PII was removed.
func Placeholder(category string) string {
	return "[MASKED_" + strings.ToUpper(category) + "]"
}

// Categories lists the local pattern names in scan order.
func Categories() []string {
	names := make([]string, len(patterns))
	for i, p := range patterns {
		names[i] = p.name
	}
	return names
}
