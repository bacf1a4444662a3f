// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package redact masks personally identifiable information before anything
// is persisted or transmitted.
package redact

import "context"

// Span is one remote PII finding over the text sent to the classifier.
// Offsets are rune positions, matching the character-offset convention of
// the remote API, not byte positions.
type Span struct {
	Category string
	Begin    int
	End      int
	Score    float64
}

// Classifier is the remote PII detection tier. The local pattern set runs
// unconditionally; a Classifier augments it where supported. Tests
// substitute a fake implementation.
type Classifier interface {
	// SupportsPII reports whether PII detection is available for the
	// given base language code. Unsupported languages route to
	// local-only detection, never to skipped masking.
	SupportsPII(language string) bool

	// DetectPII returns candidate PII spans found in text. Any error
	// degrades masking to the local tier; it never aborts it.
	DetectPII(ctx context.Context, text, language string) ([]Span, error)
}

// Analyzer produces auxiliary NLP metadata for an audit record. Best-effort:
// implementations return nil when nothing could be analyzed and must never
// interfere with the masking path.
type Analyzer interface {
	Analyze(ctx context.Context, text, language string) *Analysis
}

// Entity is a recognized named entity (person, place, organization, date).
type Entity struct {
	Text  string  `json:"text"`
	Type  string  `json:"type"`
	Score float64 `json:"score"`
}

// Analysis carries the auxiliary NLP signal embedded into a record under
// nlp_analysis. It is computed from the same raw text the remote PII tier
// scans, so key phrases and entity text quote the original exchange; the
// record keeps these derived fragments but never the body itself.
type Analysis struct {
	Language        string             `json:"language"`
	Sentiment       string             `json:"sentiment,omitempty"`
	SentimentScores map[string]float64 `json:"sentiment_scores,omitempty"`
	KeyPhrases      []string           `json:"key_phrases,omitempty"`
	Entities        []Entity           `json:"entities,omitempty"`
}
