// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package redact masks personally identifiable information before anything
// is persisted or transmitted.
//
// Masking is layered: a deterministic local pattern set always runs, and an
// optional remote classifier augments it for supported languages. The two
// tiers are merged by substituting remote spans first, so an overlapping
// local match never re-reports text the classifier already masked. Masking
// never fails; every remote problem degrades to the local tier and is
// recorded in the result metadata so the audit record stays honest about
// which detection tier ran.
package redact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Detection tiers recorded in Result.DetectorUsed and Finding.Method.
const (
	DetectorLocal  = "local_pattern"
	DetectorRemote = "remote_classifier"
)

// Defaults applied by NewMasker when the corresponding option is unset.
const (
	DefaultThreshold     = 0.7
	DefaultMaxTextBytes  = 100000
	DefaultRemoteTimeout = 10 * time.Second
)

// localLimitations states the known precision limits of the pattern tier.
// Recorded in every result rather than silently hidden.
const localLimitations = "no checksum validation on numeric identifiers; free-form narrative PII and image content are not detected"

// Finding describes one masked span. The record carries the span's digest,
// never the span itself.
type Finding struct {
	Category string `json:"category"`
	SpanHash string `json:"span_hash"`
	Method   string `json:"method"`
}

// Result is the outcome of one Mask call. Embedded into the audit record
// (without MaskedText) as the pii_detection section.
type Result struct {
	MaskedText   string         `json:"masked_text,omitempty"`
	Findings     []Finding      `json:"findings,omitempty"`
	DetectorUsed string         `json:"detector_used"`
	Detections   map[string]int `json:"detections,omitempty"`
	TotalMasked  int            `json:"total_masked"`
	Score        float64        `json:"score"`
	Limitations  string         `json:"limitations,omitempty"`
	RemoteError  string         `json:"remote_error,omitempty"`
}

// WithoutText returns a copy safe to embed into a persisted record: all
// detection metadata, no text.
func (r Result) WithoutText() Result {
	r.MaskedText = ""
	return r
}

func (r *Result) addDetection(category string) {
	if r.Detections == nil {
		r.Detections = make(map[string]int)
	}
	r.Detections[category]++
}

// Options configures a Masker. Zero values fall back to the package
// defaults; a nil Classifier restricts masking to the local tier.
type Options struct {
	Classifier    Classifier
	Threshold     float64
	MaxTextBytes  int
	RemoteTimeout time.Duration
	WarnWriter    io.Writer
}

// Masker performs layered PII redaction.
type Masker struct {
	classifier Classifier
	threshold  float64
	maxBytes   int
	timeout    time.Duration
	warnw      io.Writer
}

// NewMasker builds a Masker from opts, filling in defaults.
func NewMasker(opts Options) *Masker {
	m := &Masker{
		classifier: opts.Classifier,
		threshold:  opts.Threshold,
		maxBytes:   opts.MaxTextBytes,
		timeout:    opts.RemoteTimeout,
		warnw:      opts.WarnWriter,
	}
	if m.threshold <= 0 {
		m.threshold = DefaultThreshold
	}
	if m.maxBytes <= 0 {
		m.maxBytes = DefaultMaxTextBytes
	}
	if m.timeout <= 0 {
		m.timeout = DefaultRemoteTimeout
	}
	if m.warnw == nil {
		m.warnw = os.Stderr
	}
	return m
}

// Mask redacts text and reports what was found. It never returns an error:
// remote classifier failures degrade to the local pattern tier, noted in
// RemoteError plus one stderr warning, because a redaction outage must not
// block the audit trail.
func (m *Masker) Mask(ctx context.Context, text, lang string, useRemote bool) Result {
	// NFKC first so full-width digits and compatibility forms match the
	// ASCII pattern set.
	normalized := Normalize(text)

	res := Result{
		MaskedText:   normalized,
		DetectorUsed: DetectorLocal,
		Limitations:  localLimitations,
	}
	totalRunes := utf8.RuneCountInString(normalized)
	maskedRunes := 0

	// Remote tier first: its spans are erased before the local scan runs,
	// so overlapping findings resolve in the classifier's favor.
	if useRemote && strings.TrimSpace(normalized) != "" {
		maskedRunes += m.applyRemote(ctx, &res, lang)
	}

	// Local tier always runs. Locale-specific categories the remote
	// classifier does not cover must still be caught.
	for _, p := range patterns {
		locs := p.re.FindAllStringIndex(res.MaskedText, -1)
		if len(locs) == 0 {
			continue
		}
		for _, loc := range locs {
			span := res.MaskedText[loc[0]:loc[1]]
			res.Findings = append(res.Findings, Finding{
				Category: p.name,
				SpanHash: HashSpan(span),
				Method:   DetectorLocal,
			})
			res.addDetection(p.name)
			maskedRunes += utf8.RuneCountInString(span)
		}
		// Substitute back to front so earlier offsets stay valid.
		token := Placeholder(p.name)
		for i := len(locs) - 1; i >= 0; i-- {
			res.MaskedText = res.MaskedText[:locs[i][0]] + token + res.MaskedText[locs[i][1]:]
		}
	}

	res.TotalMasked = len(res.Findings)
	res.Score = riskScore(maskedRunes, totalRunes)
	return res
}

// applyRemote runs the remote classifier and substitutes its spans into
// res.MaskedText, returning the number of runes masked. On any failure it
// records the degradation and leaves the result on the local tier.
func (m *Masker) applyRemote(ctx context.Context, res *Result, lang string) int {
	base := normalizeLanguage(lang)

	if m.classifier == nil {
		res.RemoteError = "remote classifier not configured"
		fmt.Fprintf(m.warnw, "Warning: %s; masking with local patterns only\n", res.RemoteError)
		return 0
	}
	if !m.classifier.SupportsPII(base) {
		// Not a failure: the remote tier has no PII model for this
		// language. The local tier covers it.
		res.Limitations = fmt.Sprintf("remote PII detection unsupported for language %q; %s", base, localLimitations)
		return 0
	}

	text := res.MaskedText
	truncated := false
	if len(text) > m.maxBytes {
		text = truncateUTF8(text, m.maxBytes)
		truncated = true
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	spans, err := m.classifier.DetectPII(callCtx, text, base)
	if err != nil {
		res.RemoteError = err.Error()
		fmt.Fprintf(m.warnw, "Warning: remote PII detection degraded (%v); masking with local patterns only\n", err)
		return 0
	}

	res.DetectorUsed = DetectorRemote
	if truncated {
		res.Limitations = fmt.Sprintf("remote detection limited to first %d bytes; %s", m.maxBytes, localLimitations)
	}

	// Filter to confident, in-bounds, non-overlapping spans.
	runes := []rune(res.MaskedText)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Begin < spans[j].Begin })
	kept := make([]Span, 0, len(spans))
	lastEnd := 0
	for _, s := range spans {
		if s.Score < m.threshold {
			continue
		}
		if s.Begin < lastEnd || s.Begin < 0 || s.End > len(runes) || s.Begin >= s.End {
			continue
		}
		kept = append(kept, s)
		lastEnd = s.End
	}

	maskedRunes := 0
	for _, s := range kept {
		span := string(runes[s.Begin:s.End])
		res.Findings = append(res.Findings, Finding{
			Category: s.Category,
			SpanHash: HashSpan(span),
			Method:   DetectorRemote,
		})
		res.addDetection(s.Category)
		maskedRunes += s.End - s.Begin
	}

	// Substitute back to front so earlier offsets stay valid.
	for i := len(kept) - 1; i >= 0; i-- {
		s := kept[i]
		res.MaskedText = string(runes[:s.Begin]) + Placeholder(s.Category) + string(runes[s.End:])
		runes = []rune(res.MaskedText)
	}
	return maskedRunes
}

// Normalize applies NFKC so compatibility forms (full-width digits,
// half-width kana) are folded before pattern scanning.
func Normalize(s string) string {
	t := transform.Chain(norm.NFKC)
	normalized, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return normalized
}

// HashSpan returns the SHA-256 hex digest of a masked span. An auditor
// holding the source value can confirm a match without the record ever
// exposing the span itself.
func HashSpan(span string) string {
	sum := sha256.Sum256([]byte(span))
	return hex.EncodeToString(sum[:])
}

// riskScore is masked runes over total runes, capped at 1.0, rounded to two
// decimals.
func riskScore(masked, total int) float64 {
	if total == 0 || masked == 0 {
		return 0
	}
	score := float64(masked) / float64(total)
	if score > 1.0 {
		score = 1.0
	}
	return math.Round(score*100) / 100
}

// normalizeLanguage reduces a BCP-47 tag or bare code to its base language
// ("en-US" -> "en"). Unparseable input falls back to a lowercased copy so a
// bad tag degrades remote support, never masking itself.
func normalizeLanguage(lang string) string {
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(lang))
	}
	base, _ := tag.Base()
	return base.String()
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
