// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package redact masks personally identifiable information before anything
// is persisted or transmitted.
package redact

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeClassifier is the test double for the remote tier.
type fakeClassifier struct {
	spans []Span
	err   error
	langs map[string]bool
	calls int
}

func (f *fakeClassifier) SupportsPII(lang string) bool {
	if f.langs == nil {
		return lang == "en"
	}
	return f.langs[lang]
}

func (f *fakeClassifier) DetectPII(ctx context.Context, text, lang string) ([]Span, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.spans, nil
}

func newLocalMasker(t *testing.T) *Masker {
	t.Helper()
	return NewMasker(Options{WarnWriter: &bytes.Buffer{}})
}

// =============================================================================
// LOCAL PATTERN TESTS
// =============================================================================

func TestMask_LocalEmail(t *testing.T) {
	m := newLocalMasker(t)
	res := m.Mask(context.Background(), "Contact: test@example.com", "ja", false)

	if strings.Contains(res.MaskedText, "test@example.com") {
		t.Errorf("masked text still contains the email: %q", res.MaskedText)
	}
	if !strings.Contains(res.MaskedText, "[MASKED_EMAIL]") {
		t.Errorf("masked text missing placeholder: %q", res.MaskedText)
	}
	if res.TotalMasked != 1 {
		t.Errorf("TotalMasked = %d, want 1", res.TotalMasked)
	}
	if res.DetectorUsed != DetectorLocal {
		t.Errorf("DetectorUsed = %q, want %q", res.DetectorUsed, DetectorLocal)
	}
	if res.Detections["email"] != 1 {
		t.Errorf("Detections = %v, want email:1", res.Detections)
	}
	if len(res.Findings) != 1 || res.Findings[0].SpanHash != HashSpan("test@example.com") {
		t.Errorf("finding should carry the digest of the original span")
	}
}

func TestMask_EndToEnd(t *testing.T) {
	m := newLocalMasker(t)
	res := m.Mask(context.Background(), "Contact: test@example.com, Phone: 090-1234-5678", "ja", false)

	if strings.Contains(res.MaskedText, "test@example.com") {
		t.Errorf("email survived masking: %q", res.MaskedText)
	}
	if strings.Contains(res.MaskedText, "090-1234-5678") {
		t.Errorf("phone survived masking: %q", res.MaskedText)
	}
	if !strings.Contains(res.MaskedText, "[MASKED_EMAIL]") || !strings.Contains(res.MaskedText, "[MASKED_PHONE_JP]") {
		t.Errorf("expected two distinct placeholders, got %q", res.MaskedText)
	}
	if res.TotalMasked != 2 {
		t.Errorf("TotalMasked = %d, want 2", res.TotalMasked)
	}
}

func TestMask_NoPII(t *testing.T) {
	m := newLocalMasker(t)
	input := "The weather is nice today."
	res := m.Mask(context.Background(), input, "ja", false)

	if res.MaskedText != input {
		t.Errorf("text without PII was altered: %q", res.MaskedText)
	}
	if res.TotalMasked != 0 || len(res.Findings) != 0 {
		t.Errorf("unexpected findings: %+v", res.Findings)
	}
	if res.Score != 0 {
		t.Errorf("Score = %v, want 0", res.Score)
	}
}

func TestMask_AllLocalCategories(t *testing.T) {
	testCases := []struct {
		category string
		input    string
		pii      string
	}{
		{"email", "mail user@example.com end", "user@example.com"},
		{"phone_jp", "tel 03-1234-5678 end", "03-1234-5678"},
		{"phone_intl", "tel +81-90-1234-5678 end", "+81-90-1234-5678"},
		{"my_number", "id 1234-5678-9012 end", "1234-5678-9012"},
		{"zip_code_jp", "zip 150-0001 end", "150-0001"},
		{"credit_card", "card 1234 5678 9012 3456 end", "1234 5678 9012 3456"},
		{"ipv4", "host 192.168.1.10 end", "192.168.1.10"},
	}

	for _, tc := range testCases {
		t.Run(tc.category, func(t *testing.T) {
			m := newLocalMasker(t)
			res := m.Mask(context.Background(), tc.input, "ja", false)

			if strings.Contains(res.MaskedText, tc.pii) {
				t.Errorf("PII survived masking: %q", res.MaskedText)
			}
			if !strings.Contains(res.MaskedText, Placeholder(tc.category)) {
				t.Errorf("missing %s placeholder in %q", tc.category, res.MaskedText)
			}
			if res.Detections[tc.category] != 1 {
				t.Errorf("Detections = %v, want %s:1", res.Detections, tc.category)
			}
		})
	}
}

func TestMask_FullWidthDigits(t *testing.T) {
	m := newLocalMasker(t)
	// Full-width digits and hyphen fold to "090-1234-5678" under NFKC.
	res := m.Mask(context.Background(), "電話: ０９０－１２３４－５６７８", "ja", false)

	if !strings.Contains(res.MaskedText, "[MASKED_PHONE_JP]") {
		t.Errorf("full-width phone number not masked: %q", res.MaskedText)
	}
	if res.TotalMasked != 1 {
		t.Errorf("TotalMasked = %d, want 1", res.TotalMasked)
	}
}

func TestMask_MaskedOutputIsStable(t *testing.T) {
	m := newLocalMasker(t)
	first := m.Mask(context.Background(), "reach me: test@example.com / 090-1234-5678", "ja", false)
	second := m.Mask(context.Background(), first.MaskedText, "ja", false)

	if second.TotalMasked != 0 {
		t.Errorf("re-masking found %d spans in already-masked text: %q", second.TotalMasked, second.MaskedText)
	}
	if second.MaskedText != first.MaskedText {
		t.Errorf("re-masking altered the text: %q -> %q", first.MaskedText, second.MaskedText)
	}
}

// =============================================================================
// REMOTE TIER TESTS
// =============================================================================

func TestMask_RemoteAugmented(t *testing.T) {
	fake := &fakeClassifier{spans: []Span{
		{Category: "NAME", Begin: 11, End: 21, Score: 0.99},
	}}
	m := NewMasker(Options{Classifier: fake, WarnWriter: &bytes.Buffer{}})

	res := m.Mask(context.Background(), "My name is John Smith, email test@example.com", "en", true)

	if res.DetectorUsed != DetectorRemote {
		t.Errorf("DetectorUsed = %q, want %q", res.DetectorUsed, DetectorRemote)
	}
	if strings.Contains(res.MaskedText, "John Smith") {
		t.Errorf("remote span survived masking: %q", res.MaskedText)
	}
	if !strings.Contains(res.MaskedText, "[MASKED_NAME]") {
		t.Errorf("missing remote placeholder: %q", res.MaskedText)
	}
	// Local tier still runs after the remote pass.
	if !strings.Contains(res.MaskedText, "[MASKED_EMAIL]") {
		t.Errorf("local tier skipped after remote pass: %q", res.MaskedText)
	}
	if res.TotalMasked != 2 {
		t.Errorf("TotalMasked = %d, want 2", res.TotalMasked)
	}
	if res.Detections["NAME"] != 1 || res.Detections["email"] != 1 {
		t.Errorf("Detections = %v", res.Detections)
	}
}

func TestMask_RemoteOverlapPreferred(t *testing.T) {
	// The remote span covers the same email the local pattern would catch.
	fake := &fakeClassifier{spans: []Span{
		{Category: "EMAIL", Begin: 6, End: 22, Score: 0.95},
	}}
	m := NewMasker(Options{Classifier: fake, WarnWriter: &bytes.Buffer{}})

	res := m.Mask(context.Background(), "mail: test@example.com ok", "en", true)

	if got := strings.Count(res.MaskedText, "[MASKED_EMAIL]"); got != 1 {
		t.Errorf("placeholder count = %d, want 1 (no double masking): %q", got, res.MaskedText)
	}
	if res.TotalMasked != 1 {
		t.Errorf("TotalMasked = %d, want 1", res.TotalMasked)
	}
	if len(res.Findings) != 1 || res.Findings[0].Method != DetectorRemote {
		t.Errorf("overlap should resolve to the remote finding: %+v", res.Findings)
	}
}

func TestMask_RemoteBelowThreshold(t *testing.T) {
	fake := &fakeClassifier{spans: []Span{
		{Category: "NAME", Begin: 0, End: 4, Score: 0.5},
	}}
	m := NewMasker(Options{Classifier: fake, Threshold: 0.7, WarnWriter: &bytes.Buffer{}})

	res := m.Mask(context.Background(), "John went home", "en", true)

	if res.TotalMasked != 0 {
		t.Errorf("low-confidence span was masked: %+v", res.Findings)
	}
	if res.DetectorUsed != DetectorRemote {
		t.Errorf("DetectorUsed = %q, want %q (remote ran)", res.DetectorUsed, DetectorRemote)
	}
}

func TestMask_RemoteErrorDegradesToLocal(t *testing.T) {
	var warnings bytes.Buffer
	fake := &fakeClassifier{err: errors.New("throttled")}
	m := NewMasker(Options{Classifier: fake, WarnWriter: &warnings})

	res := m.Mask(context.Background(), "mail test@example.com", "en", true)

	if res.DetectorUsed != DetectorLocal {
		t.Errorf("DetectorUsed = %q, want %q", res.DetectorUsed, DetectorLocal)
	}
	if !strings.Contains(res.RemoteError, "throttled") {
		t.Errorf("RemoteError = %q, want the classifier error recorded", res.RemoteError)
	}
	if !strings.Contains(res.MaskedText, "[MASKED_EMAIL]") {
		t.Errorf("local tier did not mask after remote failure: %q", res.MaskedText)
	}
	if !strings.Contains(warnings.String(), "Warning:") {
		t.Errorf("expected a degradation warning, got %q", warnings.String())
	}
}

func TestMask_RemoteUnsupportedLanguage(t *testing.T) {
	fake := &fakeClassifier{spans: []Span{{Category: "EMAIL", Begin: 0, End: 5, Score: 0.9}}}
	m := NewMasker(Options{Classifier: fake, WarnWriter: &bytes.Buffer{}})

	res := m.Mask(context.Background(), "mail test@example.com", "ja", true)

	if fake.calls != 0 {
		t.Errorf("classifier called %d times for unsupported language, want 0", fake.calls)
	}
	if res.DetectorUsed != DetectorLocal {
		t.Errorf("DetectorUsed = %q, want %q", res.DetectorUsed, DetectorLocal)
	}
	if !strings.Contains(res.Limitations, "unsupported") {
		t.Errorf("Limitations = %q, want unsupported-language note", res.Limitations)
	}
	if !strings.Contains(res.MaskedText, "[MASKED_EMAIL]") {
		t.Errorf("local tier did not run: %q", res.MaskedText)
	}
}

func TestMask_RemoteRequestedWithoutClassifier(t *testing.T) {
	var warnings bytes.Buffer
	m := NewMasker(Options{WarnWriter: &warnings})

	res := m.Mask(context.Background(), "mail test@example.com", "en", true)

	if res.RemoteError == "" {
		t.Error("expected RemoteError for missing classifier")
	}
	if !strings.Contains(res.MaskedText, "[MASKED_EMAIL]") {
		t.Errorf("local tier did not run: %q", res.MaskedText)
	}
	if warnings.Len() == 0 {
		t.Error("expected a warning for missing classifier")
	}
}

// =============================================================================
// HELPER TESTS
// =============================================================================

func TestRiskScore(t *testing.T) {
	testCases := []struct {
		name   string
		masked int
		total  int
		want   float64
	}{
		{"all masked", 16, 16, 1.0},
		{"partial", 29, 48, 0.6},
		{"nothing masked", 0, 10, 0},
		{"empty text", 5, 0, 0},
		{"capped", 50, 40, 1.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := riskScore(tc.masked, tc.total); got != tc.want {
				t.Errorf("riskScore(%d, %d) = %v, want %v", tc.masked, tc.total, got, tc.want)
			}
		})
	}
}

func TestTruncateUTF8(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"shorter", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"ascii cut", "hello world", 5, "hello"},
		{"multibyte boundary", "あいう", 4, "あ"},
		{"multibyte all cut", "あ", 2, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := truncateUTF8(tc.in, tc.max); got != tc.want {
				t.Errorf("truncateUTF8(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
		})
	}
}

func TestNormalizeLanguage(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"en-US", "en"},
		{"EN", "en"},
		{"ja", "ja"},
		{"es", "es"},
		{"", ""},
	}

	for _, tc := range testCases {
		if got := normalizeLanguage(tc.in); got != tc.want {
			t.Errorf("normalizeLanguage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPlaceholder(t *testing.T) {
	if got := Placeholder("email"); got != "[MASKED_EMAIL]" {
		t.Errorf("Placeholder(email) = %q", got)
	}
	if got := Placeholder("SSN"); got != "[MASKED_SSN]" {
		t.Errorf("Placeholder(SSN) = %q", got)
	}
}

func TestHashSpan(t *testing.T) {
	h1 := HashSpan("test@example.com")
	h2 := HashSpan("test@example.com")
	h3 := HashSpan("other@example.com")

	if len(h1) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(h1))
	}
	if h1 != h2 {
		t.Error("digest not deterministic")
	}
	if h1 == h3 {
		t.Error("distinct spans share a digest")
	}
}

func TestWithoutText(t *testing.T) {
	m := newLocalMasker(t)
	res := m.Mask(context.Background(), "mail test@example.com", "ja", false)

	trimmed := res.WithoutText()
	if trimmed.MaskedText != "" {
		t.Error("WithoutText should clear the text")
	}
	if trimmed.TotalMasked != res.TotalMasked || len(trimmed.Findings) != len(res.Findings) {
		t.Error("WithoutText should keep detection metadata")
	}
	if res.MaskedText == "" {
		t.Error("WithoutText must not mutate the receiver")
	}
}
