// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package record builds, signs, and verifies the chain-linked audit records
// at the center of the rigtrail pipeline.
package record

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jeranaias/rigtrail/internal/keys"
	"github.com/jeranaias/rigtrail/internal/redact"
	"github.com/jeranaias/rigtrail/internal/store"
	"github.com/jeranaias/rigtrail/internal/trace"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

// testKeyPair generates one RSA key shared across the package tests; key
// generation is too slow to repeat per test.
func testKeyPair(t *testing.T) *keys.KeyPair {
	t.Helper()
	testKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(fmt.Sprintf("generate test key: %v", err))
		}
		testKey = k
	})
	return &keys.KeyPair{Private: testKey, Public: &testKey.PublicKey}
}

func newTestBuilder(t *testing.T) (*Builder, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	return NewBuilder(testKeyPair(t), st), st
}

func buildTestRecord(t *testing.T, b *Builder, method string) (*Record, store.Handle) {
	t.Helper()
	rec, h, err := b.Build(Input{
		TraceID:      trace.New(),
		Method:       method,
		RequestBody:  []byte("request body for " + method),
		ResponseBody: []byte("response body for " + method),
		Status:       "success",
	})
	if err != nil {
		t.Fatalf("Build(%s) failed: %v", method, err)
	}
	return rec, h
}

// ===== HASHING =====

func TestBodyHash(t *testing.T) {
	got := BodyHash([]byte("hello"))
	want := "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("BodyHash = %s, want %s", got, want)
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	r := &Record{
		TraceID:   "id:2025-01-01T00:00:00Z",
		Timestamp: "2025-01-01T00:00:00Z",
		Request:   Request{Method: "chat", BodyHash: BodyHash([]byte("a"))},
		Response:  Response{Status: "success", ContentHash: BodyHash([]byte("b"))},
	}

	first, err := ComputeHash(r)
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}
	second, err := ComputeHash(r)
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}
	if first != second {
		t.Errorf("hash not deterministic: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(first))
	}

	r.Request.Method = "completion"
	changed, err := ComputeHash(r)
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}
	if changed == first {
		t.Error("hash unchanged after payload modification")
	}
}

func TestComputeHash_CoversPrevHash(t *testing.T) {
	r := &Record{
		TraceID:   "id:2025-01-01T00:00:00Z",
		Timestamp: "2025-01-01T00:00:00Z",
		Request:   Request{Method: "chat", BodyHash: BodyHash(nil)},
		Response:  Response{Status: "success", ContentHash: BodyHash(nil)},
	}

	genesis, err := ComputeHash(r)
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}

	prev := strings.Repeat("ab", 32)
	r.PrevHash = &prev
	linked, err := ComputeHash(r)
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}
	if genesis == linked {
		t.Error("hash does not cover prev_hash")
	}
}

// ===== BUILDING =====

func TestBuild_Genesis(t *testing.T) {
	b, st := newTestBuilder(t)

	rec, h, err := b.Build(Input{
		TraceID:      trace.New(),
		Method:       "chat",
		RequestBody:  []byte("hello"),
		ResponseBody: []byte("world"),
		Status:       "success",
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if rec.PrevHash != nil {
		t.Errorf("genesis prev_hash = %v, want nil", *rec.PrevHash)
	}
	if rec.SignatureAlgorithm != SignatureAlgorithm {
		t.Errorf("signature_algorithm = %q, want %q", rec.SignatureAlgorithm, SignatureAlgorithm)
	}
	if rec.Request.BodyHash != BodyHash([]byte("hello")) {
		t.Errorf("request body_hash = %s, want digest of raw body", rec.Request.BodyHash)
	}

	data, err := st.Read(h)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Contains(data, []byte(`"prev_hash": null`)) {
		t.Error("genesis record file does not serialize prev_hash as JSON null")
	}

	v := NewVerifier(testKeyPair(t).Public)
	if err := v.VerifyRecord(rec); err != nil {
		t.Errorf("freshly built record does not verify: %v", err)
	}

	state, err := LoadChainState(st.Root())
	if err != nil {
		t.Fatalf("LoadChainState failed: %v", err)
	}
	if state.LastHash != rec.RecordHash {
		t.Errorf("chain head = %s, want %s", state.LastHash, rec.RecordHash)
	}
	if state.LastTraceID != rec.TraceID {
		t.Errorf("chain last_trace_id = %s, want %s", state.LastTraceID, rec.TraceID)
	}
}

func TestBuild_Linkage(t *testing.T) {
	b, st := newTestBuilder(t)

	first, _ := buildTestRecord(t, b, "chat")
	second, _ := buildTestRecord(t, b, "completion")
	third, _ := buildTestRecord(t, b, "embedding")

	if second.PrevHash == nil || *second.PrevHash != first.RecordHash {
		t.Error("second record does not link to first")
	}
	if third.PrevHash == nil || *third.PrevHash != second.RecordHash {
		t.Error("third record does not link to second")
	}

	state, err := LoadChainState(st.Root())
	if err != nil {
		t.Fatalf("LoadChainState failed: %v", err)
	}
	if state.LastHash != third.RecordHash {
		t.Errorf("chain head = %s, want newest record hash", state.LastHash)
	}
}

func TestBuild_RequiresTraceID(t *testing.T) {
	b, _ := newTestBuilder(t)

	_, _, err := b.Build(Input{Method: "chat"})
	if err == nil {
		t.Fatal("expected error for zero trace id, got nil")
	}
}

func TestBuild_RequiresMethod(t *testing.T) {
	b, _ := newTestBuilder(t)

	_, _, err := b.Build(Input{TraceID: trace.New()})
	if err == nil {
		t.Fatal("expected error for empty method, got nil")
	}
}

func TestBuild_NoBodyTextInRecord(t *testing.T) {
	b, st := newTestBuilder(t)

	res := redact.Result{
		MaskedText:   "Contact: [MASKED_EMAIL] secret-masked-variant",
		DetectorUsed: redact.DetectorLocal,
		TotalMasked:  1,
	}
	_, h, err := b.Build(Input{
		TraceID:      trace.New(),
		Method:       "chat",
		RequestBody:  []byte("raw-request-secret"),
		ResponseBody: []byte("raw-response-secret"),
		Status:       "success",
		PIIDetection: res,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	data, err := st.Read(h)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for _, leaked := range []string{"raw-request-secret", "raw-response-secret", "secret-masked-variant"} {
		if bytes.Contains(data, []byte(leaked)) {
			t.Errorf("record file contains body text %q", leaked)
		}
	}
}

// ===== VERIFICATION =====

func TestVerifyRecord_TamperedFields(t *testing.T) {
	b, _ := newTestBuilder(t)
	v := NewVerifier(testKeyPair(t).Public)

	tests := []struct {
		name   string
		tamper func(*Record)
	}{
		{"method", func(r *Record) { r.Request.Method = "altered" }},
		{"timestamp", func(r *Record) { r.Timestamp = "2030-01-01T00:00:00Z" }},
		{"status", func(r *Record) { r.Response.Status = "altered" }},
		{"body_hash", func(r *Record) { r.Request.BodyHash = BodyHash([]byte("other")) }},
		{"record_hash", func(r *Record) { r.RecordHash = strings.Repeat("0", 64) }},
		{"signature", func(r *Record) { r.Signature = strings.Repeat("0", len(r.Signature)) }},
		{"signature_algorithm", func(r *Record) { r.SignatureAlgorithm = "RSA-PKCS1-SHA256" }},
		{"prev_hash", func(r *Record) { p := strings.Repeat("f", 64); r.PrevHash = &p }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := buildTestRecord(t, b, "tamper-"+tt.name)
			if err := v.VerifyRecord(rec); err != nil {
				t.Fatalf("record invalid before tampering: %v", err)
			}
			tt.tamper(rec)
			err := v.VerifyRecord(rec)
			if err == nil {
				t.Fatal("tampered record still verifies")
			}
			if !errors.Is(err, ErrChainBroken) {
				t.Errorf("error %q does not report a broken chain", err)
			}
		})
	}
}

func TestVerifyRecord_WrongKey(t *testing.T) {
	b, _ := newTestBuilder(t)
	rec, _ := buildTestRecord(t, b, "chat")

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if err := NewVerifier(&other.PublicKey).VerifyRecord(rec); err == nil {
		t.Fatal("record verifies under an unrelated public key")
	}
}

func TestVerifyChain_Valid(t *testing.T) {
	b, _ := newTestBuilder(t)
	v := NewVerifier(testKeyPair(t).Public)

	var records []*Record
	for _, m := range []string{"chat", "completion", "embedding"} {
		rec, _ := buildTestRecord(t, b, m)
		records = append(records, rec)
	}
	if err := v.VerifyChain(records); err != nil {
		t.Errorf("VerifyChain failed on a valid chain: %v", err)
	}
}

func TestVerifyChain_GapAtOldestEndAllowed(t *testing.T) {
	b, _ := newTestBuilder(t)
	v := NewVerifier(testKeyPair(t).Public)

	var records []*Record
	for i := 0; i < 3; i++ {
		rec, _ := buildTestRecord(t, b, fmt.Sprintf("m%d", i))
		records = append(records, rec)
	}
	// The oldest record was purged; the survivor references a hash that no
	// longer resolves, which is the one tolerated gap.
	if err := v.VerifyChain(records[1:]); err != nil {
		t.Errorf("VerifyChain rejects a chain with a purged prefix: %v", err)
	}
}

func TestVerifyChain_OutOfOrder(t *testing.T) {
	b, _ := newTestBuilder(t)
	v := NewVerifier(testKeyPair(t).Public)

	var records []*Record
	for i := 0; i < 3; i++ {
		rec, _ := buildTestRecord(t, b, fmt.Sprintf("m%d", i))
		records = append(records, rec)
	}
	swapped := []*Record{records[0], records[2], records[1]}
	if err := v.VerifyChain(swapped); err == nil {
		t.Fatal("VerifyChain accepted records out of chain order")
	}
}

func TestVerifyChain_TwoChainStarts(t *testing.T) {
	v := NewVerifier(testKeyPair(t).Public)

	bA, _ := newTestBuilder(t)
	bB, _ := newTestBuilder(t)
	recA, _ := buildTestRecord(t, bA, "chat")
	recB, _ := buildTestRecord(t, bB, "chat")

	err := v.VerifyChain([]*Record{recA, recB})
	if err == nil {
		t.Fatal("VerifyChain accepted two genesis records in one sequence")
	}
	if !strings.Contains(err.Error(), "start") {
		t.Errorf("error %q does not mention the second chain start", err)
	}
}

// ===== STORE-WIDE VERIFICATION =====

func TestVerifyStore(t *testing.T) {
	b, st := newTestBuilder(t)
	v := NewVerifier(testKeyPair(t).Public)

	_, h1 := buildTestRecord(t, b, "chat")
	buildTestRecord(t, b, "completion")
	buildTestRecord(t, b, "embedding")

	// A mixed store: the oldest already delivered, two still pending.
	if err := st.MoveToProcessed(h1); err != nil {
		t.Fatalf("MoveToProcessed failed: %v", err)
	}

	n, err := v.VerifyStore(st)
	if err != nil {
		t.Fatalf("VerifyStore failed: %v", err)
	}
	if n != 3 {
		t.Errorf("verified %d records, want 3", n)
	}
}

func TestVerifyStore_DetectsTamperedFile(t *testing.T) {
	b, st := newTestBuilder(t)
	v := NewVerifier(testKeyPair(t).Public)

	buildTestRecord(t, b, "chat")
	_, h := buildTestRecord(t, b, "victim-method")

	data, err := os.ReadFile(h.Path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	tampered := bytes.Replace(data, []byte("victim-method"), []byte("VICTIM-method"), 1)
	if bytes.Equal(tampered, data) {
		t.Fatal("test setup: replacement did not change the file")
	}
	if err := os.WriteFile(h.Path, tampered, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	_, err = v.VerifyStore(st)
	if err == nil {
		t.Fatal("VerifyStore accepted a tampered record file")
	}
	if !errors.Is(err, ErrChainBroken) {
		t.Errorf("error %q does not report a broken chain", err)
	}
}

func TestVerifyStore_ToleratesPurgedPrefix(t *testing.T) {
	b, st := newTestBuilder(t)
	v := NewVerifier(testKeyPair(t).Public)

	_, h1 := buildTestRecord(t, b, "m1")
	_, h2 := buildTestRecord(t, b, "m2")
	buildTestRecord(t, b, "m3")

	for _, h := range []store.Handle{h1, h2} {
		if err := st.MoveToProcessed(h); err != nil {
			t.Fatalf("MoveToProcessed failed: %v", err)
		}
		if err := os.Remove(filepath.Join(st.ProcessedDir(), h.ID+".json")); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
	}

	n, err := v.VerifyStore(st)
	if err != nil {
		t.Fatalf("VerifyStore rejects a store with a purged prefix: %v", err)
	}
	if n != 1 {
		t.Errorf("verified %d records, want 1", n)
	}
}

func TestVerifyStore_DetectsHeadMismatch(t *testing.T) {
	b, st := newTestBuilder(t)
	v := NewVerifier(testKeyPair(t).Public)

	buildTestRecord(t, b, "chat")

	bogus := ChainState{
		LastHash:    strings.Repeat("d", 64),
		LastTraceID: "bogus",
		UpdatedAt:   "2025-01-01T00:00:00Z",
	}
	if err := (&Builder{store: st}).writeState(bogus); err != nil {
		t.Fatalf("writeState failed: %v", err)
	}

	_, err := v.VerifyStore(st)
	if err == nil {
		t.Fatal("VerifyStore accepted a chain head that matches no record")
	}
	if !errors.Is(err, ErrChainConflict) {
		t.Errorf("error %q does not report a state conflict", err)
	}
}

func TestVerifyStore_Empty(t *testing.T) {
	_, st := newTestBuilder(t)
	v := NewVerifier(testKeyPair(t).Public)

	n, err := v.VerifyStore(st)
	if err != nil {
		t.Fatalf("VerifyStore failed on empty store: %v", err)
	}
	if n != 0 {
		t.Errorf("verified %d records, want 0", n)
	}
}

func TestVerifyFile(t *testing.T) {
	b, _ := newTestBuilder(t)
	v := NewVerifier(testKeyPair(t).Public)

	rec, h := buildTestRecord(t, b, "chat")

	got, err := v.VerifyFile(h.Path)
	if err != nil {
		t.Fatalf("VerifyFile failed: %v", err)
	}
	if got.TraceID != rec.TraceID {
		t.Errorf("VerifyFile trace id = %s, want %s", got.TraceID, rec.TraceID)
	}

	if _, err := v.VerifyFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("VerifyFile succeeded on a missing file")
	}
}

// ===== CHAIN STATE =====

func TestLoadChainState_Missing(t *testing.T) {
	state, err := LoadChainState(t.TempDir())
	if err != nil {
		t.Fatalf("LoadChainState failed: %v", err)
	}
	if state.LastHash != "" {
		t.Errorf("missing state file should yield zero state, got %+v", state)
	}
}

func TestLoadChainState_Corrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, chainStateFile), []byte("{not json"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	_, err := LoadChainState(dir)
	if err == nil {
		t.Fatal("expected error for corrupt chain state, got nil")
	}
	if !errors.Is(err, ErrChainConflict) {
		t.Errorf("error %q does not report a state conflict", err)
	}
}
