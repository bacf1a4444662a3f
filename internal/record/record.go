// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package record builds, signs, and verifies the chain-linked audit records
// at the center of the rigtrail pipeline. Each record canonically hashes its
// payload together with its predecessor's hash and carries an RSA-PSS
// signature over that hash, so any later modification of any record breaks
// the chain.
package record

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/jeranaias/rigtrail/internal/redact"
	"github.com/jeranaias/rigtrail/internal/trace"
)

// SignatureAlgorithm identifies the signing scheme stamped into every record.
const SignatureAlgorithm = "RSA-PSS-SHA256"

// Request is the request half of an audit record. Bodies are never stored,
// only their digests; detection metadata is embedded without any text.
type Request struct {
	Method       string           `json:"method"`
	Model        string           `json:"model,omitempty"`
	BodyHash     string           `json:"body_hash"`
	PIIDetection redact.Result    `json:"pii_detection"`
	NLPAnalysis  *redact.Analysis `json:"nlp_analysis,omitempty"`
}

// Response is the response half of an audit record.
type Response struct {
	Status      string `json:"status"`
	ContentHash string `json:"content_hash"`
	Tokens      int    `json:"tokens,omitempty"`
}

// Record is one chain-linked unit of the audit trail. PrevHash is nil only
// for the first record of a chain.
type Record struct {
	TraceID            string   `json:"trace_id"`
	Timestamp          string   `json:"timestamp"`
	Request            Request  `json:"request"`
	Response           Response `json:"response"`
	PrevHash           *string  `json:"prev_hash"`
	RecordHash         string   `json:"record_hash"`
	Signature          string   `json:"signature"`
	SignatureAlgorithm string   `json:"signature_algorithm"`
}

// payload is the hashed subset of a record: everything except the chain and
// signature fields. PrevHash enters the digest separately so the hash covers
// the link without the link covering itself.
type payload struct {
	TraceID   string   `json:"trace_id"`
	Timestamp string   `json:"timestamp"`
	Request   Request  `json:"request"`
	Response  Response `json:"response"`
}

// Input carries the caller-supplied fields for one record. RequestBody and
// ResponseBody are the raw, unmasked bytes; they are hashed and discarded,
// never persisted.
type Input struct {
	TraceID      trace.TraceID
	Method       string
	Model        string
	RequestBody  []byte
	ResponseBody []byte
	Status       string
	Tokens       int
	PIIDetection redact.Result
	NLPAnalysis  *redact.Analysis
}

// BodyHash returns the content digest recorded for raw body bytes.
func BodyHash(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ComputeHash recomputes the record hash from the record's payload fields
// and its stated prev_hash: sha256 over the RFC 8785 canonical JSON of the
// payload, followed by the predecessor hash hex (empty for genesis).
func ComputeHash(r *Record) (string, error) {
	raw, err := json.Marshal(payload{
		TraceID:   r.TraceID,
		Timestamp: r.Timestamp,
		Request:   r.Request,
		Response:  r.Response,
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize record payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize record payload: %w", err)
	}

	h := sha256.New()
	h.Write(canonical)
	if r.PrevHash != nil {
		h.Write([]byte(*r.PrevHash))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// sign produces the hex RSA-PSS signature over the ASCII hex record hash.
func sign(priv *rsa.PrivateKey, recordHash string) (string, error) {
	digest := sha256.Sum256([]byte(recordHash))
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign record: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// verifySignature checks the record's signature against its stated hash.
func verifySignature(pub *rsa.PublicKey, r *Record) error {
	sig, err := hex.DecodeString(r.Signature)
	if err != nil {
		return fmt.Errorf("signature is not valid hex: %w", err)
	}
	digest := sha256.Sum256([]byte(r.RecordHash))
	return rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
}

// Marshal renders the record in its on-disk file format: indented JSON with
// a trailing newline.
func (r *Record) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize record: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal parses an on-disk record file.
func Unmarshal(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	return &r, nil
}
