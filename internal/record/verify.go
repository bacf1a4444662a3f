// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package record builds, signs, and verifies the chain-linked audit records
// at the center of the rigtrail pipeline.
package record

import (
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/jeranaias/rigtrail/internal/store"
)

// Verifier checks record integrity and chain linkage using the public key
// only; it never needs signing material.
type Verifier struct {
	pub *rsa.PublicKey
}

// NewVerifier returns a Verifier for records signed by the pair of pub.
func NewVerifier(pub *rsa.PublicKey) *Verifier {
	return &Verifier{pub: pub}
}

// VerifyRecord checks one record in isolation: the recomputed hash matches
// the stored record_hash and the signature verifies under the public key.
// Any mismatch is reported as ErrChainBroken.
func (v *Verifier) VerifyRecord(r *Record) error {
	hash, err := ComputeHash(r)
	if err != nil {
		return fmt.Errorf("failed to canonicalize record %s: %w", r.TraceID, err)
	}
	if hash != r.RecordHash {
		return fmt.Errorf("%w: record %s hash mismatch (computed %s, stored %s)",
			ErrChainBroken, r.TraceID, hash, r.RecordHash)
	}
	if r.SignatureAlgorithm != SignatureAlgorithm {
		return fmt.Errorf("%w: record %s uses unsupported signature algorithm %q",
			ErrChainBroken, r.TraceID, r.SignatureAlgorithm)
	}
	if err := verifySignature(v.pub, r); err != nil {
		return fmt.Errorf("%w: record %s signature rejected: %v", ErrChainBroken, r.TraceID, err)
	}
	return nil
}

// VerifyFile checks a single on-disk record in isolation.
func (v *Verifier) VerifyFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	r, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChainBroken, err)
	}
	if err := v.VerifyRecord(r); err != nil {
		return r, err
	}
	return r, nil
}

// VerifyChain checks a sequence ordered oldest first: every record verifies
// individually and each one's prev_hash equals its predecessor's
// record_hash. The oldest record may reference a predecessor that retention
// already purged; after that the linkage must be unbroken.
func (v *Verifier) VerifyChain(records []*Record) error {
	for i, r := range records {
		if err := v.VerifyRecord(r); err != nil {
			return err
		}
		if i == 0 {
			continue
		}
		if r.PrevHash == nil {
			return fmt.Errorf("%w: record %s claims to start a chain but follows record %s",
				ErrChainBroken, r.TraceID, records[i-1].TraceID)
		}
		if *r.PrevHash != records[i-1].RecordHash {
			return fmt.Errorf("%w: record %s prev_hash does not match record %s",
				ErrChainBroken, r.TraceID, records[i-1].TraceID)
		}
	}
	return nil
}

// VerifyStore loads every record in the store, pending and processed,
// reconstructs chain order from the prev_hash links, and verifies the whole
// chain. When a chain head is persisted it must also match the newest
// record. Returns the number of records checked alongside the first
// failure, if any.
func (v *Verifier) VerifyStore(st *store.Store) (int, error) {
	records, err := loadAll(st)
	if err != nil {
		return 0, err
	}
	for _, r := range records {
		if err := v.VerifyRecord(r); err != nil {
			return len(records), err
		}
	}

	ordered, err := orderChain(records)
	if err != nil {
		return len(records), err
	}
	if err := v.VerifyChain(ordered); err != nil {
		return len(records), err
	}

	state, err := LoadChainState(st.Root())
	if err != nil {
		return len(records), err
	}
	if state.LastHash != "" && len(ordered) > 0 {
		newest := ordered[len(ordered)-1]
		if newest.RecordHash != state.LastHash {
			return len(records), fmt.Errorf("%w: persisted chain head %s does not match newest record %s",
				ErrChainConflict, state.LastHash, newest.TraceID)
		}
	}
	return len(records), nil
}

func loadAll(st *store.Store) ([]*Record, error) {
	pending, err := st.ListPending()
	if err != nil {
		return nil, err
	}
	processed, err := st.ListProcessed()
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(pending)+len(processed))
	for _, h := range append(processed, pending...) {
		data, err := st.Read(h)
		if err != nil {
			return nil, err
		}
		r, err := Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("%w: record %s: %v", ErrChainBroken, h.ID, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// orderChain arranges records oldest first by walking the prev_hash links.
// Timestamps have second resolution and cannot break ties, so the links
// themselves are the only reliable order. Exactly one record may lack a
// present predecessor (the genesis, or the oldest survivor of a purge);
// more than one means the chain is forked or fragmented.
func orderChain(records []*Record) ([]*Record, error) {
	if len(records) == 0 {
		return nil, nil
	}

	byHash := make(map[string]*Record, len(records))
	for _, r := range records {
		byHash[r.RecordHash] = r
	}

	successor := make(map[string]*Record, len(records))
	var start *Record
	for _, r := range records {
		if r.PrevHash == nil || byHash[*r.PrevHash] == nil {
			if start != nil {
				return nil, fmt.Errorf("%w: records %s and %s both start a chain segment",
					ErrChainBroken, start.TraceID, r.TraceID)
			}
			start = r
			continue
		}
		if other := successor[*r.PrevHash]; other != nil {
			return nil, fmt.Errorf("%w: records %s and %s both follow the same predecessor",
				ErrChainBroken, other.TraceID, r.TraceID)
		}
		successor[*r.PrevHash] = r
	}
	if start == nil {
		return nil, fmt.Errorf("%w: no chain start found among %d records", ErrChainBroken, len(records))
	}

	ordered := make([]*Record, 0, len(records))
	for r := start; r != nil; r = successor[r.RecordHash] {
		ordered = append(ordered, r)
	}
	if len(ordered) != len(records) {
		return nil, fmt.Errorf("%w: %d of %d records are not linked into the chain",
			ErrChainBroken, len(records)-len(ordered), len(records))
	}
	return ordered, nil
}
