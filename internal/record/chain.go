// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package record builds, signs, and verifies the chain-linked audit records
// at the center of the rigtrail pipeline.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/rigtrail/internal/keys"
	"github.com/jeranaias/rigtrail/internal/store"
	"github.com/jeranaias/rigtrail/internal/trace"
	"github.com/jeranaias/rigtrail/internal/util"
)

const (
	chainStateFile = "chain.json"
	chainLockFile  = "chain.lock"

	defaultLockWait   = 5 * time.Second
	lockRetryInterval = 50 * time.Millisecond
)

var (
	// ErrChainConflict reports that the chain head could not be extended:
	// another process holds the chain lock past the bounded wait, or the
	// persisted state disagrees with the records on disk.
	ErrChainConflict = errors.New("chain state conflict")

	// ErrChainBroken reports a record whose hash, signature, or predecessor
	// link no longer verifies.
	ErrChainBroken = errors.New("audit chain broken")
)

// ChainState is the persisted chain head, chain.json in the store root. It
// survives restarts so a new process extends the existing chain instead of
// starting a fresh one.
type ChainState struct {
	LastHash    string `json:"last_hash"`
	LastTraceID string `json:"last_trace_id"`
	UpdatedAt   string `json:"updated_at"`
}

// LoadChainState reads the chain head from a store root. A missing file is
// not an error: it means no chain exists yet and the zero state is returned.
func LoadChainState(root string) (ChainState, error) {
	var state ChainState
	data, err := os.ReadFile(filepath.Join(root, chainStateFile))
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to read chain state: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("%w: chain state file is corrupt: %v", ErrChainConflict, err)
	}
	return state, nil
}

// Builder assembles, signs, and persists chain-linked records. The private
// key is loaded once and held for the Builder's lifetime.
type Builder struct {
	keys     *keys.KeyPair
	store    *store.Store
	lockWait time.Duration
}

// NewBuilder returns a Builder writing to st and signing with kp.
func NewBuilder(kp *keys.KeyPair, st *store.Store) *Builder {
	return &Builder{keys: kp, store: st, lockWait: defaultLockWait}
}

// Build creates, signs, and persists one record, extending the chain. The
// whole read-extend-persist sequence runs under the exclusive chain lock so
// two concurrent builders can never claim the same prev_hash.
func (b *Builder) Build(in Input) (*Record, store.Handle, error) {
	if in.TraceID.IsZero() {
		return nil, store.Handle{}, fmt.Errorf("trace id is required")
	}
	if in.Method == "" {
		return nil, store.Handle{}, fmt.Errorf("request method is required")
	}

	lock, err := acquireLock(filepath.Join(b.store.Root(), chainLockFile), b.lockWait)
	if err != nil {
		return nil, store.Handle{}, err
	}
	defer lock.release()

	state, err := LoadChainState(b.store.Root())
	if err != nil {
		return nil, store.Handle{}, err
	}

	rec := &Record{
		TraceID:   in.TraceID.String(),
		Timestamp: in.TraceID.CreatedAt.Format(trace.TimestampLayout),
		Request: Request{
			Method:   in.Method,
			Model:    in.Model,
			BodyHash: BodyHash(in.RequestBody),
			// Detection metadata only. The masked text is stripped here so
			// no variant of the body ever reaches the record, whatever the
			// caller passed in.
			PIIDetection: in.PIIDetection.WithoutText(),
			NLPAnalysis:  in.NLPAnalysis,
		},
		Response: Response{
			Status:      in.Status,
			ContentHash: BodyHash(in.ResponseBody),
			Tokens:      in.Tokens,
		},
		SignatureAlgorithm: SignatureAlgorithm,
	}
	if state.LastHash != "" {
		prev := state.LastHash
		rec.PrevHash = &prev
	}

	rec.RecordHash, err = ComputeHash(rec)
	if err != nil {
		return nil, store.Handle{}, err
	}
	rec.Signature, err = sign(b.keys.Private, rec.RecordHash)
	if err != nil {
		return nil, store.Handle{}, err
	}

	data, err := rec.Marshal()
	if err != nil {
		return nil, store.Handle{}, err
	}
	handle, err := b.store.Persist(in.TraceID.UUID.String(), data)
	if err != nil {
		return nil, store.Handle{}, err
	}

	next := ChainState{
		LastHash:    rec.RecordHash,
		LastTraceID: rec.TraceID,
		UpdatedAt:   time.Now().UTC().Format(trace.TimestampLayout),
	}
	if err := b.writeState(next); err != nil {
		// Roll the record back so the persisted head still matches the
		// newest record on disk.
		_ = os.Remove(handle.Path)
		return nil, store.Handle{}, fmt.Errorf("failed to update chain state: %w", err)
	}
	return rec, handle, nil
}

func (b *Builder) writeState(state ChainState) error {
	return util.WriteJSONFile(filepath.Join(b.store.Root(), chainStateFile), state, 0600)
}
