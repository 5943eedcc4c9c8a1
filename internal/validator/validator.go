// Package validator checks that a local note reproduces the leaf stored at its
// tree index before the note is used as a spend input.
package validator

import (
	"context"
	"fmt"
	"math/big"

	"shieldedamm/internal/notes"
	"shieldedamm/internal/txerr"
)

// Reason classifies an invalid note.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonNotSynced    Reason = "NOT_SYNCED"
	ReasonLegacyScheme Reason = "LEGACY_SCHEME"
	ReasonDataMismatch Reason = "DATA_MISMATCH"
)

// LeafLookup returns the membership tree leaf at index.
type LeafLookup func(ctx context.Context, index uint64) (*big.Int, error)

// Result is the outcome of Validate, with diagnostics for invalid notes.
type Result struct {
	Valid      bool
	Reason     Reason
	Index      uint64
	Leaf       *big.Int
	Calculated *big.Int
	Legacy     *big.Int
	Stored     *big.Int
}

// Validate recomputes the commitment of n and compares it to the tree leaf.
// Lookup failures are returned as errors, not as an invalid result.
func Validate(ctx context.Context, n *notes.Note, lookup LeafLookup) (*Result, error) {
	if n.TreeIndex == nil {
		return &Result{Reason: ReasonNotSynced, Stored: n.Commitment}, nil
	}
	index := *n.TreeIndex

	leaf, err := lookup(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("lookup leaf %d: %w", index, err)
	}

	res := &Result{
		Index:      index,
		Leaf:       leaf,
		Calculated: n.Recompute(),
		Stored:     n.Commitment,
	}
	if res.Calculated.Cmp(leaf) == 0 {
		res.Valid = true
		return res, nil
	}

	res.Legacy = notes.CommitLegacy(n.Secret, n.Nullifier, n.Amount)
	if res.Legacy.Cmp(leaf) == 0 {
		res.Reason = ReasonLegacyScheme
		return res, nil
	}
	res.Reason = ReasonDataMismatch
	return res, nil
}

// Err converts an invalid result to its typed error. Valid results return nil.
func (r *Result) Err() error {
	switch r.Reason {
	case ReasonNone:
		return nil
	case ReasonNotSynced:
		return &txerr.SyncError{Commitment: notes.Hex(r.Stored), Err: txerr.ErrNotSynced}
	case ReasonLegacyScheme:
		return &txerr.LegacyCommitmentError{
			Commitment: notes.Hex(r.Stored),
			Index:      r.Index,
			Leaf:       notes.Hex(r.Leaf),
		}
	default:
		return &txerr.DataMismatchError{
			Index:      r.Index,
			Leaf:       notes.Hex(r.Leaf),
			Calculated: notes.Hex(r.Calculated),
			Stored:     notes.Hex(r.Stored),
		}
	}
}
