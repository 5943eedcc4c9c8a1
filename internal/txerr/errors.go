// Package txerr defines the failure taxonomy shared by the validator and the
// transaction orchestrator. Callers match the typed errors with errors.As and
// the sentinels with errors.Is.
package txerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotSynced       = errors.New("note is not synced with the membership tree")
	ErrNoteNotOnLedger = errors.New("note not found on ledger")
	// ErrOutcomeUnknown is returned when a transaction may have reached the
	// chain but its fate could not be observed.
	ErrOutcomeUnknown = errors.New("transaction outcome unknown")
)

// PreconditionError rejects an intent before any network call.
type PreconditionError struct {
	Op     string
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: precondition failed: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: precondition failed: %s", e.Op, e.Reason)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// SyncError reports a note that cannot be located in the membership tree.
type SyncError struct {
	Commitment string
	Index      *uint64
	TreeSize   uint64
	Err        error
}

func (e *SyncError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sync error for note %s", e.Commitment)
	if e.Index != nil {
		fmt.Fprintf(&b, " (index %d, tree size %d)", *e.Index, e.TreeSize)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *SyncError) Unwrap() error { return e.Err }

// LegacyCommitmentError marks a note committed under the superseded scheme.
// Such notes cannot be spent by the current circuits and must be migrated.
type LegacyCommitmentError struct {
	Commitment string
	Index      uint64
	Leaf       string
}

func (e *LegacyCommitmentError) Error() string {
	return fmt.Sprintf("note %s at index %d was committed with the legacy scheme (leaf %s); migrate it before spending",
		e.Commitment, e.Index, e.Leaf)
}

// DataMismatchError means the local note data does not reproduce the on-tree leaf.
// It is never repaired automatically.
type DataMismatchError struct {
	Index      uint64
	Leaf       string
	Calculated string
	Stored     string
	Amount     string
}

func (e *DataMismatchError) Error() string {
	return fmt.Sprintf("note data mismatch at index %d: leaf %s, calculated %s, stored %s, amount %s",
		e.Index, e.Leaf, e.Calculated, e.Stored, e.Amount)
}

// ProofTimeoutError is raised when the proof generator exceeds its deadline.
type ProofTimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *ProofTimeoutError) Error() string {
	return fmt.Sprintf("%s: proof generation exceeded %s", e.Op, e.Timeout)
}

func (e *ProofTimeoutError) Unwrap() error { return e.Err }

// ProofFormatError is a malformed proof blob. It is never retried.
type ProofFormatError struct {
	Op     string
	Reason string
}

func (e *ProofFormatError) Error() string {
	return fmt.Sprintf("%s: malformed proof: %s", e.Op, e.Reason)
}

// ChainRejectionError carries the chain's revert reason verbatim plus a translation.
type ChainRejectionError struct {
	TxRef    string
	Raw      string
	Friendly string
}

func (e *ChainRejectionError) Error() string {
	if e.TxRef != "" {
		return fmt.Sprintf("transaction %s rejected: %s (%s)", e.TxRef, e.Friendly, e.Raw)
	}
	return fmt.Sprintf("transaction rejected: %s (%s)", e.Friendly, e.Raw)
}

var revertTranslations = []struct {
	needle   string
	friendly string
}{
	{"nullifier", "the note has already been spent"},
	{"unknown root", "the membership root is not known on-chain; resync and retry"},
	{"invalid root", "the membership root is not known on-chain; resync and retry"},
	{"invalid proof", "the proof was rejected by the verifier"},
	{"insufficient allowance", "token allowance is too low; approve the pool first"},
	{"u256_sub overflow", "insufficient token balance"},
	{"insufficient balance", "insufficient token balance"},
	{"not initialized", "the pool is not initialized"},
	{"already initialized", "the pool is already initialized"},
	{"price limit", "the price moved past the requested limit"},
}

// Translate maps a raw revert reason to a user-facing explanation.
func Translate(raw string) string {
	lower := strings.ToLower(raw)
	for _, t := range revertTranslations {
		if strings.Contains(lower, t.needle) {
			return t.friendly
		}
	}
	return "the contract reverted the transaction"
}

// NewChainRejection builds a ChainRejectionError with a translated reason.
func NewChainRejection(txRef, raw string) *ChainRejectionError {
	return &ChainRejectionError{TxRef: txRef, Raw: raw, Friendly: Translate(raw)}
}
