package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/ledger"
	"shieldedamm/internal/notes"
	"shieldedamm/internal/validator"
)

// ReconcileReport summarizes a Reconcile pass.
type ReconcileReport struct {
	Checked     int
	Indexed     []string // notes that received a tree index
	Unsynced    []string // notes still missing from the tree
	Quarantined []string // notes whose nullifier is already spent
	Skipped     []string // reserved by an operation in flight
	Settled     []string // pending records whose outcome is now known
	Pending     []string // pending records still unresolved
}

// Reconcile compares the ledger with the chain. Pending records left by an
// interrupted submission are settled first: once all their outputs are in the
// tree the outputs join the ledger and the record succeeds. Then unindexed
// notes found in the tree get their index and notes whose nullifier is spent
// on chain are quarantined. Notes reserved by a running operation are left
// alone.
func (o *Orchestrator) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	rep := &ReconcileReport{}
	if err := o.settlePending(ctx, rep); err != nil {
		return rep, err
	}
	size, err := o.treeSize(ctx)
	if err != nil {
		return nil, err
	}

	for _, n := range o.ledger.Notes() {
		cm := n.CommitmentHex()
		if o.ledger.Reserved(n.Commitment) {
			rep.Skipped = append(rep.Skipped, cm)
			continue
		}
		rep.Checked++

		spent, err := o.nullifierSpent(ctx, n.Nullifier)
		if err != nil {
			return rep, fmt.Errorf("nullifier of %s: %w", cm, err)
		}
		if spent {
			if err := o.ledger.Quarantine(n.Commitment, "nullifier already spent on chain", ""); err != nil {
				return rep, err
			}
			rep.Quarantined = append(rep.Quarantined, cm)
			continue
		}

		if n.TreeIndex != nil && *n.TreeIndex < size {
			continue
		}
		index, found, err := o.findIndex(ctx, n.Commitment)
		if err != nil {
			return rep, fmt.Errorf("find %s: %w", cm, err)
		}
		if !found {
			rep.Unsynced = append(rep.Unsynced, cm)
			continue
		}
		if err := o.ledger.SetTreeIndex(n.Commitment, index); err != nil {
			return rep, err
		}
		rep.Indexed = append(rep.Indexed, cm)
	}

	o.log.Info().Int("checked", rep.Checked).Int("indexed", len(rep.Indexed)).Int("unsynced", len(rep.Unsynced)).
		Int("quarantined", len(rep.Quarantined)).Int("skipped", len(rep.Skipped)).
		Int("settled", len(rep.Settled)).Int("pending", len(rep.Pending)).Msg("ledger reconciled")
	o.recordBalances()
	return rep, nil
}

// settlePending resolves pending records of operations no longer running. A
// record with outputs succeeds when every output is in the tree. A record
// without outputs succeeds when every spent input's nullifier is on chain.
func (o *Orchestrator) settlePending(ctx context.Context, rep *ReconcileReport) error {
	for _, tx := range o.ledger.Transactions() {
		if tx.Status != ledger.StatusPending || o.inFlight(tx.OpID) {
			continue
		}
		landed, err := o.landed(ctx, tx)
		if err != nil {
			return fmt.Errorf("record %s: %w", tx.Ref, err)
		}
		if !landed {
			rep.Pending = append(rep.Pending, tx.Ref)
			continue
		}

		var outputs []string
		for _, n := range tx.Pending {
			if err := o.ledger.AddNote(n); err != nil && !errors.Is(err, ledger.ErrDuplicateCommitment) {
				return err
			}
			outputs = append(outputs, n.CommitmentHex())
		}
		if len(outputs) > 0 {
			if err := o.ledger.SetTransactionOutputs(tx.Ref, outputs); err != nil {
				return err
			}
		}
		if err := o.ledger.UpdateTransactionStatus(tx.Ref, ledger.StatusSuccess, ""); err != nil {
			return err
		}
		o.log.Info().Str("record", tx.Ref).Int("outputs", len(outputs)).Msg("pending record settled")
		rep.Settled = append(rep.Settled, tx.Ref)
	}
	return nil
}

// landed reports whether the transaction behind tx reached the chain, and
// attaches tree indexes to its pending outputs.
func (o *Orchestrator) landed(ctx context.Context, tx *ledger.Transaction) (bool, error) {
	if len(tx.Pending) > 0 {
		for _, n := range tx.Pending {
			index, found, err := o.findIndex(ctx, n.Commitment)
			if err != nil || !found {
				return false, err
			}
			n.WithTreeIndex(index)
		}
		return true, nil
	}
	if len(tx.Spent) == 0 {
		return false, nil
	}
	spent := make(map[string]*notes.Note)
	for _, q := range o.ledger.Quarantined() {
		spent[q.Note.CommitmentHex()] = q.Note
	}
	for _, cm := range tx.Spent {
		n, ok := spent[cm]
		if !ok {
			return false, nil
		}
		onChain, err := o.nullifierSpent(ctx, n.Nullifier)
		if err != nil || !onChain {
			return false, err
		}
	}
	return true, nil
}

// NoteValidation is the validator verdict for one ledger note.
type NoteValidation struct {
	Note   *notes.Note
	Result *validator.Result
	Err    error // typed validator error, or the lookup failure
}

// ValidateAll runs the commitment validator over every ledger note.
func (o *Orchestrator) ValidateAll(ctx context.Context) []NoteValidation {
	lookup := func(ctx context.Context, index uint64) (*big.Int, error) {
		cctx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
		defer cancel()
		mp, err := o.tree.MembershipProof(cctx, index)
		if err != nil {
			return nil, err
		}
		return mp.Leaf, nil
	}

	all := o.ledger.Notes()
	out := make([]NoteValidation, 0, len(all))
	for _, n := range all {
		res, err := validator.Validate(ctx, n, lookup)
		v := NoteValidation{Note: n, Result: res, Err: err}
		if err == nil {
			v.Err = res.Err()
		}
		out = append(out, v)
	}
	return out
}

func (o *Orchestrator) treeSize(ctx context.Context) (uint64, error) {
	cctx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()
	return o.tree.TreeSize(cctx)
}

func (o *Orchestrator) findIndex(ctx context.Context, commitment *big.Int) (uint64, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()
	return o.tree.FindIndexByCommitment(cctx, commitment)
}

func (o *Orchestrator) nullifierSpent(ctx context.Context, nullifier *big.Int) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()
	return chain.IsNullifierSpent(cctx, o.chain, o.opts.Pool, nullifier)
}
