package orchestrator

import (
	"context"
	"fmt"
	"math/big"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/ledger"
	"shieldedamm/internal/notes"
	"shieldedamm/internal/transactions/deposit"
)

// DepositResult is the note created by a deposit.
type DepositResult struct {
	Note  *notes.Note
	TxRef collab.TxRef
}

// Deposit moves amount of asset from the account into a new private note.
// Deposits carry no proof, so the pipeline goes from idle straight to
// generating_witness and submitting.
func (o *Orchestrator) Deposit(ctx context.Context, asset string, amount *big.Int) (*DepositResult, error) {
	p := o.begin(ledger.KindDeposit)

	token, _, ok := o.tokenFor(asset)
	if !ok {
		return nil, p.fail(precondition(p.kind, fmt.Sprintf("asset %q is not a pool token", asset), nil))
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, p.fail(precondition(p.kind, "amount must be positive", nil))
	}
	if _, err := notes.ToU128(amount); err != nil {
		return nil, p.fail(precondition(p.kind, "amount does not fit u128", err))
	}

	p.to(StateGeneratingWitness)
	note, err := notes.NewNote(amount, asset)
	if err != nil {
		return nil, p.fail(err)
	}
	calls, err := deposit.Calls(o.opts.Pool, token, amount, note.Commitment)
	if err != nil {
		return nil, p.fail(err)
	}

	outputs := []*notes.Note{note}
	sub, err := p.submit(ctx, nil, outputs, calls...)
	if err != nil {
		return nil, p.fail(err)
	}
	p.finalize(ctx, sub, nil, outputs)
	p.log.Info().Str("commitment", note.CommitmentHex()).Str("amount", amount.String()).Msg("deposit complete")
	return &DepositResult{Note: note.Clone(), TxRef: sub.ref}, nil
}
