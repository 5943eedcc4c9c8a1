package orchestrator

import (
	"context"
	"math/big"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/ledger"
	"shieldedamm/internal/notes"
	"shieldedamm/internal/transactions/withdraw"
)

// WithdrawResult reports a withdrawal. Change is nil when the whole note was
// withdrawn.
type WithdrawResult struct {
	Amount *big.Int
	Change *notes.Note
	TxRef  collab.TxRef
}

// Withdraw releases amount from the note with commitment to recipient. A
// remainder is kept as a change note.
func (o *Orchestrator) Withdraw(ctx context.Context, commitment, amount, recipient *big.Int) (*WithdrawResult, error) {
	p := o.begin(ledger.KindWithdraw)

	if commitment == nil {
		return nil, p.fail(precondition(p.kind, "note commitment is required", nil))
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, p.fail(precondition(p.kind, "amount must be positive", nil))
	}
	if recipient == nil || recipient.Sign() == 0 {
		return nil, p.fail(precondition(p.kind, "recipient is required", nil))
	}
	if err := felt.Check(recipient); err != nil {
		return nil, p.fail(precondition(p.kind, "recipient is not a valid address", err))
	}

	input, err := p.reserve(commitment, "", nil)
	if err != nil {
		return nil, p.fail(err)
	}
	token, _, ok := o.tokenFor(input.AssetID)
	if !ok {
		return nil, p.fail(precondition(p.kind, "note asset "+input.AssetID+" is not a pool token", nil))
	}
	change, err := withdraw.ChangeAmount(input.Amount, amount)
	if err != nil {
		return nil, p.fail(precondition(p.kind, "amount exceeds note", err))
	}

	mp, err := p.spendable(ctx, input)
	if err != nil {
		return nil, p.fail(err)
	}

	p.to(StateGeneratingWitness)
	params := &withdraw.Params{
		Input:      input,
		Membership: mp,
		Token:      token,
		Recipient:  recipient,
		Amount:     amount,
	}
	if change.Sign() > 0 {
		if params.Change, err = notes.NewNote(change, input.AssetID); err != nil {
			return nil, p.fail(err)
		}
	}
	req, err := withdraw.ProofRequest(params)
	if err != nil {
		return nil, p.fail(err)
	}

	proof, err := p.prove(ctx, req, o.opts.ProofTimeout)
	if err != nil {
		return nil, p.fail(err)
	}
	call, err := withdraw.Call(o.opts.Pool, proof, params)
	if err != nil {
		return nil, p.fail(err)
	}

	inputs := []*notes.Note{input}
	var outputs []*notes.Note
	if params.Change != nil {
		outputs = append(outputs, params.Change)
	}
	sub, err := p.submit(ctx, inputs, outputs, call)
	if err != nil {
		return nil, p.fail(err)
	}
	p.finalize(ctx, sub, inputs, outputs)

	res := &WithdrawResult{Amount: new(big.Int).Set(amount), TxRef: sub.ref}
	if params.Change != nil {
		res.Change = params.Change.Clone()
	}
	return res, nil
}
