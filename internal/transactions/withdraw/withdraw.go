// Package withdraw builds the private withdraw: one note is spent, `amount`
// of its token is sent to a public recipient and the remainder, if any,
// comes back as a change note.
package withdraw

import (
	"errors"
	"fmt"
	"math/big"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/notes"
	"shieldedamm/internal/transactions"
)

// Public signal names in circuit order.
var PublicSignals = []string{
	"nullifier",
	"root",
	"recipient",
	"amount",
	"change_commitment",
}

// Params is everything needed to prove and submit one withdraw.
type Params struct {
	Input      *notes.Note
	Change     *notes.Note // nil when the whole note is withdrawn
	Membership *collab.MembershipProof

	Token     *big.Int
	Recipient *big.Int
	Amount    *big.Int
}

// ChangeAmount returns note amount - withdrawn amount.
func ChangeAmount(noteAmount, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("withdraw amount must be positive")
	}
	change := new(big.Int).Sub(noteAmount, amount)
	if change.Sign() < 0 {
		return nil, fmt.Errorf("withdraw amount %s exceeds note amount %s", amount, noteAmount)
	}
	return change, nil
}

// ChangeCommitment is the change note commitment, or 0 without change.
func (p *Params) ChangeCommitment() *big.Int {
	if p.Change == nil {
		return new(big.Int)
	}
	return p.Change.Commitment
}

func (p *Params) validate() error {
	if p.Input == nil || p.Membership == nil {
		return errors.New("withdraw needs an input note and its membership proof")
	}
	if err := felt.Check(p.Recipient); err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	change, err := ChangeAmount(p.Input.Amount, p.Amount)
	if err != nil {
		return err
	}
	switch {
	case change.Sign() == 0 && p.Change != nil:
		return errors.New("full withdraw must not carry a change note")
	case change.Sign() > 0 && p.Change == nil:
		return fmt.Errorf("partial withdraw leaves %s without a change note", change)
	case p.Change != nil && p.Change.Amount.Cmp(change) != 0:
		return fmt.Errorf("change note amount %s, want %s", p.Change.Amount, change)
	}
	return nil
}

// ProofRequest builds the withdraw circuit inputs.
func ProofRequest(p *Params) (*collab.ProofRequest, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	path, idx := transactions.MerkleWitness(p.Membership)
	dec := transactions.Dec

	priv := map[string]interface{}{
		"secret":           dec(p.Input.Secret),
		"note_amount":      dec(p.Input.Amount),
		"pathElements":     path,
		"pathIndices":      idx,
		"change_amount":    "0",
		"change_secret":    "0",
		"change_nullifier": "0",
	}
	if p.Change != nil {
		priv["change_amount"] = dec(p.Change.Amount)
		priv["change_secret"] = dec(p.Change.Secret)
		priv["change_nullifier"] = dec(p.Change.Nullifier)
	}
	return &collab.ProofRequest{
		Kind: collab.ProofWithdraw,
		Public: map[string]interface{}{
			"nullifier":         dec(p.Input.Nullifier),
			"root":              dec(p.Membership.Root),
			"recipient":         dec(p.Recipient),
			"amount":            dec(p.Amount),
			"change_commitment": dec(p.ChangeCommitment()),
		},
		Private: priv,
	}, nil
}

// Call builds private_withdraw:
// [proof, public_inputs, token, recipient, amount, change_commitment].
func Call(pool *big.Int, proof *transactions.FormattedProof, p *Params) (collab.Call, error) {
	if _, err := notes.ToU128(p.Amount); err != nil {
		return collab.Call{}, fmt.Errorf("withdraw amount: %w", err)
	}
	cd := proof.Calldata()
	cd = append(cd, p.Token, p.Recipient, p.Amount, p.ChangeCommitment())
	return collab.Call{Contract: pool, EntryPoint: chain.EntryPrivateWithdraw, Calldata: cd}, nil
}
