package withdraw

import (
	"github.com/consensys/gnark/frontend"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/transactions"
)

const amountBits = 128

type CircuitWithdraw struct {
	// Public
	Nullifier        frontend.Variable `gnark:",public"`
	Root             frontend.Variable `gnark:",public"`
	Recipient        frontend.Variable `gnark:",public"`
	Amount           frontend.Variable `gnark:",public"`
	ChangeCommitment frontend.Variable `gnark:",public"`

	// Private
	NoteAmount   frontend.Variable
	ChangeAmount frontend.Variable
}

func (c *CircuitWithdraw) Define(api frontend.API) error {
	// (1) Value conservation
	api.AssertIsEqual(c.NoteAmount, api.Add(c.Amount, c.ChangeAmount))

	// (2) Both parts are u128, so neither can wrap around the field
	api.ToBinary(c.Amount, amountBits)
	api.ToBinary(c.ChangeAmount, amountBits)
	api.AssertIsDifferent(c.Amount, 0)

	// (3) No change commitment without change
	isZeroChange := api.IsZero(c.ChangeAmount)
	api.AssertIsEqual(api.Mul(isZeroChange, c.ChangeCommitment), 0)
	return nil
}

// BuildWitness maps a withdraw proof request onto a full witness.
func BuildWitness(req *collab.ProofRequest) (*CircuitWithdraw, error) {
	pub, err := transactions.Signals(req.Public, PublicSignals...)
	if err != nil {
		return nil, err
	}
	priv, err := transactions.Signals(req.Private, "note_amount", "change_amount")
	if err != nil {
		return nil, err
	}
	return &CircuitWithdraw{
		Nullifier:        pub[0],
		Root:             pub[1],
		Recipient:        pub[2],
		Amount:           pub[3],
		ChangeCommitment: pub[4],
		NoteAmount:       priv[0],
		ChangeAmount:     priv[1],
	}, nil
}
