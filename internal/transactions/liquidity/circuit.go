package liquidity

import (
	"github.com/consensys/gnark/frontend"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/transactions"
)

const amountBits = 128

// CircuitPosition covers mint and burn. The two differ only in the direction
// value flows between the note and the position.
type CircuitPosition struct {
	// Public
	Nullifier     frontend.Variable `gnark:",public"`
	Root          frontend.Variable `gnark:",public"`
	TickLower     frontend.Variable `gnark:",public"`
	TickUpper     frontend.Variable `gnark:",public"`
	Liquidity     frontend.Variable `gnark:",public"`
	NewCommitment frontend.Variable `gnark:",public"`

	// Private
	Amount    frontend.Variable
	NewAmount frontend.Variable

	burn bool
}

// NewMintCircuit returns an empty mint circuit for compilation.
func NewMintCircuit() *CircuitPosition { return &CircuitPosition{} }

// NewBurnCircuit returns an empty burn circuit for compilation.
func NewBurnCircuit() *CircuitPosition { return &CircuitPosition{burn: true} }

func (c *CircuitPosition) Define(api frontend.API) error {
	api.ToBinary(c.Liquidity, amountBits)
	api.ToBinary(c.NewAmount, amountBits)
	api.AssertIsDifferent(c.Liquidity, 0)

	if c.burn {
		api.AssertIsEqual(c.NewAmount, api.Add(c.Amount, c.Liquidity))
	} else {
		api.AssertIsEqual(c.Amount, api.Add(c.NewAmount, c.Liquidity))
	}
	return nil
}

// CircuitCollect adds the accrued fees to the replacement note.
type CircuitCollect struct {
	// Public
	Nullifier     frontend.Variable `gnark:",public"`
	Root          frontend.Variable `gnark:",public"`
	TickLower     frontend.Variable `gnark:",public"`
	TickUpper     frontend.Variable `gnark:",public"`
	NewCommitment frontend.Variable `gnark:",public"`

	// Private
	Amount    frontend.Variable
	Fees      frontend.Variable
	NewAmount frontend.Variable
}

func (c *CircuitCollect) Define(api frontend.API) error {
	api.ToBinary(c.Fees, amountBits)
	api.ToBinary(c.NewAmount, amountBits)
	api.AssertIsEqual(c.NewAmount, api.Add(c.Amount, c.Fees))
	return nil
}

// BuildWitness maps a mint, burn or collect proof request onto a full witness.
func BuildWitness(req *collab.ProofRequest) (frontend.Circuit, error) {
	if req.Kind == collab.ProofCollect {
		pub, err := transactions.Signals(req.Public, CollectSignals...)
		if err != nil {
			return nil, err
		}
		priv, err := transactions.Signals(req.Private, "amount", "fees", "new_amount")
		if err != nil {
			return nil, err
		}
		return &CircuitCollect{
			Nullifier:     pub[0],
			Root:          pub[1],
			TickLower:     pub[2],
			TickUpper:     pub[3],
			NewCommitment: pub[4],
			Amount:        priv[0],
			Fees:          priv[1],
			NewAmount:     priv[2],
		}, nil
	}

	pub, err := transactions.Signals(req.Public, PositionSignals...)
	if err != nil {
		return nil, err
	}
	priv, err := transactions.Signals(req.Private, "amount", "new_amount")
	if err != nil {
		return nil, err
	}
	return &CircuitPosition{
		Nullifier:     pub[0],
		Root:          pub[1],
		TickLower:     pub[2],
		TickUpper:     pub[3],
		Liquidity:     pub[4],
		NewCommitment: pub[5],
		Amount:        priv[0],
		NewAmount:     priv[1],
		burn:          req.Kind == collab.ProofBurn,
	}, nil
}
