package swap

import (
	"github.com/consensys/gnark/frontend"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/fixedpoint"
	"shieldedamm/internal/transactions"
)

// priceDiffBits bounds the price move so that a move against the swap
// direction (a wrapped negative) cannot satisfy the circuit.
const priceDiffBits = 160

// CircuitSwap proves the exact-division swap relation
//
//	amount_out * 2^128 == liquidity * |new_sqrt_price - sqrt_price_old|
//
// with the move direction fixed by zero_for_one. Note commitments are bound
// as public inputs; membership is checked on chain against the root.
type CircuitSwap struct {
	Nullifier       frontend.Variable `gnark:",public"`
	Root            frontend.Variable `gnark:",public"`
	NewCommitment   frontend.Variable `gnark:",public"`
	AmountSpecified frontend.Variable `gnark:",public"`
	ZeroForOne      frontend.Variable `gnark:",public"`
	Amount0Delta    frontend.Variable `gnark:",public"`
	Amount1Delta    frontend.Variable `gnark:",public"`
	NewSqrtPrice    frontend.Variable `gnark:",public"`
	NewTick         frontend.Variable `gnark:",public"`

	AmountIn     frontend.Variable
	AmountOut    frontend.Variable
	SqrtPriceOld frontend.Variable
	Liquidity    frontend.Variable
}

func (c *CircuitSwap) Define(api frontend.API) error {
	api.AssertIsBoolean(c.ZeroForOne)
	api.AssertIsEqual(c.AmountSpecified, c.AmountIn)

	down := api.Sub(c.SqrtPriceOld, c.NewSqrtPrice)
	up := api.Sub(c.NewSqrtPrice, c.SqrtPriceOld)
	diff := api.Select(c.ZeroForOne, down, up)
	api.ToBinary(diff, priceDiffBits)
	api.AssertIsDifferent(diff, 0)

	api.AssertIsEqual(api.Mul(c.AmountOut, fixedpoint.Q128), api.Mul(c.Liquidity, diff))

	in := api.Select(c.ZeroForOne, c.Amount0Delta, c.Amount1Delta)
	out := api.Select(c.ZeroForOne, c.Amount1Delta, c.Amount0Delta)
	api.AssertIsEqual(in, c.AmountIn)
	api.AssertIsEqual(out, c.AmountOut)
	return nil
}

// BuildWitness maps a swap proof request onto a full witness.
func BuildWitness(req *collab.ProofRequest) (*CircuitSwap, error) {
	pub, err := transactions.Signals(req.Public, PublicSignals...)
	if err != nil {
		return nil, err
	}
	priv, err := transactions.Signals(req.Private, "amount_in", "amount_out", "sqrt_price_old", "liquidity")
	if err != nil {
		return nil, err
	}
	return &CircuitSwap{
		Nullifier:       pub[0],
		Root:            pub[1],
		NewCommitment:   pub[2],
		AmountSpecified: pub[3],
		ZeroForOne:      pub[4],
		Amount0Delta:    pub[5],
		Amount1Delta:    pub[6],
		NewSqrtPrice:    pub[7],
		NewTick:         pub[8],
		AmountIn:        priv[0],
		AmountOut:       priv[1],
		SqrtPriceOld:    priv[2],
		Liquidity:       priv[3],
	}, nil
}
