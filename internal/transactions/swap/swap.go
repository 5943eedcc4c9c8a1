// Package swap builds the private swap: one input note in token A, one output
// note in token B, with the output amount chosen by the exact-division adjuster.
package swap

import (
	"errors"
	"fmt"
	"math/big"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/fixedpoint"
	"shieldedamm/internal/notes"
	"shieldedamm/internal/transactions"
)

// Public signal names in circuit order.
var PublicSignals = []string{
	"nullifier",
	"root",
	"new_commitment",
	"amount_specified",
	"zero_for_one",
	"amount0_delta",
	"amount1_delta",
	"new_sqrt_price_x128",
	"new_tick",
}

// Params is everything needed to prove and submit one swap.
type Params struct {
	Input      *notes.Note
	Output     *notes.Note
	Membership *collab.MembershipProof

	ZeroForOne      bool
	AmountSpecified *big.Int
	SqrtPriceOld    *big.Int
	NewSqrtPrice    *big.Int
	SqrtPriceLimit  *big.Int
	Adjustment      *fixedpoint.Adjustment
}

// Quote runs the adjuster for amountIn at sqrtPriceOld and returns the
// effective new sqrt price. A nil or unchanged quotedNewPrice is a zero move,
// which the adjuster perturbs.
func Quote(amountIn, sqrtPriceOld, quotedNewPrice *big.Int, zeroForOne bool) (*fixedpoint.Adjustment, *big.Int, error) {
	oldP, newP := fixedpoint.NormalizePrices(sqrtPriceOld, quotedNewPrice)
	if err := fixedpoint.CheckPriceMove(oldP, newP); err != nil {
		return nil, nil, err
	}
	diff := new(big.Int).Sub(newP, oldP)
	if diff.Sign() != 0 && zeroForOne != (diff.Sign() < 0) {
		return nil, nil, fmt.Errorf("quoted price %s moves against the swap direction from %s", newP, oldP)
	}

	desired := fixedpoint.SpotAmountOut(amountIn, oldP, zeroForOne)
	adj, err := fixedpoint.Adjust(desired, diff, fixedpoint.Q128, oldP)
	if err != nil {
		return nil, nil, err
	}
	effective := new(big.Int).Set(oldP)
	if zeroForOne {
		effective.Sub(effective, adj.PriceDiff)
	} else {
		effective.Add(effective, adj.PriceDiff)
	}
	if effective.Sign() <= 0 {
		return nil, nil, errors.New("swap would drive the sqrt price to zero")
	}
	return adj, effective, nil
}

// DefaultPriceLimit is the edge of the allowed price move in the swap direction.
func DefaultPriceLimit(sqrtPriceOld *big.Int, zeroForOne bool) *big.Int {
	oldP, _ := fixedpoint.NormalizePrices(sqrtPriceOld, nil)
	pct := int64(fixedpoint.MaxPriceMovePercent)
	if zeroForOne {
		pct = fixedpoint.MinPriceMovePercent
	}
	limit := new(big.Int).Mul(oldP, big.NewInt(pct))
	return limit.Quo(limit, big.NewInt(100))
}

// Amount0Delta is the token0 magnitude moved by the swap.
func (p *Params) Amount0Delta() *big.Int {
	if p.ZeroForOne {
		return p.AmountSpecified
	}
	return p.Adjustment.AmountOut
}

// Amount1Delta is the token1 magnitude moved by the swap.
func (p *Params) Amount1Delta() *big.Int {
	if p.ZeroForOne {
		return p.Adjustment.AmountOut
	}
	return p.AmountSpecified
}

// NewTick is the tick hint for the new price.
func (p *Params) NewTick() int32 {
	return fixedpoint.TickAtSqrtPrice(p.NewSqrtPrice)
}

func (p *Params) validate() error {
	switch {
	case p.Input == nil || p.Output == nil:
		return errors.New("swap needs an input and an output note")
	case p.Membership == nil:
		return errors.New("swap needs a membership proof")
	case p.Adjustment == nil:
		return errors.New("swap needs an adjustment")
	case p.Output.Amount.Cmp(p.Adjustment.AmountOut) != 0:
		return fmt.Errorf("output note amount %s differs from adjusted amount %s", p.Output.Amount, p.Adjustment.AmountOut)
	}
	return nil
}

// ProofRequest builds the swap circuit inputs. The output note amount is the
// adjusted amount, never the originally desired one.
func ProofRequest(p *Params) (*collab.ProofRequest, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	path, idx := transactions.MerkleWitness(p.Membership)
	dec := transactions.Dec
	return &collab.ProofRequest{
		Kind: collab.ProofSwap,
		Public: map[string]interface{}{
			"nullifier":           dec(p.Input.Nullifier),
			"root":                dec(p.Membership.Root),
			"new_commitment":      dec(p.Output.Commitment),
			"amount_specified":    dec(p.AmountSpecified),
			"zero_for_one":        dec(felt.FromBool(p.ZeroForOne)),
			"amount0_delta":       dec(p.Amount0Delta()),
			"amount1_delta":       dec(p.Amount1Delta()),
			"new_sqrt_price_x128": dec(p.NewSqrtPrice),
			"new_tick":            dec(felt.FromInt32(p.NewTick())),
		},
		Private: map[string]interface{}{
			"secret_in":      dec(p.Input.Secret),
			"amount_in":      dec(p.Input.Amount),
			"secret_out":     dec(p.Output.Secret),
			"nullifier_out":  dec(p.Output.Nullifier),
			"amount_out":     dec(p.Output.Amount),
			"pathElements":   path,
			"pathIndices":    idx,
			"sqrt_price_old": dec(p.SqrtPriceOld),
			"liquidity":      dec(p.Adjustment.Liquidity),
		},
	}, nil
}

// Call builds private_swap:
// [proof, public_inputs, zero_for_one, amount_specified, limit.low, limit.high, new_commitment].
func Call(pool *big.Int, proof *transactions.FormattedProof, p *Params) (collab.Call, error) {
	if _, err := notes.ToU128(p.AmountSpecified); err != nil {
		return collab.Call{}, fmt.Errorf("amount_specified: %w", err)
	}
	limit := p.SqrtPriceLimit
	if limit == nil {
		limit = DefaultPriceLimit(p.SqrtPriceOld, p.ZeroForOne)
	}
	low, high, err := felt.SplitU256(limit)
	if err != nil {
		return collab.Call{}, err
	}
	cd := proof.Calldata()
	cd = append(cd, felt.FromBool(p.ZeroForOne), p.AmountSpecified, low, high, p.Output.Commitment)
	return collab.Call{Contract: pool, EntryPoint: chain.EntryPrivateSwap, Calldata: cd}, nil
}
