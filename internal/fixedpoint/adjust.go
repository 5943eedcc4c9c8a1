// Package fixedpoint keeps swap amounts compatible with the circuit relation
//
//	amountOut * Scale == liquidity * priceDiff
//
// which the prover checks with exact integer division. All arithmetic is on
// arbitrary precision integers.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"
)

// Q128 is the fixed-point scale for sqrt prices (2^128). A sqrt price equal
// to Q128 is the 1:1 price.
var Q128 = new(big.Int).Lsh(big.NewInt(1), 128)

const (
	// PerturbationShift sizes the substitute price move used when the swap
	// would not move the price: sqrtPrice >> 13, about 0.0122% of the price.
	PerturbationShift = 13

	// SearchBudget bounds the downward search for an exact multiple before
	// the closed-form fallback is used.
	SearchBudget = 10_000
)

// ErrNoExactSolution is returned when no positive amount satisfies the relation.
var ErrNoExactSolution = errors.New("no positive amount satisfies exact division")

// ArithmeticError describes an adjuster failure with its inputs.
type ArithmeticError struct {
	Desired   *big.Int
	PriceDiff *big.Int
	Scale     *big.Int
	Err       error
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("exact division adjustment failed (desired=%s priceDiff=%s scale=%s): %v",
		e.Desired, e.PriceDiff, e.Scale, e.Err)
}

func (e *ArithmeticError) Unwrap() error { return e.Err }

// Strategy records how the adjuster reached its answer.
type Strategy string

const (
	StrategyDirect     Strategy = "direct"      // ceil(liquidity) was already exact
	StrategySearch     Strategy = "search"      // bounded downward search
	StrategyClosedForm Strategy = "closed_form" // gcd based fallback
)

// Adjustment is the result of Adjust.
type Adjustment struct {
	Liquidity *big.Int
	AmountOut *big.Int
	PriceDiff *big.Int // effective price difference, perturbed if the input was zero
	Perturbed bool
	Strategy  Strategy
}

// Adjust finds (liquidity, amountOut) with amountOut*scale == liquidity*priceDiff
// and amountOut as close to desired as possible without exceeding ceil rounding.
func Adjust(desired, priceDiff, scale, sqrtPrice *big.Int) (*Adjustment, error) {
	if desired == nil || desired.Sign() < 0 {
		return nil, &ArithmeticError{Desired: desired, PriceDiff: priceDiff, Scale: scale, Err: errors.New("desired amount must be non-negative")}
	}
	if scale == nil || scale.Sign() <= 0 {
		return nil, &ArithmeticError{Desired: desired, PriceDiff: priceDiff, Scale: scale, Err: errors.New("scale must be positive")}
	}

	// 1. A zero price move is replaced by a small fixed fraction of the price.
	adj := &Adjustment{PriceDiff: new(big.Int).Abs(nonNil(priceDiff))}
	if adj.PriceDiff.Sign() == 0 {
		base := nonNil(sqrtPrice)
		if base.Sign() <= 0 {
			base = scale
		}
		adj.PriceDiff = new(big.Int).Rsh(base, PerturbationShift)
		if adj.PriceDiff.Sign() == 0 {
			adj.PriceDiff.SetInt64(1)
		}
		adj.Perturbed = true
	}
	p := adj.PriceDiff

	// 2. liquidity = ceil(desired * scale / p)
	liquidity := ceilDiv(new(big.Int).Mul(desired, scale), p)

	// 3. Accept when liquidity*p is already a multiple of scale.
	numerator := new(big.Int).Mul(liquidity, p)
	k, rem := new(big.Int).QuoRem(numerator, scale, new(big.Int))
	if rem.Sign() == 0 {
		adj.Strategy = StrategyDirect
	} else {
		// 4. Largest k <= floor(numerator/scale) with k*scale divisible by p.
		k, adj.Strategy = largestExactMultiple(k, p, scale)
	}

	if k.Sign() == 0 {
		return nil, &ArithmeticError{Desired: desired, PriceDiff: p, Scale: scale, Err: ErrNoExactSolution}
	}

	// 5. liquidity = k*scale/p, amountOut = k
	adj.AmountOut = k
	adj.Liquidity = new(big.Int).Quo(new(big.Int).Mul(k, scale), p)

	// 6. Postcondition.
	lhs := new(big.Int).Mul(adj.AmountOut, scale)
	rhs := new(big.Int).Mul(adj.Liquidity, p)
	if lhs.Cmp(rhs) != 0 {
		return nil, &ArithmeticError{Desired: desired, PriceDiff: p, Scale: scale, Err: errors.New("postcondition violated")}
	}
	return adj, nil
}

// Exact reports whether amountOut*scale == liquidity*priceDiff.
func Exact(amountOut, liquidity, priceDiff, scale *big.Int) bool {
	lhs := new(big.Int).Mul(amountOut, scale)
	return lhs.Cmp(new(big.Int).Mul(liquidity, priceDiff)) == 0
}

// largestExactMultiple returns the largest k <= kmax such that p | k*scale.
// Those k are exactly the multiples of step = p / gcd(scale mod p, p).
func largestExactMultiple(kmax, p, scale *big.Int) (*big.Int, Strategy) {
	modP := new(big.Int)
	k := new(big.Int).Set(kmax)
	for i := 0; i < SearchBudget && k.Sign() > 0; i++ {
		if modP.Mul(k, scale).Mod(modP, p).Sign() == 0 {
			return k, StrategySearch
		}
		k.Sub(k, big.NewInt(1))
	}
	if k.Sign() == 0 {
		return k, StrategySearch
	}

	r := new(big.Int).Mod(scale, p)
	g := new(big.Int).GCD(nil, nil, r, p)
	step := new(big.Int).Quo(p, g)
	k = new(big.Int).Quo(kmax, step)
	return k.Mul(k, step), StrategyClosedForm
}

func ceilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
