// Package initialize builds the one-time pool initialization call.
package initialize

import (
	"errors"
	"fmt"
	"math/big"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/fixedpoint"
)

// Pool defaults: 0.3% fee tier, tick spacing 60, 1:1 price.
const (
	DefaultFee         uint32 = 3000
	DefaultTickSpacing int32  = 60
)

// Params describes the pool to initialize.
type Params struct {
	Token0      *big.Int
	Token1      *big.Int
	Fee         uint32
	TickSpacing int32
	SqrtPrice   *big.Int
}

// WithDefaults fills zero fields with the pool defaults.
func (p Params) WithDefaults() Params {
	if p.Fee == 0 {
		p.Fee = DefaultFee
	}
	if p.TickSpacing == 0 {
		p.TickSpacing = DefaultTickSpacing
	}
	if p.SqrtPrice == nil || p.SqrtPrice.Sign() == 0 {
		p.SqrtPrice = fixedpoint.DefaultSqrtPrice()
	}
	return p
}

// Call builds initialize [token0, token1, fee, tick_spacing, sqrt_price.low, sqrt_price.high].
func Call(pool *big.Int, p Params) (collab.Call, error) {
	p = p.WithDefaults()
	if p.Token0 == nil || p.Token1 == nil {
		return collab.Call{}, errors.New("both pool tokens are required")
	}
	if p.Token0.Cmp(p.Token1) == 0 {
		return collab.Call{}, errors.New("pool tokens must differ")
	}
	if p.TickSpacing < 0 {
		return collab.Call{}, fmt.Errorf("invalid tick spacing %d", p.TickSpacing)
	}
	low, high, err := felt.SplitU256(p.SqrtPrice)
	if err != nil {
		return collab.Call{}, fmt.Errorf("sqrt price: %w", err)
	}
	return collab.Call{
		Contract:   pool,
		EntryPoint: chain.EntryInitialize,
		Calldata: []*big.Int{
			p.Token0,
			p.Token1,
			big.NewInt(int64(p.Fee)),
			felt.FromInt32(p.TickSpacing),
			low,
			high,
		},
	}, nil
}
