package fixedpoint

import (
	"fmt"
	"math"
	"math/big"
)

// Price move bounds, in percent of the old sqrt price. Larger moves cross too
// many ticks for the swap proof to finish in reasonable time.
const (
	MaxPriceMovePercent = 105
	MinPriceMovePercent = 95
)

// DefaultSqrtPrice is the 1:1 sqrt price.
func DefaultSqrtPrice() *big.Int { return new(big.Int).Set(Q128) }

// SpotAmountOut converts amountIn at the current spot price without tick traversal.
// For zeroForOne the price of token0 in token1 is (sqrtPrice/Q128)^2.
func SpotAmountOut(amountIn, sqrtPrice *big.Int, zeroForOne bool) *big.Int {
	sp := sqrtPrice
	if sp == nil || sp.Sign() <= 0 {
		sp = Q128
	}
	priceNum := new(big.Int).Mul(sp, sp)
	priceDen := new(big.Int).Mul(Q128, Q128)
	out := new(big.Int).Set(amountIn)
	if zeroForOne {
		out.Mul(out, priceNum)
		return out.Quo(out, priceDen)
	}
	out.Mul(out, priceDen)
	return out.Quo(out, priceNum)
}

// NormalizePrices applies the defaults for missing prices: a zero old price
// means 1:1 and a zero new price means no move.
func NormalizePrices(oldSqrt, newSqrt *big.Int) (*big.Int, *big.Int) {
	o := oldSqrt
	if o == nil || o.Sign() == 0 {
		o = DefaultSqrtPrice()
	}
	n := newSqrt
	if n == nil || n.Sign() == 0 {
		n = o
	}
	return o, n
}

// PriceMoveError is returned by CheckPriceMove.
type PriceMoveError struct {
	Old, New *big.Int
	Percent  float64
}

func (e *PriceMoveError) Error() string {
	return fmt.Sprintf("price change too large (%.2f%%): sqrt price %s -> %s; use a tighter price limit or split the swap",
		e.Percent, e.Old, e.New)
}

// CheckPriceMove rejects a swap whose new sqrt price is outside [95%, 105%] of the old one.
func CheckPriceMove(oldSqrt, newSqrt *big.Int) error {
	o, n := NormalizePrices(oldSqrt, newSqrt)
	scaledNew := new(big.Int).Mul(n, big.NewInt(100))
	upper := new(big.Int).Mul(o, big.NewInt(MaxPriceMovePercent))
	lower := new(big.Int).Mul(o, big.NewInt(MinPriceMovePercent))
	if scaledNew.Cmp(upper) > 0 || scaledNew.Cmp(lower) < 0 {
		ratio, _ := new(big.Rat).SetFrac(n, o).Float64()
		return &PriceMoveError{Old: o, New: n, Percent: (ratio - 1) * 100}
	}
	return nil
}

// TickAtSqrtPrice returns floor(log_1.0001(price)) for a Q128 sqrt price.
// The result is an estimate used as a public hint; the circuit recomputes it.
func TickAtSqrtPrice(sqrtPrice *big.Int) int32 {
	sp := sqrtPrice
	if sp == nil || sp.Sign() <= 0 {
		return 0
	}
	ratio, _ := new(big.Rat).SetFrac(sp, Q128).Float64()
	if ratio <= 0 {
		return math.MinInt32
	}
	tick := math.Floor(2 * math.Log(ratio) / math.Log(1.0001))
	switch {
	case tick > math.MaxInt32:
		return math.MaxInt32
	case tick < math.MinInt32:
		return math.MinInt32
	}
	return int32(tick)
}
