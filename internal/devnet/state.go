package devnet

import (
	"math/big"

	"shieldedamm/internal/fixedpoint"
)

type position struct {
	liquidity *big.Int
	fees      *big.Int
}

type positionKey struct {
	lower, upper int32
}

// poolState is the mutable contract state. Transactions run against a copy
// that replaces the live state only when every call succeeds.
type poolState struct {
	initialized bool
	token0      *big.Int
	token1      *big.Int
	fee         uint32
	tickSpacing int32
	sqrtPrice   *big.Int

	nullifiers map[string]bool
	balances   map[string]*big.Int // token/owner
	allowances map[string]*big.Int // token/owner/spender
	positions  map[positionKey]*position
}

func newPoolState() *poolState {
	return &poolState{
		sqrtPrice:  fixedpoint.DefaultSqrtPrice(),
		nullifiers: make(map[string]bool),
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]*big.Int),
		positions:  make(map[positionKey]*position),
	}
}

func (s *poolState) clone() *poolState {
	c := *s
	c.sqrtPrice = new(big.Int).Set(s.sqrtPrice)
	c.nullifiers = make(map[string]bool, len(s.nullifiers))
	for k, v := range s.nullifiers {
		c.nullifiers[k] = v
	}
	c.balances = cloneAmounts(s.balances)
	c.allowances = cloneAmounts(s.allowances)
	c.positions = make(map[positionKey]*position, len(s.positions))
	for k, v := range s.positions {
		c.positions[k] = &position{liquidity: new(big.Int).Set(v.liquidity), fees: new(big.Int).Set(v.fees)}
	}
	return &c
}

func cloneAmounts(m map[string]*big.Int) map[string]*big.Int {
	out := make(map[string]*big.Int, len(m))
	for k, v := range m {
		out[k] = new(big.Int).Set(v)
	}
	return out
}

func balanceKey(token, owner *big.Int) string {
	return token.Text(16) + "/" + owner.Text(16)
}

func allowanceKey(token, owner, spender *big.Int) string {
	return token.Text(16) + "/" + owner.Text(16) + "/" + spender.Text(16)
}

func (s *poolState) balance(token, owner *big.Int) *big.Int {
	if v, ok := s.balances[balanceKey(token, owner)]; ok {
		return v
	}
	return new(big.Int)
}

func (s *poolState) allowance(token, owner, spender *big.Int) *big.Int {
	if v, ok := s.allowances[allowanceKey(token, owner, spender)]; ok {
		return v
	}
	return new(big.Int)
}

func (s *poolState) transfer(token, from, to, amount *big.Int) bool {
	fb := s.balance(token, from)
	if fb.Cmp(amount) < 0 {
		return false
	}
	s.balances[balanceKey(token, from)] = new(big.Int).Sub(fb, amount)
	s.balances[balanceKey(token, to)] = new(big.Int).Add(s.balance(token, to), amount)
	return true
}

// accrueFees credits the swap fee to every open position pro rata to its liquidity.
func (s *poolState) accrueFees(amountIn *big.Int) {
	fee := new(big.Int).Mul(amountIn, big.NewInt(int64(s.fee)))
	fee.Quo(fee, big.NewInt(1_000_000))
	if fee.Sign() == 0 {
		return
	}
	total := new(big.Int)
	for _, p := range s.positions {
		total.Add(total, p.liquidity)
	}
	if total.Sign() == 0 {
		return
	}
	for _, p := range s.positions {
		share := new(big.Int).Mul(fee, p.liquidity)
		p.fees.Add(p.fees, share.Quo(share, total))
	}
}
