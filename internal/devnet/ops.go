package devnet

import (
	"errors"
	"fmt"
	"math/big"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/fixedpoint"
	"shieldedamm/internal/transactions"
)

// proofCall is [len, proof..., len, public..., args...].
type proofCall struct {
	proof  []*big.Int
	public []*big.Int
	args   []*big.Int
}

func parseProofCall(cd []*big.Int) (*proofCall, error) {
	proof, rest, err := takeArray(cd)
	if err != nil {
		return nil, fmt.Errorf("proof: %w", err)
	}
	public, rest, err := takeArray(rest)
	if err != nil {
		return nil, fmt.Errorf("public inputs: %w", err)
	}
	if len(proof) != transactions.ProofPrefixLen {
		return nil, fmt.Errorf("invalid proof length %d", len(proof))
	}
	return &proofCall{proof: proof, public: public, args: rest}, nil
}

func takeArray(cd []*big.Int) ([]*big.Int, []*big.Int, error) {
	if len(cd) == 0 || !cd[0].IsUint64() {
		return nil, nil, errors.New("missing array length")
	}
	n := cd[0].Uint64()
	if uint64(len(cd)-1) < n {
		return nil, nil, fmt.Errorf("array length %d exceeds calldata", n)
	}
	return cd[1 : 1+n], cd[1+n:], nil
}

func (pc *proofCall) want(nPublic, nArgs int) error {
	if len(pc.public) != nPublic {
		return fmt.Errorf("invalid public input count %d", len(pc.public))
	}
	if len(pc.args) != nArgs {
		return fmt.Errorf("invalid argument count %d", len(pc.args))
	}
	return nil
}

// spend runs the checks shared by every proof-carrying call: the proof
// verifies, the root is known and the nullifier is fresh.
func (c *Chain) spend(tx *execution, kind collab.ProofKind, pc *proofCall) error {
	if err := c.prover.Verify(kind, pc.proof, pc.public); err != nil {
		return err
	}
	nullifier, root := pc.public[0], pc.public[1]
	if !c.roots[root.String()] {
		return fmt.Errorf("unknown root %s", felt.Hex(root))
	}
	if tx.state.nullifiers[nullifier.String()] {
		return errors.New("nullifier already spent")
	}
	tx.state.nullifiers[nullifier.String()] = true
	return nil
}

func same(a, b *big.Int) bool { return a.Cmp(b) == 0 }

func (c *Chain) approve(tx *execution, call collab.Call) error {
	if len(call.Calldata) != 3 {
		return errors.New("approve: expected [spender, low, high]")
	}
	amount := felt.JoinU256(call.Calldata[1], call.Calldata[2])
	tx.state.allowances[allowanceKey(call.Contract, c.account, call.Calldata[0])] = amount
	return nil
}

func (c *Chain) initialize(tx *execution, cd []*big.Int) error {
	s := tx.state
	if s.initialized {
		return errors.New("pool already initialized")
	}
	if len(cd) != 6 {
		return errors.New("initialize: expected 6 arguments")
	}
	spacing, err := felt.ToInt32(cd[3])
	if err != nil {
		return err
	}
	if spacing <= 0 {
		return fmt.Errorf("invalid tick spacing %d", spacing)
	}
	if !cd[2].IsUint64() || cd[2].Uint64() > 1_000_000 {
		return fmt.Errorf("invalid fee %s", cd[2])
	}
	s.token0, s.token1 = cd[0], cd[1]
	s.fee = uint32(cd[2].Uint64())
	s.tickSpacing = spacing
	s.sqrtPrice = felt.JoinU256(cd[4], cd[5])
	s.initialized = true
	return nil
}

func (c *Chain) isPoolToken(s *poolState, token *big.Int) bool {
	return (s.token0 != nil && same(token, s.token0)) || (s.token1 != nil && same(token, s.token1))
}

func (c *Chain) deposit(tx *execution, cd []*big.Int) error {
	s := tx.state
	if !s.initialized {
		return errors.New("pool not initialized")
	}
	if len(cd) != 4 {
		return errors.New("private_deposit: expected 4 arguments")
	}
	token, amount, commitment := cd[0], felt.JoinU256(cd[1], cd[2]), cd[3]
	if !c.isPoolToken(s, token) {
		return fmt.Errorf("token %s is not a pool token", felt.Hex(token))
	}
	if amount.Sign() <= 0 {
		return errors.New("deposit amount must be positive")
	}
	allowance := s.allowance(token, c.account, c.pool)
	if allowance.Cmp(amount) < 0 {
		return errors.New("insufficient allowance")
	}
	if !s.transfer(token, c.account, c.pool, amount) {
		return errors.New("insufficient balance")
	}
	s.allowances[allowanceKey(token, c.account, c.pool)] = new(big.Int).Sub(allowance, amount)
	tx.appends = append(tx.appends, commitment)
	return nil
}

// public: nullifier, root, new_commitment, amount_specified, zero_for_one,
// amount0_delta, amount1_delta, new_sqrt_price_x128, new_tick
// args: zero_for_one, amount_specified, limit.low, limit.high, new_commitment
func (c *Chain) swap(tx *execution, pc *proofCall) error {
	if err := pc.want(transactions.SwapPublicInputs, 5); err != nil {
		return err
	}
	pub, args := pc.public, pc.args
	if !same(pub[4], args[0]) || !same(pub[3], args[1]) || !same(pub[2], args[4]) {
		return errors.New("calldata does not match public inputs")
	}
	if err := c.spend(tx, collab.ProofSwap, pc); err != nil {
		return err
	}

	s := tx.state
	zeroForOne := pub[4].Sign() != 0
	newPrice := pub[7]
	limit := felt.JoinU256(args[2], args[3])
	if zeroForOne && newPrice.Cmp(limit) < 0 || !zeroForOne && newPrice.Cmp(limit) > 0 {
		return errors.New("price limit exceeded")
	}
	if err := fixedpoint.CheckPriceMove(s.sqrtPrice, newPrice); err != nil {
		return fmt.Errorf("price move rejected: %w", err)
	}
	if moved := newPrice.Cmp(s.sqrtPrice); moved == 0 || (moved < 0) != zeroForOne {
		return errors.New("price moves against the swap direction")
	}

	s.sqrtPrice = new(big.Int).Set(newPrice)
	s.accrueFees(pub[3])
	tx.appends = append(tx.appends, pub[2])
	return nil
}

// public: nullifier, root, recipient, amount, change_commitment
// args: token, recipient, amount, change_commitment
func (c *Chain) withdraw(tx *execution, pc *proofCall) error {
	if err := pc.want(transactions.WithdrawPublicInputs, 4); err != nil {
		return err
	}
	pub, args := pc.public, pc.args
	if !same(pub[2], args[1]) || !same(pub[3], args[2]) || !same(pub[4], args[3]) {
		return errors.New("calldata does not match public inputs")
	}
	s := tx.state
	if !c.isPoolToken(s, args[0]) {
		return fmt.Errorf("token %s is not a pool token", felt.Hex(args[0]))
	}
	if err := c.spend(tx, collab.ProofWithdraw, pc); err != nil {
		return err
	}
	if !s.transfer(args[0], c.pool, args[1], args[2]) {
		return errors.New("insufficient balance in pool")
	}
	if args[3].Sign() != 0 {
		tx.appends = append(tx.appends, args[3])
	}
	return nil
}

// public: nullifier, root, tick_lower, tick_upper, liquidity, new_commitment
// args: tick_lower, tick_upper, liquidity, new_commitment
func (c *Chain) position(tx *execution, kind collab.ProofKind, pc *proofCall) error {
	if err := pc.want(transactions.MintPublicInputs, 4); err != nil {
		return err
	}
	pub, args := pc.public, pc.args
	for i := 0; i < 4; i++ {
		if !same(pub[2+i], args[i]) {
			return errors.New("calldata does not match public inputs")
		}
	}
	key, err := ticks(args[0], args[1])
	if err != nil {
		return err
	}
	s := tx.state
	if key.lower >= key.upper || key.lower%s.tickSpacing != 0 || key.upper%s.tickSpacing != 0 {
		return fmt.Errorf("invalid tick range [%d, %d]", key.lower, key.upper)
	}
	if err := c.spend(tx, kind, pc); err != nil {
		return err
	}

	p, ok := s.positions[key]
	liq := args[2]
	if kind == collab.ProofMint {
		if !ok {
			p = &position{liquidity: new(big.Int), fees: new(big.Int)}
			s.positions[key] = p
		}
		p.liquidity.Add(p.liquidity, liq)
	} else {
		if !ok || p.liquidity.Cmp(liq) < 0 {
			return errors.New("insufficient position liquidity")
		}
		p.liquidity.Sub(p.liquidity, liq)
	}
	tx.appends = append(tx.appends, args[3])
	return nil
}

// public: nullifier, root, tick_lower, tick_upper, new_commitment
// args: tick_lower, tick_upper, new_commitment
func (c *Chain) collect(tx *execution, pc *proofCall) error {
	if err := pc.want(transactions.CollectPublicInputs, 3); err != nil {
		return err
	}
	pub, args := pc.public, pc.args
	for i := 0; i < 3; i++ {
		if !same(pub[2+i], args[i]) {
			return errors.New("calldata does not match public inputs")
		}
	}
	key, err := ticks(args[0], args[1])
	if err != nil {
		return err
	}
	p, ok := tx.state.positions[key]
	if !ok {
		return fmt.Errorf("no position at [%d, %d]", key.lower, key.upper)
	}
	if err := c.spend(tx, collab.ProofCollect, pc); err != nil {
		return err
	}
	p.fees = new(big.Int)
	tx.appends = append(tx.appends, args[2])
	return nil
}
