package devnet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
)

// Chain simulates the pool contract and its two ERC20 tokens. It implements
// collab.ChainExecutor and chain.StorageReader.
type Chain struct {
	mu sync.Mutex

	pool    *big.Int
	account *big.Int
	tree    *Tree
	prover  *Prover

	state    *poolState
	roots    map[string]bool
	receipts map[collab.TxRef]*collab.Receipt
	nonce    uint64

	submitErr    error
	lostErr      error
	revertReason string

	log zerolog.Logger
}

// NewChain returns a chain whose account holds no tokens yet.
func NewChain(pool, account *big.Int, tree *Tree, prover *Prover, log zerolog.Logger) *Chain {
	c := &Chain{
		pool:     pool,
		account:  account,
		tree:     tree,
		prover:   prover,
		state:    newPoolState(),
		roots:    map[string]bool{tree.Root().String(): true},
		receipts: make(map[collab.TxRef]*collab.Receipt),
		log:      log,
	}
	return c
}

// Mint credits amount of token to owner.
func (c *Chain) Mint(token, owner, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.balances[balanceKey(token, owner)] = new(big.Int).Add(c.state.balance(token, owner), amount)
}

// FailNextSubmit makes the next Submit return err without executing.
func (c *Chain) FailNextSubmit(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitErr = err
}

// LoseNextResponse makes the next Submit execute the transaction and then
// return err instead of its ref, like a connection dropped after the send.
func (c *Chain) LoseNextResponse(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lostErr = err
}

// RevertNext makes the next transaction revert with reason.
func (c *Chain) RevertNext(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revertReason = reason
}

// Submit implements collab.ChainExecutor. The calls execute atomically.
func (c *Chain) Submit(ctx context.Context, calls ...collab.Call) (collab.TxRef, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", collab.ErrNotSent, err)
	}
	if len(calls) == 0 {
		return "", fmt.Errorf("%w: no calls", collab.ErrNotSent)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.submitErr; err != nil {
		c.submitErr = nil
		return "", fmt.Errorf("%w: %w", collab.ErrNotSent, err)
	}
	ref := c.submitLocked(ctx, calls)
	if err := c.lostErr; err != nil {
		c.lostErr = nil
		c.log.Debug().Str("tx", string(ref)).Msg("dropping submit response")
		return "", err
	}
	return ref, nil
}

func (c *Chain) submitLocked(ctx context.Context, calls []collab.Call) collab.TxRef {
	ref := c.txHash(calls)
	c.nonce++
	rec := &collab.Receipt{Ref: ref, Status: collab.StatusSucceeded}
	c.receipts[ref] = rec

	if reason := c.revertReason; reason != "" {
		c.revertReason = ""
		c.revert(rec, reason)
		return ref
	}

	tx := &execution{state: c.state.clone()}
	for _, call := range calls {
		if err := c.execute(tx, call); err != nil {
			c.revert(rec, err.Error())
			return ref
		}
	}

	if size, _ := c.tree.TreeSize(ctx); size+uint64(len(tx.appends)) > MaxTreeSize {
		c.revert(rec, "commitment tree is full")
		return ref
	}

	c.state = tx.state
	for _, cm := range tx.appends {
		index, root, err := c.tree.Append(cm)
		if err != nil {
			// Capacity was checked above.
			panic(err)
		}
		c.roots[root.String()] = true
		rec.Events = append(rec.Events, collab.Event{
			From: c.pool,
			Keys: []*big.Int{felt.Selector(chain.DepositEventName)},
			Data: []*big.Int{cm, new(big.Int).SetUint64(index), root},
		})
	}
	rec.Events = append(rec.Events, tx.events...)
	c.log.Debug().Str("tx", string(ref)).Int("calls", len(calls)).Int("commitments", len(tx.appends)).Msg("transaction accepted")
	return ref
}

func (c *Chain) revert(rec *collab.Receipt, reason string) {
	rec.Status = collab.StatusReverted
	rec.RevertReason = reason
	c.log.Debug().Str("tx", string(rec.Ref)).Str("reason", reason).Msg("transaction reverted")
}

func (c *Chain) txHash(calls []collab.Call) collab.TxRef {
	data := []byte(fmt.Sprintf("%x:%d", c.account, c.nonce))
	for _, v := range chain.ExecuteCalldata(calls) {
		data = append(data, v.Bytes()...)
	}
	h := new(big.Int).SetBytes(crypto.Keccak256(data))
	h.And(h, mask250)
	return collab.TxRef(felt.Hex(h))
}

var mask250 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))

// AwaitConfirmation implements collab.ChainExecutor. Transactions confirm on submission.
func (c *Chain) AwaitConfirmation(ctx context.Context, ref collab.TxRef) (*collab.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.receipts[ref]
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", ref)
	}
	out := *rec
	return &out, nil
}

// StorageAt implements chain.StorageReader for the pool's initialized slot.
func (c *Chain) StorageAt(_ context.Context, contract, key *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if contract.Cmp(c.pool) == 0 && key.Cmp(felt.Selector("initialized")) == 0 {
		return felt.FromBool(c.state.initialized), nil
	}
	return new(big.Int), nil
}

// ReadState implements collab.ChainExecutor.
func (c *Chain) ReadState(ctx context.Context, call collab.Call) ([]*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	arg := func(i int) (*big.Int, error) {
		if i >= len(call.Calldata) {
			return nil, fmt.Errorf("%s: missing argument %d", call.EntryPoint, i)
		}
		return call.Calldata[i], nil
	}

	if call.Contract.Cmp(c.pool) != 0 {
		switch call.EntryPoint {
		case chain.EntryBalanceOf:
			owner, err := arg(0)
			if err != nil {
				return nil, err
			}
			return u256(s.balance(call.Contract, owner)), nil
		case chain.EntryAllowance:
			if len(call.Calldata) < 2 {
				return nil, fmt.Errorf("%s: missing arguments", call.EntryPoint)
			}
			return u256(s.allowance(call.Contract, call.Calldata[0], call.Calldata[1])), nil
		}
		return nil, fmt.Errorf("unknown token entry point %q", call.EntryPoint)
	}

	switch call.EntryPoint {
	case chain.EntryGetMerkleRoot:
		return []*big.Int{c.tree.Root()}, nil
	case chain.EntryIsNullifierSpent:
		n, err := arg(0)
		if err != nil {
			return nil, err
		}
		return []*big.Int{felt.FromBool(s.nullifiers[n.String()])}, nil
	case chain.EntryIsRootKnown:
		r, err := arg(0)
		if err != nil {
			return nil, err
		}
		return []*big.Int{felt.FromBool(c.roots[r.String()])}, nil
	case chain.EntryGetSqrtPrice:
		return u256(s.sqrtPrice), nil
	case chain.EntryIsInitialized:
		return []*big.Int{felt.FromBool(s.initialized)}, nil
	case chain.EntryGetPosition:
		if len(call.Calldata) < 2 {
			return nil, fmt.Errorf("%s: missing arguments", call.EntryPoint)
		}
		key, err := ticks(call.Calldata[0], call.Calldata[1])
		if err != nil {
			return nil, err
		}
		if p, ok := s.positions[key]; ok {
			return []*big.Int{new(big.Int).Set(p.liquidity), new(big.Int).Set(p.fees)}, nil
		}
		return []*big.Int{new(big.Int), new(big.Int)}, nil
	}
	return nil, fmt.Errorf("unknown pool entry point %q", call.EntryPoint)
}

// SqrtPrice returns the current pool price.
func (c *Chain) SqrtPrice() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.state.sqrtPrice)
}

func u256(v *big.Int) []*big.Int {
	low, high, err := felt.SplitU256(v)
	if err != nil {
		return []*big.Int{new(big.Int), new(big.Int)}
	}
	return []*big.Int{low, high}
}

func ticks(lower, upper *big.Int) (positionKey, error) {
	l, err := felt.ToInt32(lower)
	if err != nil {
		return positionKey{}, err
	}
	u, err := felt.ToInt32(upper)
	if err != nil {
		return positionKey{}, err
	}
	return positionKey{lower: l, upper: u}, nil
}

// execution collects the effects of one transaction before commit.
type execution struct {
	state   *poolState
	appends []*big.Int
	events  []collab.Event
}

func (c *Chain) execute(tx *execution, call collab.Call) error {
	if call.Contract.Cmp(c.pool) != 0 {
		if call.EntryPoint != chain.EntryApprove {
			return fmt.Errorf("unknown token entry point %q", call.EntryPoint)
		}
		return c.approve(tx, call)
	}
	switch call.EntryPoint {
	case chain.EntryInitialize:
		return c.initialize(tx, call.Calldata)
	case chain.EntryPrivateDeposit:
		return c.deposit(tx, call.Calldata)
	}

	if !tx.state.initialized {
		return errors.New("pool not initialized")
	}
	args, err := parseProofCall(call.Calldata)
	if err != nil {
		return err
	}
	switch call.EntryPoint {
	case chain.EntryPrivateSwap:
		return c.swap(tx, args)
	case chain.EntryPrivateWithdraw:
		return c.withdraw(tx, args)
	case chain.EntryPrivateMintLiquidity:
		return c.position(tx, collab.ProofMint, args)
	case chain.EntryPrivateBurnLiquidity:
		return c.position(tx, collab.ProofBurn, args)
	case chain.EntryPrivateCollect:
		return c.collect(tx, args)
	}
	return fmt.Errorf("unknown pool entry point %q", call.EntryPoint)
}
