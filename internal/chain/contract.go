package chain

import (
	"context"
	"fmt"
	"math/big"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
)

// Pool entry points.
const (
	EntryPrivateDeposit       = "private_deposit"
	EntryPrivateSwap          = "private_swap"
	EntryPrivateWithdraw      = "private_withdraw"
	EntryPrivateMintLiquidity = "private_mint_liquidity"
	EntryPrivateBurnLiquidity = "private_burn_liquidity"
	EntryPrivateCollect       = "private_collect"
	EntryInitialize           = "initialize"
	EntryGetMerkleRoot        = "get_merkle_root"
	EntryIsNullifierSpent     = "is_nullifier_spent"
	EntryIsRootKnown          = "is_root_known"
	EntryGetSqrtPrice         = "get_sqrt_price"
	EntryIsInitialized        = "is_initialized"
	EntryGetPosition          = "get_position"

	EntryApprove   = "approve"
	EntryBalanceOf = "balance_of"
	EntryAllowance = "allowance"
)

// DepositEventName is the pool event emitted for every appended commitment.
// Its data is [commitment, leaf_index, root].
const DepositEventName = "Deposit"

// StorageReader is implemented by executors that can read raw storage.
type StorageReader interface {
	StorageAt(ctx context.Context, contract, key *big.Int) (*big.Int, error)
}

func readOne(ctx context.Context, exec collab.ChainExecutor, call collab.Call) (*big.Int, error) {
	out, err := exec.ReadState(ctx, call)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty response from %s", call.EntryPoint)
	}
	return out[0], nil
}

func readU256(ctx context.Context, exec collab.ChainExecutor, call collab.Call) (*big.Int, error) {
	out, err := exec.ReadState(ctx, call)
	if err != nil {
		return nil, err
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("invalid response from %s (expected u256)", call.EntryPoint)
	}
	return felt.JoinU256(out[0], out[1]), nil
}

// MerkleRoot reads the current commitment tree root.
func MerkleRoot(ctx context.Context, exec collab.ChainExecutor, pool *big.Int) (*big.Int, error) {
	return readOne(ctx, exec, collab.Call{Contract: pool, EntryPoint: EntryGetMerkleRoot})
}

// IsNullifierSpent reports whether the pool has recorded nullifier.
func IsNullifierSpent(ctx context.Context, exec collab.ChainExecutor, pool, nullifier *big.Int) (bool, error) {
	v, err := readOne(ctx, exec, collab.Call{Contract: pool, EntryPoint: EntryIsNullifierSpent, Calldata: []*big.Int{nullifier}})
	if err != nil {
		return false, err
	}
	return v.Sign() != 0, nil
}

// IsRootKnown reports whether root is in the pool's root history.
func IsRootKnown(ctx context.Context, exec collab.ChainExecutor, pool, root *big.Int) (bool, error) {
	v, err := readOne(ctx, exec, collab.Call{Contract: pool, EntryPoint: EntryIsRootKnown, Calldata: []*big.Int{root}})
	if err != nil {
		return false, err
	}
	return v.Sign() != 0, nil
}

// SqrtPrice reads the pool's current Q128 sqrt price.
func SqrtPrice(ctx context.Context, exec collab.ChainExecutor, pool *big.Int) (*big.Int, error) {
	return readU256(ctx, exec, collab.Call{Contract: pool, EntryPoint: EntryGetSqrtPrice})
}

// BalanceOf reads an ERC20 balance.
func BalanceOf(ctx context.Context, exec collab.ChainExecutor, token, owner *big.Int) (*big.Int, error) {
	return readU256(ctx, exec, collab.Call{Contract: token, EntryPoint: EntryBalanceOf, Calldata: []*big.Int{owner}})
}

// Allowance reads an ERC20 allowance.
func Allowance(ctx context.Context, exec collab.ChainExecutor, token, owner, spender *big.Int) (*big.Int, error) {
	return readU256(ctx, exec, collab.Call{Contract: token, EntryPoint: EntryAllowance, Calldata: []*big.Int{owner, spender}})
}

// IsPoolInitialized reads the `initialized` storage slot when raw storage is
// available and falls back to the is_initialized view otherwise.
func IsPoolInitialized(ctx context.Context, exec collab.ChainExecutor, pool *big.Int) (bool, error) {
	if sr, ok := exec.(StorageReader); ok {
		v, err := sr.StorageAt(ctx, pool, felt.Selector("initialized"))
		if err != nil {
			return false, err
		}
		return v.Sign() != 0, nil
	}
	v, err := readOne(ctx, exec, collab.Call{Contract: pool, EntryPoint: EntryIsInitialized})
	if err != nil {
		return false, err
	}
	return v.Sign() != 0, nil
}

// Position returns the liquidity and uncollected fees of [tickLower, tickUpper].
func Position(ctx context.Context, exec collab.ChainExecutor, pool *big.Int, tickLower, tickUpper int32) (liquidity, fees *big.Int, err error) {
	out, err := exec.ReadState(ctx, collab.Call{
		Contract:   pool,
		EntryPoint: EntryGetPosition,
		Calldata:   []*big.Int{felt.FromInt32(tickLower), felt.FromInt32(tickUpper)},
	})
	if err != nil {
		return nil, nil, err
	}
	if len(out) < 2 {
		return nil, nil, fmt.Errorf("short response from %s: %d values", EntryGetPosition, len(out))
	}
	return out[0], out[1], nil
}

// DepositIndex scans receipt events for a Deposit event whose first data
// element is commitment and returns its leaf index.
func DepositIndex(rec *collab.Receipt, commitment *big.Int) (uint64, bool) {
	selector := felt.Selector(DepositEventName)
	for _, ev := range rec.Events {
		if len(ev.Data) < 2 || ev.Data[0].Cmp(commitment) != 0 {
			continue
		}
		if len(ev.Keys) > 0 && ev.Keys[0].Cmp(selector) != 0 {
			continue
		}
		if !ev.Data[1].IsUint64() {
			continue
		}
		return ev.Data[1].Uint64(), true
	}
	return 0, false
}
