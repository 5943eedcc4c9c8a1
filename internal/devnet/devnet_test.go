package devnet

import (
	"context"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/collab"
	"shieldedamm/internal/notes"
	"shieldedamm/internal/transactions"
	"shieldedamm/internal/transactions/deposit"
	"shieldedamm/internal/transactions/initialize"
	"shieldedamm/internal/transactions/withdraw"
)

// =============================================================================
// Tree
// =============================================================================

func TestTree(t *testing.T) {
	ctx := context.Background()
	tree := NewTree()
	empty := tree.Root()

	var roots []*big.Int
	for i := int64(1); i <= 5; i++ {
		idx, root, err := tree.Append(big.NewInt(i * 11))
		require.NoError(t, err)
		assert.Equal(t, uint64(i-1), idx)
		roots = append(roots, root)
	}
	assert.NotEqual(t, empty, roots[0])
	assert.Equal(t, roots[4], tree.Root())
	assert.Less(t, tree.Root().BitLen(), notes.MaskBits+1)

	size, err := tree.TreeSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), size)

	t.Run("membership proofs verify", func(t *testing.T) {
		for i := uint64(0); i < 5; i++ {
			mp, err := tree.MembershipProof(ctx, i)
			require.NoError(t, err)
			assert.Len(t, mp.Path, TreeDepth)
			assert.True(t, VerifyMembership(mp), "leaf %d", i)
		}
		mp, err := tree.MembershipProof(ctx, 3)
		require.NoError(t, err)
		mp.Leaf = big.NewInt(12345)
		assert.False(t, VerifyMembership(mp))
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := tree.MembershipProof(ctx, 5)
		assert.Error(t, err)
	})

	t.Run("reverse lookup", func(t *testing.T) {
		idx, found, err := tree.FindIndexByCommitment(ctx, big.NewInt(33))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, uint64(2), idx)
		_, found, err = tree.FindIndexByCommitment(ctx, big.NewInt(34))
		require.NoError(t, err)
		assert.False(t, found)
	})
}

// =============================================================================
// Chain and prover
// =============================================================================

func setup(t *testing.T) *Network {
	t.Helper()
	n := NewNetwork(big.NewInt(1_000_000), zerolog.Nop())
	call, err := initialize.Call(n.Pool, initialize.Params{Token0: n.Token0, Token1: n.Token1})
	require.NoError(t, err)
	rec := submit(t, n, call)
	require.Equal(t, collab.StatusSucceeded, rec.Status, rec.RevertReason)
	return n
}

func submit(t *testing.T, n *Network, calls ...collab.Call) *collab.Receipt {
	t.Helper()
	ctx := context.Background()
	ref, err := n.Chain.Submit(ctx, calls...)
	require.NoError(t, err)
	rec, err := n.Chain.AwaitConfirmation(ctx, ref)
	require.NoError(t, err)
	return rec
}

func depositNote(t *testing.T, n *Network, amount int64) (*notes.Note, uint64) {
	t.Helper()
	note, err := notes.NewNote(big.NewInt(amount), "token0")
	require.NoError(t, err)
	calls, err := deposit.Calls(n.Pool, n.Token0, note.Amount, note.Commitment)
	require.NoError(t, err)
	rec := submit(t, n, calls...)
	require.Equal(t, collab.StatusSucceeded, rec.Status, rec.RevertReason)
	idx, ok := chain.DepositIndex(rec, note.Commitment)
	require.True(t, ok)
	return note, idx
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	n := setup(t)

	ok, err := chain.IsPoolInitialized(ctx, n.Chain, n.Pool)
	require.NoError(t, err)
	assert.True(t, ok)

	call, err := initialize.Call(n.Pool, initialize.Params{Token0: n.Token0, Token1: n.Token1})
	require.NoError(t, err)
	rec := submit(t, n, call)
	assert.Equal(t, collab.StatusReverted, rec.Status)
	assert.Contains(t, rec.RevertReason, "already initialized")
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	n := setup(t)

	note, idx := depositNote(t, n, 1000)
	assert.Equal(t, uint64(0), idx)

	root, err := chain.MerkleRoot(ctx, n.Chain, n.Pool)
	require.NoError(t, err)
	assert.Equal(t, n.Tree.Root(), root)

	known, err := chain.IsRootKnown(ctx, n.Chain, n.Pool, root)
	require.NoError(t, err)
	assert.True(t, known)

	bal, err := chain.BalanceOf(ctx, n.Chain, n.Token0, n.Account)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(999_000), bal)

	found, ok, err := n.Tree.FindIndexByCommitment(ctx, note.Commitment)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, idx, found)

	t.Run("without approval reverts", func(t *testing.T) {
		calls, err := deposit.Calls(n.Pool, n.Token0, big.NewInt(5), big.NewInt(5))
		require.NoError(t, err)
		rec := submit(t, n, calls[1])
		assert.Equal(t, collab.StatusReverted, rec.Status)
		assert.Contains(t, rec.RevertReason, "allowance")
	})
}

func proveWithdraw(t *testing.T, n *Network, note *notes.Note, idx uint64, amount int64) (*withdraw.Params, collab.Call) {
	t.Helper()
	ctx := context.Background()
	mp, err := n.Tree.MembershipProof(ctx, idx)
	require.NoError(t, err)

	p := &withdraw.Params{
		Input:      note,
		Membership: mp,
		Token:      n.Token0,
		Recipient:  big.NewInt(0xbeef),
		Amount:     big.NewInt(amount),
	}
	if change := note.Amount.Int64() - amount; change > 0 {
		p.Change, err = notes.NewNote(big.NewInt(change), note.AssetID)
		require.NoError(t, err)
	}
	req, err := withdraw.ProofRequest(p)
	require.NoError(t, err)
	blob, err := n.Prover.GenerateProof(ctx, req)
	require.NoError(t, err)
	proof, err := transactions.FormatProof(collab.ProofWithdraw, blob, zerolog.Nop())
	require.NoError(t, err)
	call, err := withdraw.Call(n.Pool, proof, p)
	require.NoError(t, err)
	return p, call
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	n := setup(t)
	note, idx := depositNote(t, n, 1000)

	p, call := proveWithdraw(t, n, note, idx, 400)
	rec := submit(t, n, call)
	require.Equal(t, collab.StatusSucceeded, rec.Status, rec.RevertReason)

	bal, err := chain.BalanceOf(ctx, n.Chain, n.Token0, big.NewInt(0xbeef))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(400), bal)

	changeIdx, ok := chain.DepositIndex(rec, p.Change.Commitment)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), changeIdx)

	spent, err := chain.IsNullifierSpent(ctx, n.Chain, n.Pool, note.Nullifier)
	require.NoError(t, err)
	assert.True(t, spent)

	t.Run("double spend reverts", func(t *testing.T) {
		rec := submit(t, n, call)
		assert.Equal(t, collab.StatusReverted, rec.Status)
		assert.Contains(t, rec.RevertReason, "nullifier")
	})
}

func TestForgedProofReverts(t *testing.T) {
	n := setup(t)
	note, idx := depositNote(t, n, 1000)
	_, call := proveWithdraw(t, n, note, idx, 1000)

	// Raise the withdrawn amount in both the public inputs and the arguments.
	cd := call.Calldata
	amountPub := 1 + transactions.ProofPrefixLen + 1 + 3
	cd[amountPub] = big.NewInt(2000)
	cd[len(cd)-2] = big.NewInt(2000)

	rec := submit(t, n, call)
	assert.Equal(t, collab.StatusReverted, rec.Status)
	assert.Contains(t, rec.RevertReason, "invalid proof")
}

func TestPositionState(t *testing.T) {
	ctx := context.Background()
	n := setup(t)
	liq, fees, err := chain.Position(ctx, n.Chain, n.Pool, -60, 60)
	require.NoError(t, err)
	assert.Zero(t, liq.Sign())
	assert.Zero(t, fees.Sign())
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	n := setup(t)

	n.Chain.RevertNext("custom failure")
	call, err := initialize.Call(n.Pool, initialize.Params{Token0: n.Token0, Token1: n.Token1})
	require.NoError(t, err)
	rec := submit(t, n, call)
	assert.Equal(t, collab.StatusReverted, rec.Status)
	assert.Equal(t, "custom failure", rec.RevertReason)

	n.Chain.FailNextSubmit(assert.AnError)
	_, err = n.Chain.Submit(ctx, call)
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorIs(t, err, collab.ErrNotSent)

	note, err := notes.NewNote(big.NewInt(10), "token0")
	require.NoError(t, err)
	calls, err := deposit.Calls(n.Pool, n.Token0, note.Amount, note.Commitment)
	require.NoError(t, err)
	n.Chain.LoseNextResponse(assert.AnError)
	_, err = n.Chain.Submit(ctx, calls...)
	require.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, collab.ErrNotSent)

	idx, found, err := n.Tree.FindIndexByCommitment(ctx, note.Commitment)
	require.NoError(t, err)
	assert.True(t, found, "transaction executed even though the response was lost")
	assert.Equal(t, uint64(0), idx)
}
