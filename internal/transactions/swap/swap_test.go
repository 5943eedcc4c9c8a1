package swap

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/fixedpoint"
	"shieldedamm/internal/notes"
	"shieldedamm/internal/transactions"
)

func q128() *big.Int { return new(big.Int).Set(fixedpoint.Q128) }

func newParams(t *testing.T) *Params {
	t.Helper()
	adj, newPrice, err := Quote(big.NewInt(1000), q128(), nil, true)
	require.NoError(t, err)

	in, err := notes.NewNote(big.NewInt(1000), "token0")
	require.NoError(t, err)
	out, err := notes.NewNote(adj.AmountOut, "token1")
	require.NoError(t, err)

	return &Params{
		Input:  in,
		Output: out,
		Membership: &collab.MembershipProof{
			Root:        big.NewInt(77),
			Leaf:        in.Commitment,
			Path:        []*big.Int{big.NewInt(1), big.NewInt(2)},
			PathIndices: []uint8{0, 1},
		},
		ZeroForOne:      true,
		AmountSpecified: big.NewInt(1000),
		SqrtPriceOld:    q128(),
		NewSqrtPrice:    newPrice,
		Adjustment:      adj,
	}
}

func TestQuoteZeroMoveAtUnitPrice(t *testing.T) {
	adj, newPrice, err := Quote(big.NewInt(1000), q128(), nil, true)
	require.NoError(t, err)

	assert.True(t, adj.Perturbed)
	assert.Equal(t, new(big.Int).Lsh(big.NewInt(1), 115), adj.PriceDiff)
	assert.Equal(t, big.NewInt(8_192_000), adj.Liquidity)
	assert.Equal(t, big.NewInt(1000), adj.AmountOut)
	assert.Equal(t, new(big.Int).Sub(q128(), adj.PriceDiff), newPrice)

	_, upPrice, err := Quote(big.NewInt(1000), q128(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Add(q128(), adj.PriceDiff), upPrice)
}

func TestQuoteRejects(t *testing.T) {
	t.Run("move too large", func(t *testing.T) {
		tooLow := new(big.Int).Quo(new(big.Int).Mul(q128(), big.NewInt(90)), big.NewInt(100))
		_, _, err := Quote(big.NewInt(1000), q128(), tooLow, true)
		var pm *fixedpoint.PriceMoveError
		assert.ErrorAs(t, err, &pm)
	})
	t.Run("wrong direction", func(t *testing.T) {
		up := new(big.Int).Add(q128(), big.NewInt(1<<40))
		_, _, err := Quote(big.NewInt(1000), q128(), up, true)
		assert.Error(t, err)
	})
	t.Run("dust", func(t *testing.T) {
		_, _, err := Quote(big.NewInt(0), q128(), nil, true)
		var ae *fixedpoint.ArithmeticError
		assert.ErrorAs(t, err, &ae)
	})
}

func TestDefaultPriceLimit(t *testing.T) {
	down := DefaultPriceLimit(q128(), true)
	up := DefaultPriceLimit(nil, false)
	assert.Equal(t, new(big.Int).Quo(new(big.Int).Mul(q128(), big.NewInt(95)), big.NewInt(100)), down)
	assert.Equal(t, new(big.Int).Quo(new(big.Int).Mul(q128(), big.NewInt(105)), big.NewInt(100)), up)
}

func TestProofRequest(t *testing.T) {
	p := newParams(t)
	req, err := ProofRequest(p)
	require.NoError(t, err)

	assert.Equal(t, collab.ProofSwap, req.Kind)
	assert.Len(t, req.Public, transactions.SwapPublicInputs)
	assert.Equal(t, "1", req.Public["zero_for_one"])
	assert.Equal(t, "1000", req.Public["amount0_delta"])
	assert.Equal(t, "1000", req.Public["amount1_delta"])
	assert.Equal(t, p.Output.Commitment.String(), req.Public["new_commitment"])
	assert.Equal(t, "8192000", req.Private["liquidity"])
	assert.Equal(t, []string{"0", "1"}, req.Private["pathIndices"])

	tick, err := felt.ToInt32(felt.MustParse(req.Public["new_tick"].(string)))
	require.NoError(t, err)
	assert.LessOrEqual(t, tick, int32(0))
}

func TestProofRequestRejectsUnadjustedOutput(t *testing.T) {
	p := newParams(t)
	p.Output.Amount = big.NewInt(999)
	_, err := ProofRequest(p)
	assert.Error(t, err)
}

func TestCall(t *testing.T) {
	p := newParams(t)
	proof := &transactions.FormattedProof{
		Proof:        make([]*big.Int, transactions.ProofPrefixLen),
		PublicInputs: make([]*big.Int, transactions.SwapPublicInputs),
	}
	for i := range proof.Proof {
		proof.Proof[i] = big.NewInt(int64(i + 1))
	}
	for i := range proof.PublicInputs {
		proof.PublicInputs[i] = big.NewInt(int64(100 + i))
	}

	call, err := Call(big.NewInt(0xabc), proof, p)
	require.NoError(t, err)
	assert.Equal(t, chain.EntryPrivateSwap, call.EntryPoint)

	cd := call.Calldata
	require.Len(t, cd, 1+8+1+9+5)
	assert.Equal(t, int64(8), cd[0].Int64())
	assert.Equal(t, int64(9), cd[9].Int64())
	tail := cd[19:]
	assert.Equal(t, int64(1), tail[0].Int64())
	assert.Equal(t, int64(1000), tail[1].Int64())
	assert.Equal(t, DefaultPriceLimit(q128(), true), tail[2])
	assert.Equal(t, int64(0), tail[3].Int64())
	assert.Equal(t, p.Output.Commitment, tail[4])
}

func TestCircuitSolved(t *testing.T) {
	p := newParams(t)
	req, err := ProofRequest(p)
	require.NoError(t, err)
	w, err := BuildWitness(req)
	require.NoError(t, err)
	assert.NoError(t, test.IsSolved(&CircuitSwap{}, w, ecc.BN254.ScalarField()))

	t.Run("inexact amount fails", func(t *testing.T) {
		bad := *w
		bad.AmountOut = 1001
		bad.Amount1Delta = 1001
		assert.Error(t, test.IsSolved(&CircuitSwap{}, &bad, ecc.BN254.ScalarField()))
	})
	t.Run("wrong direction fails", func(t *testing.T) {
		bad := *w
		bad.ZeroForOne = 0
		bad.Amount0Delta, bad.Amount1Delta = w.Amount1Delta, w.Amount0Delta
		assert.Error(t, test.IsSolved(&CircuitSwap{}, &bad, ecc.BN254.ScalarField()))
	})
}
