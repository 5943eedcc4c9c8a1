package withdraw

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/collab"
	"shieldedamm/internal/notes"
	"shieldedamm/internal/transactions"
)

func params(t *testing.T, noteAmount, amount int64) *Params {
	t.Helper()
	in, err := notes.NewNote(big.NewInt(noteAmount), "token0")
	require.NoError(t, err)
	p := &Params{
		Input:      in,
		Membership: &collab.MembershipProof{Root: big.NewInt(5), Leaf: in.Commitment},
		Token:      big.NewInt(0x70),
		Recipient:  big.NewInt(0x1234),
		Amount:     big.NewInt(amount),
	}
	if noteAmount > amount {
		p.Change, err = notes.NewNote(big.NewInt(noteAmount-amount), "token0")
		require.NoError(t, err)
	}
	return p
}

func TestChangeAmount(t *testing.T) {
	c, err := ChangeAmount(big.NewInt(1000), big.NewInt(300))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(700), c)

	_, err = ChangeAmount(big.NewInt(1000), big.NewInt(1001))
	assert.Error(t, err)
	_, err = ChangeAmount(big.NewInt(1000), big.NewInt(0))
	assert.Error(t, err)
}

func TestProofRequestFull(t *testing.T) {
	p := params(t, 1000, 1000)
	req, err := ProofRequest(p)
	require.NoError(t, err)
	assert.Equal(t, collab.ProofWithdraw, req.Kind)
	assert.Len(t, req.Public, transactions.WithdrawPublicInputs)
	assert.Equal(t, "0", req.Public["change_commitment"])
	assert.Equal(t, "4660", req.Public["recipient"])
}

func TestProofRequestPartial(t *testing.T) {
	p := params(t, 1000, 400)
	req, err := ProofRequest(p)
	require.NoError(t, err)
	assert.Equal(t, p.Change.Commitment.String(), req.Public["change_commitment"])
	assert.Equal(t, "600", req.Private["change_amount"])
}

func TestProofRequestRejects(t *testing.T) {
	t.Run("missing change", func(t *testing.T) {
		p := params(t, 1000, 400)
		p.Change = nil
		_, err := ProofRequest(p)
		assert.Error(t, err)
	})
	t.Run("wrong change", func(t *testing.T) {
		p := params(t, 1000, 400)
		p.Change.Amount = big.NewInt(599)
		_, err := ProofRequest(p)
		assert.Error(t, err)
	})
	t.Run("bad recipient", func(t *testing.T) {
		p := params(t, 1000, 1000)
		p.Recipient = new(big.Int).Lsh(big.NewInt(1), 252)
		_, err := ProofRequest(p)
		assert.Error(t, err)
	})
}

func TestCall(t *testing.T) {
	p := params(t, 1000, 400)
	proof := &transactions.FormattedProof{
		Proof:        make([]*big.Int, transactions.ProofPrefixLen),
		PublicInputs: make([]*big.Int, transactions.WithdrawPublicInputs),
	}
	for i := range proof.Proof {
		proof.Proof[i] = big.NewInt(1)
	}
	for i := range proof.PublicInputs {
		proof.PublicInputs[i] = big.NewInt(2)
	}
	call, err := Call(big.NewInt(9), proof, p)
	require.NoError(t, err)
	assert.Equal(t, chain.EntryPrivateWithdraw, call.EntryPoint)
	require.Len(t, call.Calldata, 1+8+1+5+4)
	tail := call.Calldata[15:]
	assert.Equal(t, []*big.Int{p.Token, p.Recipient, p.Amount, p.Change.Commitment}, tail)
}

func TestCircuit(t *testing.T) {
	for _, tc := range []struct {
		name       string
		noteAmount int64
		amount     int64
	}{
		{"full", 1000, 1000},
		{"partial", 1000, 250},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req, err := ProofRequest(params(t, tc.noteAmount, tc.amount))
			require.NoError(t, err)
			w, err := BuildWitness(req)
			require.NoError(t, err)
			assert.NoError(t, test.IsSolved(&CircuitWithdraw{}, w, ecc.BN254.ScalarField()))
		})
	}

	t.Run("value created", func(t *testing.T) {
		req, err := ProofRequest(params(t, 1000, 250))
		require.NoError(t, err)
		w, err := BuildWitness(req)
		require.NoError(t, err)
		w.ChangeAmount = 800
		assert.Error(t, test.IsSolved(&CircuitWithdraw{}, w, ecc.BN254.ScalarField()))
	})
}
