package transactions

import (
	"errors"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/txerr"
)

func ints(n int, start int64) []*big.Int {
	out := make([]*big.Int, n)
	for i := range out {
		out[i] = big.NewInt(start + int64(i))
	}
	return out
}

func TestFormatProof(t *testing.T) {
	blob := &collab.ProofBlob{Proof: ints(8, 1), PublicInputs: ints(9, 100)}
	blob.PublicInputs[2] = new(big.Int).Add(felt.Prime, big.NewInt(4))

	f, err := FormatProof(collab.ProofSwap, blob, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, int64(4), f.PublicInputs[2].Int64(), "reduced modulo prime")

	cd := f.Calldata()
	require.Len(t, cd, 1+8+1+9)
	assert.Equal(t, int64(8), cd[0].Int64())
	assert.Equal(t, int64(9), cd[9].Int64())
}

func TestFormatProofRejectsLayoutDrift(t *testing.T) {
	cases := map[string]*collab.ProofBlob{
		"short proof":        {Proof: ints(7, 1), PublicInputs: ints(9, 1)},
		"long proof":         {Proof: ints(9, 1), PublicInputs: ints(9, 1)},
		"wrong public count": {Proof: ints(8, 1), PublicInputs: ints(4, 1)},
		"proof out of field": {Proof: append(ints(7, 1), felt.Prime), PublicInputs: ints(9, 1)},
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FormatProof(collab.ProofSwap, blob, zerolog.Nop())
			var fe *txerr.ProofFormatError
			assert.True(t, errors.As(err, &fe), "got %v", err)
		})
	}
}

func TestPublicInputCount(t *testing.T) {
	n, err := PublicInputCount(collab.ProofWithdraw)
	require.NoError(t, err)
	assert.Equal(t, WithdrawPublicInputs, n)
	_, err = PublicInputCount("teleport")
	assert.Error(t, err)
}

func TestMerkleWitness(t *testing.T) {
	el, idx := MerkleWitness(&collab.MembershipProof{
		Path:        []*big.Int{big.NewInt(5), big.NewInt(6)},
		PathIndices: []uint8{1, 0},
	})
	assert.Equal(t, []string{"5", "6"}, el)
	assert.Equal(t, []string{"1", "0"}, idx)
}
