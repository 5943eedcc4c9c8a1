package deposit

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/felt"
)

func TestCalls(t *testing.T) {
	pool, token := big.NewInt(0xaa), big.NewInt(0xbb)
	calls, err := Calls(pool, token, big.NewInt(1000), big.NewInt(0x2a))
	require.NoError(t, err)
	require.Len(t, calls, 2)

	assert.Equal(t, chain.EntryApprove, calls[0].EntryPoint)
	assert.Equal(t, 0, calls[0].Contract.Cmp(token))
	assert.Equal(t, []string{"0xaa", "0x3e8", "0x0"}, felt.HexAll(calls[0].Calldata))

	assert.Equal(t, chain.EntryPrivateDeposit, calls[1].EntryPoint)
	assert.Equal(t, []string{"0xbb", "0x3e8", "0x0", "0x2a"}, felt.HexAll(calls[1].Calldata))
}

func TestCallsRejectOverflow(t *testing.T) {
	_, err := Calls(big.NewInt(1), big.NewInt(2), new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	assert.Error(t, err)
	_, err = Calls(big.NewInt(1), big.NewInt(2), big.NewInt(1), felt.Prime)
	assert.Error(t, err)
}
