package initialize

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/felt"
)

func TestCallDefaults(t *testing.T) {
	call, err := Call(big.NewInt(0x99), Params{Token0: big.NewInt(1), Token1: big.NewInt(2)})
	require.NoError(t, err)
	assert.Equal(t, chain.EntryInitialize, call.EntryPoint)
	// Q128 splits into low 0, high 1.
	assert.Equal(t, []string{"0x1", "0x2", "0xbb8", "0x3c", "0x0", "0x1"}, felt.HexAll(call.Calldata))
}

func TestCallRejects(t *testing.T) {
	_, err := Call(big.NewInt(1), Params{Token0: big.NewInt(2), Token1: big.NewInt(2)})
	assert.Error(t, err)
	_, err = Call(big.NewInt(1), Params{Token0: big.NewInt(2)})
	assert.Error(t, err)
	_, err = Call(big.NewInt(1), Params{Token0: big.NewInt(2), Token1: big.NewInt(3), SqrtPrice: new(big.Int).Lsh(big.NewInt(1), 256)})
	assert.Error(t, err)
}
