package felt

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrime(t *testing.T) {
	assert.Equal(t, "3618502788666131106986593281521497120414687020801267626233049500247285301249", Prime.String())
}

func TestParse(t *testing.T) {
	v, err := Parse("0x10")
	require.NoError(t, err)
	assert.Equal(t, int64(16), v.Int64())

	v, err = Parse("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int64())

	_, err = Parse(Prime.String())
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = Parse("0x")
	assert.Error(t, err)
}

func TestInt32(t *testing.T) {
	cases := []int32{0, 1, 60, -60, -887220, 887220, -1 << 31, 1<<31 - 1}
	for _, c := range cases {
		enc := FromInt32(c)
		require.NoError(t, Check(enc))
		dec, err := ToInt32(enc)
		require.NoError(t, err)
		assert.Equal(t, c, dec)
	}
	assert.Equal(t, 0, FromInt32(-1).Cmp(new(big.Int).Sub(Prime, big.NewInt(1))))
}

func TestSplitU256(t *testing.T) {
	q128 := new(big.Int).Lsh(big.NewInt(1), 128)
	low, high, err := SplitU256(q128)
	require.NoError(t, err)
	assert.Equal(t, int64(0), low.Int64())
	assert.Equal(t, int64(1), high.Int64())
	assert.Equal(t, 0, JoinU256(low, high).Cmp(q128))

	_, _, err = SplitU256(new(big.Int).Lsh(big.NewInt(1), 256))
	assert.Error(t, err)
}

func TestSelector(t *testing.T) {
	// Well-known Starknet selector for "transfer".
	assert.Equal(t, "0x83afd3f4caedc6eebf44246fe54e38c95e3179a5ec9ea81740eca5b482d12e", Hex(Selector("transfer")))
	assert.LessOrEqual(t, Selector("private_swap").BitLen(), 250)
}

func TestReduce(t *testing.T) {
	v, reduced := Reduce(new(big.Int).Add(Prime, big.NewInt(5)))
	assert.True(t, reduced)
	assert.Equal(t, int64(5), v.Int64())

	_, reduced = Reduce(big.NewInt(5))
	assert.False(t, reduced)
}
