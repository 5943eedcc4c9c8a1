package notes

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommit(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		s, n, a := big.NewInt(11), big.NewInt(22), big.NewInt(1000)
		assert.Equal(t, 0, Commit(s, n, a).Cmp(Commit(s, n, a)))
	})

	t.Run("masked to 250 bits", func(t *testing.T) {
		for i := 0; i < 16; i++ {
			note, err := NewNote(big.NewInt(int64(i+1)), "0x1")
			require.NoError(t, err)
			assert.LessOrEqual(t, note.Commitment.BitLen(), MaskBits)
		}
	})

	t.Run("amount binds", func(t *testing.T) {
		s, n := big.NewInt(5), big.NewInt(6)
		assert.NotEqual(t, 0, Commit(s, n, big.NewInt(1)).Cmp(Commit(s, n, big.NewInt(2))))
	})

	t.Run("legacy scheme differs", func(t *testing.T) {
		s, n, a := big.NewInt(5), big.NewInt(6), big.NewInt(7)
		assert.NotEqual(t, 0, Commit(s, n, a).Cmp(CommitLegacy(s, n, a)))
		assert.Equal(t, 0, CommitLegacy(s, n, a).Cmp(CommitLegacy(s, n, a)))
	})

	t.Run("out of field inputs are reduced", func(t *testing.T) {
		big1 := new(big.Int).Add(FieldModulus, big.NewInt(3))
		assert.Equal(t, 0, Commit(big1, big.NewInt(1), big.NewInt(1)).Cmp(Commit(big.NewInt(3), big.NewInt(1), big.NewInt(1))))
	})
}

func TestNewNote(t *testing.T) {
	note, err := NewNote(big.NewInt(1000), "0xabc")
	require.NoError(t, err)

	assert.Nil(t, note.TreeIndex)
	assert.Equal(t, "0xabc", note.AssetID)
	assert.LessOrEqual(t, note.Secret.BitLen(), SecretBits)
	assert.LessOrEqual(t, note.Nullifier.BitLen(), SecretBits)
	assert.Equal(t, 0, note.Commitment.Cmp(note.Recompute()))

	other, err := NewNote(big.NewInt(1000), "0xabc")
	require.NoError(t, err)
	assert.NotEqual(t, 0, note.Commitment.Cmp(other.Commitment), "fresh notes must not collide")

	_, err = NewNote(new(big.Int).Lsh(big.NewInt(1), 128), "0xabc")
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = NewNote(big.NewInt(-1), "0xabc")
	assert.ErrorIs(t, err, ErrNegative)
}

func TestNoteJSONKeepsPrecision(t *testing.T) {
	note, err := NewNote(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)), "0x1")
	require.NoError(t, err)
	note.WithTreeIndex(42)

	data, err := json.Marshal(note)
	require.NoError(t, err)

	var back Note
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 0, back.Amount.Cmp(note.Amount))
	assert.Equal(t, 0, back.Secret.Cmp(note.Secret))
	assert.Equal(t, 0, back.Commitment.Cmp(note.Commitment))
	require.NotNil(t, back.TreeIndex)
	assert.Equal(t, uint64(42), *back.TreeIndex)
}

func TestConversions(t *testing.T) {
	_, err := Uint64(new(big.Int).Lsh(big.NewInt(1), 64))
	assert.ErrorIs(t, err, ErrOverflow)

	v, err := Uint64(big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)

	_, err = ToU256(new(big.Int).Lsh(big.NewInt(1), 256))
	assert.ErrorIs(t, err, ErrOverflow)

	amt, err := ParseAmount("340282366920938463463374607431768211455")
	require.NoError(t, err)
	assert.Equal(t, 128, amt.BitLen())

	_, err = ParseAmount("abc")
	assert.Error(t, err)

	h, err := ParseHexOrDecimal("0xff")
	require.NoError(t, err)
	assert.Equal(t, int64(255), h.Int64())
	assert.Equal(t, "0xff", Hex(h))
}
