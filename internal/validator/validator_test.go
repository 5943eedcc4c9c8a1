package validator

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldedamm/internal/notes"
	"shieldedamm/internal/txerr"
)

func leafAt(leaves map[uint64]*big.Int) LeafLookup {
	return func(_ context.Context, index uint64) (*big.Int, error) {
		leaf, ok := leaves[index]
		if !ok {
			return nil, errors.New("no such leaf")
		}
		return leaf, nil
	}
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	n, err := notes.NewNote(big.NewInt(1000), "0x1")
	require.NoError(t, err)

	t.Run("not synced", func(t *testing.T) {
		res, err := Validate(ctx, n.Clone(), leafAt(nil))
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, ReasonNotSynced, res.Reason)
		var syncErr *txerr.SyncError
		assert.True(t, errors.As(res.Err(), &syncErr))
	})

	indexed := n.Clone().WithTreeIndex(3)

	t.Run("valid", func(t *testing.T) {
		res, err := Validate(ctx, indexed, leafAt(map[uint64]*big.Int{3: n.Commitment}))
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.NoError(t, res.Err())
	})

	t.Run("legacy scheme", func(t *testing.T) {
		legacy := notes.CommitLegacy(n.Secret, n.Nullifier, n.Amount)
		res, err := Validate(ctx, indexed, leafAt(map[uint64]*big.Int{3: legacy}))
		require.NoError(t, err)
		assert.Equal(t, ReasonLegacyScheme, res.Reason)
		var legacyErr *txerr.LegacyCommitmentError
		assert.True(t, errors.As(res.Err(), &legacyErr))
	})

	t.Run("data mismatch", func(t *testing.T) {
		res, err := Validate(ctx, indexed, leafAt(map[uint64]*big.Int{3: big.NewInt(99)}))
		require.NoError(t, err)
		assert.Equal(t, ReasonDataMismatch, res.Reason)
		assert.Equal(t, int64(99), res.Leaf.Int64())
		assert.Equal(t, 0, res.Calculated.Cmp(n.Commitment))
		var mismatch *txerr.DataMismatchError
		assert.True(t, errors.As(res.Err(), &mismatch))
	})

	t.Run("tampered amount", func(t *testing.T) {
		tampered := indexed.Clone()
		tampered.Amount = big.NewInt(1001)
		res, err := Validate(ctx, tampered, leafAt(map[uint64]*big.Int{3: n.Commitment}))
		require.NoError(t, err)
		assert.Equal(t, ReasonDataMismatch, res.Reason)
	})

	t.Run("lookup failure is an error", func(t *testing.T) {
		_, err := Validate(ctx, indexed, leafAt(nil))
		assert.Error(t, err)
	})
}
