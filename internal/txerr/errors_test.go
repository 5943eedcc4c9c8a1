package txerr

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("swap: %w", &ProofTimeoutError{Op: "swap", Timeout: time.Second, Err: context.DeadlineExceeded})

	var timeout *ProofTimeoutError
	assert.True(t, errors.As(err, &timeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	sync := &SyncError{Commitment: "0x1", Err: ErrNoteNotOnLedger}
	assert.ErrorIs(t, fmt.Errorf("wrap: %w", sync), ErrNoteNotOnLedger)
}

func TestTranslate(t *testing.T) {
	assert.Equal(t, "the note has already been spent", Translate("Nullifier already spent"))
	assert.Equal(t, "insufficient token balance", Translate("0x753235365f737562204f766572666c6f77 ('u256_sub Overflow')"))
	assert.Equal(t, "the contract reverted the transaction", Translate("something odd"))

	rej := NewChainRejection("0xabc", "Invalid proof")
	assert.Contains(t, rej.Error(), "Invalid proof")
	assert.Contains(t, rej.Error(), "rejected by the verifier")
}
