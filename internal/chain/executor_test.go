package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/retry"
)

type notFoundError struct{}

func (notFoundError) Error() string  { return "Transaction hash not found" }
func (notFoundError) ErrorCode() int { return errTxNotFound }

// fakeStarknet is served as the "starknet" rpc namespace.
type fakeStarknet struct {
	mu        sync.Mutex
	calls     []FunctionCall
	invokes   []map[string]interface{}
	receiptOK int // number of receipt polls before the receipt appears
	reverted  bool
	invokeErr error
}

func (f *fakeStarknet) Call(req FunctionCall, block string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	switch req.EntryPointSelector {
	case felt.Hex(felt.Selector(EntryIsNullifierSpent)):
		return []string{"0x1"}, nil
	case felt.Hex(felt.Selector(EntryBalanceOf)):
		return []string{"0x5", "0x1"}, nil
	case felt.Hex(felt.Selector(EntryGetMerkleRoot)):
		return []string{"0xabc"}, nil
	}
	return nil, errors.New("entry point not found")
}

func (f *fakeStarknet) GetStorageAt(contract, key, block string) (string, error) {
	if key == felt.Hex(felt.Selector("initialized")) {
		return "0x1", nil
	}
	return "0x0", nil
}

func (f *fakeStarknet) GetNonce(block, account string) (string, error) {
	return "0x7", nil
}

func (f *fakeStarknet) AddInvokeTransaction(tx map[string]interface{}) (InvokeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invokes = append(f.invokes, tx)
	if f.invokeErr != nil {
		return InvokeResult{}, f.invokeErr
	}
	return InvokeResult{TransactionHash: "0xfeed"}, nil
}

func (f *fakeStarknet) GetTransactionReceipt(hash string) (*RPCReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptOK > 0 {
		f.receiptOK--
		return nil, notFoundError{}
	}
	rec := &RPCReceipt{
		TransactionHash: hash,
		ExecutionStatus: "SUCCEEDED",
		FinalityStatus:  "ACCEPTED_ON_L2",
		Events: []RPCEvent{{
			FromAddress: "0x123",
			Keys:        []string{felt.Hex(felt.Selector(DepositEventName))},
			Data:        []string{"0x2a", "0x3", "0x99"},
		}},
	}
	if f.reverted {
		rec.ExecutionStatus = "REVERTED"
		rec.RevertReason = "Nullifier already spent"
	}
	return rec, nil
}

type fakeSigner struct{ nonce *big.Int }

func (s *fakeSigner) SignInvoke(_ context.Context, account, nonce *big.Int, calldata []*big.Int) (map[string]interface{}, error) {
	s.nonce = nonce
	return map[string]interface{}{
		"type":           "INVOKE",
		"sender_address": felt.Hex(account),
		"calldata":       felt.HexAll(calldata),
	}, nil
}

func newExecutor(t *testing.T, svc *fakeStarknet, signer Signer) *Executor {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("starknet", svc))
	t.Cleanup(srv.Stop)
	client := rpc.DialInProc(srv)
	t.Cleanup(client.Close)
	return NewExecutor(client, big.NewInt(0x111), signer,
		WithPollPolicy(retry.Policy{Initial: time.Millisecond, Max: 2 * time.Millisecond, MaxAttempts: 5}))
}

func TestReads(t *testing.T) {
	exec := newExecutor(t, &fakeStarknet{}, nil)
	ctx := context.Background()
	pool := big.NewInt(0x123)

	spent, err := IsNullifierSpent(ctx, exec, pool, big.NewInt(1))
	require.NoError(t, err)
	assert.True(t, spent)

	bal, err := BalanceOf(ctx, exec, big.NewInt(0x456), big.NewInt(0x111))
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Cmp(felt.JoinU256(big.NewInt(5), big.NewInt(1))))

	root, err := MerkleRoot(ctx, exec, pool)
	require.NoError(t, err)
	assert.Equal(t, int64(0xabc), root.Int64())

	init, err := IsPoolInitialized(ctx, exec, pool)
	require.NoError(t, err)
	assert.True(t, init)

	_, err = exec.ReadState(ctx, collab.Call{Contract: pool, EntryPoint: "missing"})
	assert.Error(t, err)
}

func TestSubmitAndAwait(t *testing.T) {
	svc := &fakeStarknet{receiptOK: 2}
	signer := &fakeSigner{}
	exec := newExecutor(t, svc, signer)
	ctx := context.Background()

	ref, err := exec.Submit(ctx,
		collab.Call{Contract: big.NewInt(0x456), EntryPoint: EntryApprove, Calldata: []*big.Int{big.NewInt(0x123), big.NewInt(10), big.NewInt(0)}},
		collab.Call{Contract: big.NewInt(0x123), EntryPoint: EntryPrivateDeposit, Calldata: []*big.Int{big.NewInt(0x456), big.NewInt(10), big.NewInt(0), big.NewInt(0x2a)}},
	)
	require.NoError(t, err)
	assert.Equal(t, collab.TxRef("0xfeed"), ref)
	assert.Equal(t, int64(7), signer.nonce.Int64())
	require.Len(t, svc.invokes, 1)

	rec, err := exec.AwaitConfirmation(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, collab.StatusSucceeded, rec.Status)
	idx, ok := DepositIndex(rec, big.NewInt(0x2a))
	assert.True(t, ok)
	assert.Equal(t, uint64(3), idx)

	_, ok = DepositIndex(rec, big.NewInt(0x2b))
	assert.False(t, ok)
}

func TestAwaitReverted(t *testing.T) {
	exec := newExecutor(t, &fakeStarknet{reverted: true}, &fakeSigner{})
	rec, err := exec.AwaitConfirmation(context.Background(), "0xfeed")
	require.NoError(t, err)
	assert.Equal(t, collab.StatusReverted, rec.Status)
	assert.Equal(t, "Nullifier already spent", rec.RevertReason)
}

func TestAwaitIsBounded(t *testing.T) {
	exec := newExecutor(t, &fakeStarknet{receiptOK: 100}, &fakeSigner{})
	_, err := exec.AwaitConfirmation(context.Background(), "0xfeed")
	assert.ErrorIs(t, err, retry.ErrGiveUp)
}

func TestSubmitWithoutSigner(t *testing.T) {
	exec := newExecutor(t, &fakeStarknet{}, nil)
	_, err := exec.Submit(context.Background(), collab.Call{Contract: big.NewInt(1), EntryPoint: EntryApprove})
	assert.ErrorIs(t, err, collab.ErrNotSent)
}

type failingSigner struct{}

func (failingSigner) SignInvoke(context.Context, *big.Int, *big.Int, []*big.Int) (map[string]interface{}, error) {
	return nil, errors.New("signer unavailable")
}

func TestSubmitFailureKinds(t *testing.T) {
	call := collab.Call{Contract: big.NewInt(1), EntryPoint: EntryApprove}

	t.Run("signing fails before the send", func(t *testing.T) {
		svc := &fakeStarknet{}
		_, err := newExecutor(t, svc, failingSigner{}).Submit(context.Background(), call)
		require.ErrorIs(t, err, collab.ErrNotSent)
		assert.Empty(t, svc.invokes)
	})

	t.Run("send fails", func(t *testing.T) {
		svc := &fakeStarknet{invokeErr: errors.New("gateway timeout")}
		_, err := newExecutor(t, svc, &fakeSigner{}).Submit(context.Background(), call)
		require.Error(t, err)
		assert.NotErrorIs(t, err, collab.ErrNotSent)
		assert.Len(t, svc.invokes, 1)
	})
}

func TestExecuteCalldata(t *testing.T) {
	cd := ExecuteCalldata([]collab.Call{{Contract: big.NewInt(9), EntryPoint: "approve", Calldata: []*big.Int{big.NewInt(1), big.NewInt(2)}}})
	require.Len(t, cd, 6)
	assert.Equal(t, int64(1), cd[0].Int64())
	assert.Equal(t, int64(9), cd[1].Int64())
	assert.Equal(t, 0, cd[2].Cmp(felt.Selector("approve")))
	assert.Equal(t, int64(2), cd[3].Int64())
}
