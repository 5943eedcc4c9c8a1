// Package chain is the JSON-RPC chain executor: contract reads, invoke
// submission through an account signer, and receipt polling.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/retry"
)

const blockLatest = "latest"

// errTxNotFound is the starknet error code for an unknown transaction hash.
const errTxNotFound = 29

// ErrPending is returned while a transaction has not been included yet.
var ErrPending = errors.New("transaction not yet accepted")

// Signer turns the account's __execute__ calldata into a signed invoke
// transaction object accepted by starknet_addInvokeTransaction.
type Signer interface {
	SignInvoke(ctx context.Context, account *big.Int, nonce *big.Int, calldata []*big.Int) (map[string]interface{}, error)
}

// Executor implements collab.ChainExecutor over a starknet JSON-RPC endpoint.
type Executor struct {
	client  *rpc.Client
	account *big.Int
	signer  Signer
	poll    retry.Policy
	log     zerolog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithPollPolicy overrides the receipt polling policy.
func WithPollPolicy(p retry.Policy) Option { return func(e *Executor) { e.poll = p } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Executor) { e.log = l } }

// Dial connects to the RPC endpoint at url.
func Dial(ctx context.Context, url string, account *big.Int, signer Signer, opts ...Option) (*Executor, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewExecutor(c, account, signer, opts...), nil
}

// NewExecutor wraps an existing rpc client.
func NewExecutor(c *rpc.Client, account *big.Int, signer Signer, opts ...Option) *Executor {
	e := &Executor{
		client:  c,
		account: account,
		signer:  signer,
		poll:    retry.Policy{Initial: time.Second, Max: 5 * time.Second, MaxAttempts: 120},
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Close closes the rpc client.
func (e *Executor) Close() { e.client.Close() }

// ReadState performs a starknet_call against the latest block.
func (e *Executor) ReadState(ctx context.Context, call collab.Call) ([]*big.Int, error) {
	var result []string
	if err := e.client.CallContext(ctx, &result, "starknet_call", toFunctionCall(call), blockLatest); err != nil {
		return nil, fmt.Errorf("call %s: %w", call.EntryPoint, err)
	}
	out, err := parseFelts(result)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", call.EntryPoint, err)
	}
	return out, nil
}

// StorageAt reads one storage slot of contract.
func (e *Executor) StorageAt(ctx context.Context, contract, key *big.Int) (*big.Int, error) {
	var result string
	if err := e.client.CallContext(ctx, &result, "starknet_getStorageAt", felt.Hex(contract), felt.Hex(key), blockLatest); err != nil {
		return nil, fmt.Errorf("get storage: %w", err)
	}
	return felt.Parse(result)
}

// Nonce returns the account nonce.
func (e *Executor) Nonce(ctx context.Context) (*big.Int, error) {
	var result string
	if err := e.client.CallContext(ctx, &result, "starknet_getNonce", blockLatest, felt.Hex(e.account)); err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	return felt.Parse(result)
}

// ChainID returns the network chain id.
func (e *Executor) ChainID(ctx context.Context) (string, error) {
	var id string
	err := e.client.CallContext(ctx, &id, "starknet_chainId")
	return id, err
}

// Submit signs the calls as one multicall and sends it.
func (e *Executor) Submit(ctx context.Context, calls ...collab.Call) (collab.TxRef, error) {
	if e.signer == nil {
		return "", fmt.Errorf("%w: chain executor has no signer configured", collab.ErrNotSent)
	}
	if len(calls) == 0 {
		return "", fmt.Errorf("%w: no calls", collab.ErrNotSent)
	}
	nonce, err := e.Nonce(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", collab.ErrNotSent, err)
	}
	tx, err := e.signer.SignInvoke(ctx, e.account, nonce, ExecuteCalldata(calls))
	if err != nil {
		return "", fmt.Errorf("%w: sign invoke: %w", collab.ErrNotSent, err)
	}
	// From here on the node may have accepted the transaction even if the
	// call fails.
	var res InvokeResult
	if err := e.client.CallContext(ctx, &res, "starknet_addInvokeTransaction", tx); err != nil {
		return "", fmt.Errorf("add invoke transaction: %w", err)
	}
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.EntryPoint
	}
	e.log.Info().Str("tx", res.TransactionHash).Str("calls", strings.Join(names, ",")).Msg("transaction submitted")
	return collab.TxRef(res.TransactionHash), nil
}

// AwaitConfirmation polls the receipt until it is accepted or reverted.
func (e *Executor) AwaitConfirmation(ctx context.Context, ref collab.TxRef) (*collab.Receipt, error) {
	var receipt *collab.Receipt
	err := retry.Do(ctx, e.poll, func(ctx context.Context) error {
		var raw RPCReceipt
		err := e.client.CallContext(ctx, &raw, "starknet_getTransactionReceipt", string(ref))
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == errTxNotFound {
			return ErrPending
		}
		if err != nil {
			return err
		}
		if raw.ExecutionStatus == "" || raw.FinalityStatus == "RECEIVED" {
			return ErrPending
		}
		rec, err := raw.toReceipt()
		if err != nil {
			return retry.Permanent(err)
		}
		receipt = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("await %s: %w", ref, err)
	}
	return receipt, nil
}
