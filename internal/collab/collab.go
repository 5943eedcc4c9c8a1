// Package collab declares the external collaborators of the transaction
// pipeline: the membership tree oracle, the proof generator and the chain.
package collab

import (
	"context"
	"errors"
	"math/big"
)

// MembershipProof is a Merkle inclusion proof for one leaf.
type MembershipProof struct {
	Root        *big.Int
	Leaf        *big.Int
	Path        []*big.Int
	PathIndices []uint8
}

// TreeOracle exposes the append-only commitment tree.
type TreeOracle interface {
	MembershipProof(ctx context.Context, index uint64) (*MembershipProof, error)
	TreeSize(ctx context.Context) (uint64, error)
	FindIndexByCommitment(ctx context.Context, commitment *big.Int) (index uint64, found bool, err error)
}

// ProofKind selects the circuit.
type ProofKind string

const (
	ProofSwap     ProofKind = "swap"
	ProofWithdraw ProofKind = "withdraw"
	ProofMint     ProofKind = "mint"
	ProofBurn     ProofKind = "burn"
	ProofCollect  ProofKind = "collect"
)

// ProofRequest carries the circuit inputs as decimal strings or string arrays,
// keyed by circuit signal name.
type ProofRequest struct {
	Kind    ProofKind
	Public  map[string]interface{}
	Private map[string]interface{}
}

// ProofBlob is the generator output: proof points followed by public inputs.
type ProofBlob struct {
	Proof        []*big.Int
	PublicInputs []*big.Int
}

// ProofGenerator produces zero-knowledge proofs.
type ProofGenerator interface {
	GenerateProof(ctx context.Context, req *ProofRequest) (*ProofBlob, error)
}

// Call is a contract invocation.
type Call struct {
	Contract   *big.Int
	EntryPoint string
	Calldata   []*big.Int
}

// TxRef identifies a submitted transaction.
type TxRef string

// ExecutionStatus of a confirmed transaction.
type ExecutionStatus string

const (
	StatusSucceeded ExecutionStatus = "SUCCEEDED"
	StatusReverted  ExecutionStatus = "REVERTED"
)

// Event is a contract event from a receipt.
type Event struct {
	From *big.Int
	Keys []*big.Int
	Data []*big.Int
}

// Receipt is the confirmed result of a transaction.
type Receipt struct {
	Ref          TxRef
	Status       ExecutionStatus
	RevertReason string
	Events       []Event
}

// ErrNotSent marks a Submit failure that happened before the transaction was
// broadcast. Any other Submit error leaves the outcome unknown.
var ErrNotSent = errors.New("transaction was not sent")

// ChainExecutor submits transactions and reads contract state.
type ChainExecutor interface {
	// Submit sends the calls as one transaction. Errors raised before the
	// broadcast wrap ErrNotSent.
	Submit(ctx context.Context, calls ...Call) (TxRef, error)
	AwaitConfirmation(ctx context.Context, ref TxRef) (*Receipt, error)
	ReadState(ctx context.Context, call Call) ([]*big.Int, error)
}
