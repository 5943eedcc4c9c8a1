package chain

import (
	"fmt"
	"math/big"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
)

// FunctionCall is the starknet_call request object.
type FunctionCall struct {
	ContractAddress    string   `json:"contract_address"`
	EntryPointSelector string   `json:"entry_point_selector"`
	Calldata           []string `json:"calldata"`
}

// RPCEvent is an event as returned in receipts.
type RPCEvent struct {
	FromAddress string   `json:"from_address"`
	Keys        []string `json:"keys"`
	Data        []string `json:"data"`
}

// RPCReceipt is the subset of starknet_getTransactionReceipt the client uses.
type RPCReceipt struct {
	TransactionHash string     `json:"transaction_hash"`
	ExecutionStatus string     `json:"execution_status"`
	FinalityStatus  string     `json:"finality_status"`
	RevertReason    string     `json:"revert_reason,omitempty"`
	Events          []RPCEvent `json:"events"`
}

// InvokeResult is the starknet_addInvokeTransaction response.
type InvokeResult struct {
	TransactionHash string `json:"transaction_hash"`
}

func toFunctionCall(c collab.Call) FunctionCall {
	return FunctionCall{
		ContractAddress:    felt.Hex(c.Contract),
		EntryPointSelector: felt.Hex(felt.Selector(c.EntryPoint)),
		Calldata:           felt.HexAll(c.Calldata),
	}
}

func parseFelts(vs []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(vs))
	for i, s := range vs {
		v, err := felt.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (r *RPCReceipt) toReceipt() (*collab.Receipt, error) {
	rec := &collab.Receipt{
		Ref:          collab.TxRef(r.TransactionHash),
		Status:       collab.ExecutionStatus(r.ExecutionStatus),
		RevertReason: r.RevertReason,
	}
	for _, ev := range r.Events {
		from, err := felt.Parse(ev.FromAddress)
		if err != nil {
			return nil, fmt.Errorf("event from_address: %w", err)
		}
		keys, err := parseFelts(ev.Keys)
		if err != nil {
			return nil, fmt.Errorf("event keys: %w", err)
		}
		data, err := parseFelts(ev.Data)
		if err != nil {
			return nil, fmt.Errorf("event data: %w", err)
		}
		rec.Events = append(rec.Events, collab.Event{From: from, Keys: keys, Data: data})
	}
	return rec, nil
}

// ExecuteCalldata encodes calls in the account __execute__ layout:
// [n_calls, (to, selector, len, data...)...].
func ExecuteCalldata(calls []collab.Call) []*big.Int {
	out := []*big.Int{big.NewInt(int64(len(calls)))}
	for _, c := range calls {
		out = append(out, c.Contract, felt.Selector(c.EntryPoint))
		out = append(out, felt.Array(c.Calldata)...)
	}
	return out
}
