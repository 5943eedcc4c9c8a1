// record.go - Transaction records kept alongside the private notes.

package ledger

import (
	"fmt"
	"time"

	"shieldedamm/internal/notes"
)

// Kind is the operation that produced a transaction record.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdraw   Kind = "withdraw"
	KindSwap       Kind = "swap"
	KindMint       Kind = "mint"
	KindBurn       Kind = "burn"
	KindCollect    Kind = "collect"
	KindInitialize Kind = "initialize"
)

// Status of a submitted transaction. Transitions are pending -> success | failed.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Transaction is the local record of a submitted on-chain transaction.
type Transaction struct {
	Ref     string   `json:"ref"`             // chain transaction hash, or op:<id> before the send
	OpID    string   `json:"op_id,omitempty"` // orchestrator operation id
	Kind    Kind     `json:"kind"`
	Status  Status   `json:"status"`
	Spent   []string `json:"spent,omitempty"`   // input commitments (hex)
	Outputs []string `json:"outputs,omitempty"` // output commitments (hex)
	Reason  string   `json:"reason,omitempty"`  // failure reason, if any

	// Pending holds the output notes while the record is pending, so an
	// interrupted operation can still recover them. Dropped once terminal.
	Pending []*notes.Note `json:"pending_outputs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTransaction builds a pending record.
func NewTransaction(ref string, kind Kind, opID string) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		Ref:       ref,
		OpID:      opID,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (t *Transaction) clone() *Transaction {
	c := *t
	c.Spent = append([]string(nil), t.Spent...)
	c.Outputs = append([]string(nil), t.Outputs...)
	c.Pending = nil
	for _, n := range t.Pending {
		c.Pending = append(c.Pending, n.Clone())
	}
	return &c
}

func (t *Transaction) validate() error {
	if t.Ref == "" {
		return fmt.Errorf("transaction ref is empty")
	}
	switch t.Kind {
	case KindDeposit, KindWithdraw, KindSwap, KindMint, KindBurn, KindCollect, KindInitialize:
	default:
		return fmt.Errorf("unknown transaction kind %q", t.Kind)
	}
	switch t.Status {
	case StatusPending, StatusSuccess, StatusFailed:
	default:
		return fmt.Errorf("unknown transaction status %q", t.Status)
	}
	return nil
}
