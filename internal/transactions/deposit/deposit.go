// Package deposit builds the calls that move public tokens into the shielded pool.
//
// A deposit needs no proof: the pool pulls `amount` of `token` from the account
// and appends the note commitment to the membership tree.
package deposit

import (
	"fmt"
	"math/big"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/notes"
)

// Calls returns [approve(pool, amount), private_deposit(token, amount, commitment)].
func Calls(pool, token, amount, commitment *big.Int) ([]collab.Call, error) {
	if _, err := notes.ToU128(amount); err != nil {
		return nil, fmt.Errorf("deposit amount: %w", err)
	}
	if err := felt.Check(commitment); err != nil {
		return nil, fmt.Errorf("deposit commitment: %w", err)
	}
	low, high, err := felt.SplitU256(amount)
	if err != nil {
		return nil, err
	}
	approve := collab.Call{
		Contract:   token,
		EntryPoint: chain.EntryApprove,
		Calldata:   []*big.Int{pool, low, high},
	}
	deposit := collab.Call{
		Contract:   pool,
		EntryPoint: chain.EntryPrivateDeposit,
		Calldata:   []*big.Int{token, low, high, commitment},
	}
	return []collab.Call{approve, deposit}, nil
}
