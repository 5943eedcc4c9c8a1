// Package liquidity builds the private position operations.
//
// Every operation spends one note and produces one replacement note:
// mint moves `liquidity` out of the note into the position, burn moves it back
// and collect adds the fees accrued by the position.
package liquidity

import (
	"errors"
	"fmt"
	"math/big"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/notes"
	"shieldedamm/internal/transactions"
)

// Tick range of the pool.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// Public signal names in circuit order.
var (
	PositionSignals = []string{"nullifier", "root", "tick_lower", "tick_upper", "liquidity", "new_commitment"}
	CollectSignals  = []string{"nullifier", "root", "tick_lower", "tick_upper", "new_commitment"}
)

// Params is everything needed to prove and submit one position operation.
type Params struct {
	Kind       collab.ProofKind // mint, burn or collect
	Input      *notes.Note
	Output     *notes.Note
	Membership *collab.MembershipProof

	TickLower int32
	TickUpper int32
	Liquidity *big.Int // mint and burn
	Fees      *big.Int // collect
}

// CheckTicks validates a position range against the pool tick spacing.
func CheckTicks(lower, upper, spacing int32) error {
	switch {
	case lower >= upper:
		return fmt.Errorf("tick_lower %d must be below tick_upper %d", lower, upper)
	case lower < MinTick || upper > MaxTick:
		return fmt.Errorf("ticks [%d, %d] outside [%d, %d]", lower, upper, MinTick, MaxTick)
	case spacing <= 0:
		return fmt.Errorf("invalid tick spacing %d", spacing)
	case lower%spacing != 0 || upper%spacing != 0:
		return fmt.Errorf("ticks [%d, %d] are not multiples of spacing %d", lower, upper, spacing)
	}
	return nil
}

// OutputAmount returns the replacement note amount for kind.
func OutputAmount(kind collab.ProofKind, noteAmount, liquidity, fees *big.Int) (*big.Int, error) {
	switch kind {
	case collab.ProofMint:
		if liquidity == nil || liquidity.Sign() <= 0 {
			return nil, errors.New("liquidity must be positive")
		}
		out := new(big.Int).Sub(noteAmount, liquidity)
		if out.Sign() < 0 {
			return nil, fmt.Errorf("liquidity %s exceeds note amount %s", liquidity, noteAmount)
		}
		return out, nil
	case collab.ProofBurn:
		if liquidity == nil || liquidity.Sign() <= 0 {
			return nil, errors.New("liquidity must be positive")
		}
		return new(big.Int).Add(noteAmount, liquidity), nil
	case collab.ProofCollect:
		if fees == nil || fees.Sign() < 0 {
			return nil, errors.New("fees must be non-negative")
		}
		return new(big.Int).Add(noteAmount, fees), nil
	}
	return nil, fmt.Errorf("not a position operation: %q", kind)
}

// EntryPoint returns the pool entry point for kind.
func EntryPoint(kind collab.ProofKind) (string, error) {
	switch kind {
	case collab.ProofMint:
		return chain.EntryPrivateMintLiquidity, nil
	case collab.ProofBurn:
		return chain.EntryPrivateBurnLiquidity, nil
	case collab.ProofCollect:
		return chain.EntryPrivateCollect, nil
	}
	return "", fmt.Errorf("not a position operation: %q", kind)
}

func (p *Params) validate() error {
	if p.Input == nil || p.Output == nil || p.Membership == nil {
		return errors.New("position operation needs input, output and membership proof")
	}
	if p.TickLower >= p.TickUpper {
		return fmt.Errorf("tick_lower %d must be below tick_upper %d", p.TickLower, p.TickUpper)
	}
	want, err := OutputAmount(p.Kind, p.Input.Amount, p.Liquidity, p.Fees)
	if err != nil {
		return err
	}
	if p.Output.Amount.Cmp(want) != 0 {
		return fmt.Errorf("output note amount %s, want %s", p.Output.Amount, want)
	}
	return nil
}

// ProofRequest builds the mint, burn or collect circuit inputs.
func ProofRequest(p *Params) (*collab.ProofRequest, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	path, idx := transactions.MerkleWitness(p.Membership)
	dec := transactions.Dec

	pub := map[string]interface{}{
		"nullifier":      dec(p.Input.Nullifier),
		"root":           dec(p.Membership.Root),
		"tick_lower":     dec(felt.FromInt32(p.TickLower)),
		"tick_upper":     dec(felt.FromInt32(p.TickUpper)),
		"new_commitment": dec(p.Output.Commitment),
	}
	priv := map[string]interface{}{
		"secret":        dec(p.Input.Secret),
		"amount":        dec(p.Input.Amount),
		"pathElements":  path,
		"pathIndices":   idx,
		"new_secret":    dec(p.Output.Secret),
		"new_nullifier": dec(p.Output.Nullifier),
		"new_amount":    dec(p.Output.Amount),
	}
	if p.Kind == collab.ProofCollect {
		priv["fees"] = dec(p.Fees)
	} else {
		pub["liquidity"] = dec(p.Liquidity)
	}
	return &collab.ProofRequest{Kind: p.Kind, Public: pub, Private: priv}, nil
}

// Call builds private_mint_liquidity / private_burn_liquidity
// [proof, public_inputs, tick_lower, tick_upper, liquidity, new_commitment]
// or private_collect [proof, public_inputs, tick_lower, tick_upper, new_commitment].
func Call(pool *big.Int, proof *transactions.FormattedProof, p *Params) (collab.Call, error) {
	entry, err := EntryPoint(p.Kind)
	if err != nil {
		return collab.Call{}, err
	}
	cd := proof.Calldata()
	cd = append(cd, felt.FromInt32(p.TickLower), felt.FromInt32(p.TickUpper))
	if p.Kind != collab.ProofCollect {
		if _, err := notes.ToU128(p.Liquidity); err != nil {
			return collab.Call{}, fmt.Errorf("liquidity: %w", err)
		}
		cd = append(cd, p.Liquidity)
	}
	cd = append(cd, p.Output.Commitment)
	return collab.Call{Contract: pool, EntryPoint: entry, Calldata: cd}, nil
}
