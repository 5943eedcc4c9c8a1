package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/collab"
	"shieldedamm/internal/ledger"
	"shieldedamm/internal/notes"
	"shieldedamm/internal/transactions/liquidity"
)

// ErrNoFees is returned by CollectFees when the position has nothing to collect.
var ErrNoFees = errors.New("position has no uncollected fees")

// LiquidityRequest names a position and the note funding or receiving it.
// With Commitment unset the smallest sufficient note of Asset is used.
type LiquidityRequest struct {
	Commitment *big.Int
	Asset      string
	TickLower  int32
	TickUpper  int32
	Liquidity  *big.Int // ignored by CollectFees
}

// LiquidityResult is the replacement note of a position operation.
type LiquidityResult struct {
	Input     *big.Int
	Output    *notes.Note
	TxRef     collab.TxRef
	Liquidity *big.Int
	Fees      *big.Int
}

// MintLiquidity moves Liquidity from a private note into the position.
func (o *Orchestrator) MintLiquidity(ctx context.Context, req LiquidityRequest) (*LiquidityResult, error) {
	return o.position(ctx, ledger.KindMint, collab.ProofMint, req)
}

// BurnLiquidity removes Liquidity from the position into a private note.
func (o *Orchestrator) BurnLiquidity(ctx context.Context, req LiquidityRequest) (*LiquidityResult, error) {
	return o.position(ctx, ledger.KindBurn, collab.ProofBurn, req)
}

// CollectFees moves the position's uncollected fees into a private note.
func (o *Orchestrator) CollectFees(ctx context.Context, req LiquidityRequest) (*LiquidityResult, error) {
	req.Liquidity = nil
	return o.position(ctx, ledger.KindCollect, collab.ProofCollect, req)
}

func (o *Orchestrator) position(ctx context.Context, kind ledger.Kind, proofKind collab.ProofKind, req LiquidityRequest) (*LiquidityResult, error) {
	p := o.begin(kind)

	if err := liquidity.CheckTicks(req.TickLower, req.TickUpper, o.opts.TickSpacing); err != nil {
		return nil, p.fail(precondition(p.kind, "invalid tick range", err))
	}
	minAmount := new(big.Int)
	if proofKind != collab.ProofCollect {
		if req.Liquidity == nil || req.Liquidity.Sign() <= 0 {
			return nil, p.fail(precondition(p.kind, "liquidity must be positive", nil))
		}
		if _, err := notes.ToU128(req.Liquidity); err != nil {
			return nil, p.fail(precondition(p.kind, "liquidity does not fit u128", err))
		}
		if proofKind == collab.ProofMint {
			minAmount = req.Liquidity
		}
	}
	if req.Commitment == nil {
		if _, _, ok := o.tokenFor(req.Asset); !ok {
			return nil, p.fail(precondition(p.kind, fmt.Sprintf("asset %q is not a pool token", req.Asset), nil))
		}
	}

	input, err := p.reserve(req.Commitment, req.Asset, minAmount)
	if err != nil {
		return nil, p.fail(err)
	}

	mp, err := p.spendable(ctx, input)
	if err != nil {
		return nil, p.fail(err)
	}

	p.to(StateGeneratingWitness)
	var fees *big.Int
	if proofKind != collab.ProofMint {
		cctx, cancel := p.callCtx(ctx)
		posLiquidity, posFees, err := chain.Position(cctx, o.chain, o.opts.Pool, req.TickLower, req.TickUpper)
		cancel()
		if err != nil {
			return nil, p.fail(fmt.Errorf("read position: %w", err))
		}
		switch {
		case proofKind == collab.ProofBurn && posLiquidity.Cmp(req.Liquidity) < 0:
			return nil, p.fail(fmt.Errorf("position holds %s liquidity, cannot burn %s", posLiquidity, req.Liquidity))
		case proofKind == collab.ProofCollect && posFees.Sign() == 0:
			return nil, p.fail(ErrNoFees)
		}
		fees = posFees
	}

	outAmount, err := liquidity.OutputAmount(proofKind, input.Amount, req.Liquidity, fees)
	if err != nil {
		return nil, p.fail(err)
	}
	output, err := notes.NewNote(outAmount, input.AssetID)
	if err != nil {
		return nil, p.fail(err)
	}
	params := &liquidity.Params{
		Kind:       proofKind,
		Input:      input,
		Output:     output,
		Membership: mp,
		TickLower:  req.TickLower,
		TickUpper:  req.TickUpper,
		Liquidity:  req.Liquidity,
		Fees:       fees,
	}
	proofReq, err := liquidity.ProofRequest(params)
	if err != nil {
		return nil, p.fail(err)
	}

	proof, err := p.prove(ctx, proofReq, o.opts.ProofTimeout)
	if err != nil {
		return nil, p.fail(err)
	}
	call, err := liquidity.Call(o.opts.Pool, proof, params)
	if err != nil {
		return nil, p.fail(err)
	}

	inputs, outputs := []*notes.Note{input}, []*notes.Note{output}
	sub, err := p.submit(ctx, inputs, outputs, call)
	if err != nil {
		return nil, p.fail(err)
	}
	p.finalize(ctx, sub, inputs, outputs)
	return &LiquidityResult{
		Input:     input.Commitment,
		Output:    output.Clone(),
		TxRef:     sub.ref,
		Liquidity: req.Liquidity,
		Fees:      fees,
	}, nil
}
