package orchestrator

import (
	"context"
	"fmt"
	"math/big"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/collab"
	"shieldedamm/internal/fixedpoint"
	"shieldedamm/internal/ledger"
	"shieldedamm/internal/notes"
	"shieldedamm/internal/transactions/swap"
)

// SwapRequest selects the note to swap. A swap spends its whole input note:
// with Commitment set that note is used and AmountIn, if given, must equal
// its amount; otherwise the smallest note of Asset holding at least AmountIn.
// The direction follows the input asset.
type SwapRequest struct {
	Commitment *big.Int
	Asset      string
	AmountIn   *big.Int

	// SqrtPriceLimit bounds the post-swap sqrt price. Nil uses the ±5% edge.
	SqrtPriceLimit *big.Int
	// QuotedSqrtPrice is the post-swap sqrt price from a quoter. Nil is a
	// zero price move, which the adjuster perturbs.
	QuotedSqrtPrice *big.Int
}

// SwapResult is the output note of a swap and how its amount was derived.
type SwapResult struct {
	Input        *big.Int // spent commitment
	Output       *notes.Note
	TxRef        collab.TxRef
	ZeroForOne   bool
	Adjustment   *fixedpoint.Adjustment
	SqrtPriceOld *big.Int
	NewSqrtPrice *big.Int
}

// Swap trades a private note of one pool token for a note of the other.
func (o *Orchestrator) Swap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	p := o.begin(ledger.KindSwap)

	if req.Commitment == nil {
		if _, _, ok := o.tokenFor(req.Asset); !ok {
			return nil, p.fail(precondition(p.kind, fmt.Sprintf("asset %q is not a pool token", req.Asset), nil))
		}
		if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
			return nil, p.fail(precondition(p.kind, "amount_in must be positive", nil))
		}
	} else if req.AmountIn != nil && req.AmountIn.Sign() < 0 {
		return nil, p.fail(precondition(p.kind, "amount_in must not be negative", nil))
	}
	if req.SqrtPriceLimit != nil && req.SqrtPriceLimit.Sign() <= 0 {
		return nil, p.fail(precondition(p.kind, "sqrt price limit must be positive", nil))
	}

	input, err := p.reserve(req.Commitment, req.Asset, req.AmountIn)
	if err != nil {
		return nil, p.fail(err)
	}
	_, zeroForOne, ok := o.tokenFor(input.AssetID)
	if !ok {
		return nil, p.fail(precondition(p.kind, "note asset "+input.AssetID+" is not a pool token", nil))
	}
	if input.Amount.Sign() <= 0 {
		return nil, p.fail(precondition(p.kind, "cannot swap an empty note", nil))
	}
	if req.Commitment != nil && req.AmountIn != nil && req.AmountIn.Cmp(input.Amount) != 0 {
		return nil, p.fail(precondition(p.kind,
			fmt.Sprintf("amount_in %s differs from the note amount %s; a swap spends the whole note", req.AmountIn, input.Amount), nil))
	}
	a0, a1 := o.Assets()
	outAsset := a1
	if !zeroForOne {
		outAsset = a0
	}

	mp, err := p.spendable(ctx, input)
	if err != nil {
		return nil, p.fail(err)
	}

	p.to(StateGeneratingWitness)
	cctx, cancel := p.callCtx(ctx)
	sqrtOld, err := chain.SqrtPrice(cctx, o.chain, o.opts.Pool)
	cancel()
	if err != nil {
		return nil, p.fail(fmt.Errorf("read sqrt price: %w", err))
	}
	adj, newPrice, err := swap.Quote(input.Amount, sqrtOld, req.QuotedSqrtPrice, zeroForOne)
	if err != nil {
		return nil, p.fail(err)
	}
	o.metrics.RecordAdjustment(string(adj.Strategy), adj.Perturbed)
	p.log.Info().Str("amount_in", input.Amount.String()).Str("amount_out", adj.AmountOut.String()).
		Str("liquidity", adj.Liquidity.String()).Bool("perturbed", adj.Perturbed).
		Str("strategy", string(adj.Strategy)).Msg("swap amounts adjusted")

	limit := req.SqrtPriceLimit
	if limit == nil {
		limit = swap.DefaultPriceLimit(sqrtOld, zeroForOne)
	}
	if (zeroForOne && newPrice.Cmp(limit) < 0) || (!zeroForOne && newPrice.Cmp(limit) > 0) {
		return nil, p.fail(fmt.Errorf("swap moves the sqrt price to %s, past the limit %s", newPrice, limit))
	}

	output, err := notes.NewNote(adj.AmountOut, outAsset)
	if err != nil {
		return nil, p.fail(err)
	}
	params := &swap.Params{
		Input:           input,
		Output:          output,
		Membership:      mp,
		ZeroForOne:      zeroForOne,
		AmountSpecified: input.Amount,
		SqrtPriceOld:    sqrtOld,
		NewSqrtPrice:    newPrice,
		SqrtPriceLimit:  limit,
		Adjustment:      adj,
	}
	proofReq, err := swap.ProofRequest(params)
	if err != nil {
		return nil, p.fail(err)
	}

	proof, err := p.prove(ctx, proofReq, o.opts.SwapProofTimeout)
	if err != nil {
		return nil, p.fail(err)
	}
	call, err := swap.Call(o.opts.Pool, proof, params)
	if err != nil {
		return nil, p.fail(err)
	}

	inputs, outputs := []*notes.Note{input}, []*notes.Note{output}
	sub, err := p.submit(ctx, inputs, outputs, call)
	if err != nil {
		return nil, p.fail(err)
	}
	p.finalize(ctx, sub, inputs, outputs)
	return &SwapResult{
		Input:        input.Commitment,
		Output:       output.Clone(),
		TxRef:        sub.ref,
		ZeroForOne:   zeroForOne,
		Adjustment:   adj,
		SqrtPriceOld: sqrtOld,
		NewSqrtPrice: newPrice,
	}, nil
}
