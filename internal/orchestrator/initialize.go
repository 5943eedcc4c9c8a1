package orchestrator

import (
	"context"
	"fmt"
	"math/big"

	"shieldedamm/internal/chain"
	"shieldedamm/internal/collab"
	"shieldedamm/internal/fixedpoint"
	"shieldedamm/internal/ledger"
	"shieldedamm/internal/transactions/initialize"
)

// InitializeRequest configures a new pool. Zero values take the defaults:
// fee 3000, tick spacing 60 and the 1:1 sqrt price.
type InitializeRequest struct {
	Fee         uint32
	TickSpacing int32
	SqrtPrice   *big.Int
}

// InitializeResult reports the pool initialization. AlreadyInitialized is set
// when the pool was initialized before the call and nothing was submitted.
type InitializeResult struct {
	TxRef              collab.TxRef
	AlreadyInitialized bool
	SqrtPrice          *big.Int
}

// Initialize sets up the pool if it is not initialized yet.
func (o *Orchestrator) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	p := o.begin(ledger.KindInitialize)

	params := initialize.Params{
		Token0:      o.opts.Token0,
		Token1:      o.opts.Token1,
		Fee:         req.Fee,
		TickSpacing: req.TickSpacing,
		SqrtPrice:   req.SqrtPrice,
	}.WithDefaults()
	if params.TickSpacing < 0 {
		return nil, p.fail(precondition(p.kind, fmt.Sprintf("invalid tick spacing %d", params.TickSpacing), nil))
	}
	if params.SqrtPrice.Sign() <= 0 {
		return nil, p.fail(precondition(p.kind, "sqrt price must be positive", nil))
	}
	call, err := initialize.Call(o.opts.Pool, params)
	if err != nil {
		return nil, p.fail(precondition(p.kind, "invalid pool parameters", err))
	}

	p.to(StateGeneratingWitness)
	cctx, cancel := p.callCtx(ctx)
	done, err := chain.IsPoolInitialized(cctx, o.chain, o.opts.Pool)
	cancel()
	if err != nil {
		return nil, p.fail(fmt.Errorf("check pool state: %w", err))
	}
	if done {
		p.log.Info().Msg("pool already initialized")
		p.complete()
		return &InitializeResult{AlreadyInitialized: true}, nil
	}

	sub, err := p.submit(ctx, nil, nil, call)
	if err != nil {
		return nil, p.fail(err)
	}
	p.finalize(ctx, sub, nil, nil)
	p.log.Info().Str("tx", string(sub.ref)).Str("sqrt_price", params.SqrtPrice.String()).
		Int32("tick", fixedpoint.TickAtSqrtPrice(params.SqrtPrice)).Msg("pool initialized")
	return &InitializeResult{TxRef: sub.ref, SqrtPrice: params.SqrtPrice}, nil
}
