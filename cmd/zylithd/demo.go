package main

import (
	"context"
	"fmt"
	"io"
	"math/big"

	"shieldedamm/internal/orchestrator"
)

// runDemo walks one note through the whole pool lifecycle.
func runDemo(ctx context.Context, a *app, w io.Writer, amount *big.Int) error {
	o := a.orch
	a0, a1 := o.Assets()

	dep, err := o.Deposit(ctx, a0, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "1. deposited %s of token0 as %s (index %d)\n", amount, dep.Note.CommitmentHex(), *dep.Note.TreeIndex)

	lp, err := o.Deposit(ctx, a0, new(big.Int).Mul(amount, big.NewInt(4)))
	if err != nil {
		return err
	}
	minted, err := o.MintLiquidity(ctx, orchestrator.LiquidityRequest{
		Commitment: lp.Note.Commitment, TickLower: -600, TickUpper: 600, Liquidity: new(big.Int).Mul(amount, big.NewInt(2)),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "2. minted %s liquidity in [-600, 600], note keeps %s\n", minted.Liquidity, minted.Output.Amount)

	sw, err := o.Swap(ctx, orchestrator.SwapRequest{Commitment: dep.Note.Commitment})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "3. swapped into %s of token1 (liquidity %s, perturbed %v)\n",
		sw.Output.Amount, sw.Adjustment.Liquidity, sw.Adjustment.Perturbed)

	col, err := o.CollectFees(ctx, orchestrator.LiquidityRequest{
		Commitment: minted.Output.Commitment, TickLower: -600, TickUpper: 600,
	})
	if err != nil {
		fmt.Fprintf(w, "4. no fees collected: %v\n", err)
	} else {
		fmt.Fprintf(w, "4. collected %s in fees, note now holds %s\n", col.Fees, col.Output.Amount)
	}

	half := new(big.Int).Rsh(sw.Output.Amount, 1)
	if half.Sign() == 0 {
		half.SetInt64(1)
	}
	wd, err := o.Withdraw(ctx, sw.Output.Commitment, half, a.net.Account)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "5. withdrew %s of token1 in %s", wd.Amount, wd.TxRef)
	if wd.Change != nil {
		fmt.Fprintf(w, ", change %s", wd.Change.Amount)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "balances: token0 %s, token1 %s\n", a.ledger.TotalBalance(a0), a.ledger.TotalBalance(a1))
	return nil
}
