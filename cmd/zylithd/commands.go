package main

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/spf13/cobra"

	"shieldedamm/internal/felt"
	"shieldedamm/internal/metrics"
	"shieldedamm/internal/notes"
	"shieldedamm/internal/orchestrator"
)

type appFunc func() *app

func newInitializeCmd(get appFunc) *cobra.Command {
	var (
		fee       uint32
		spacing   int32
		sqrtPrice string
	)
	cmd := &cobra.Command{
		Use:   "initialize",
		Short: "Initialize the pool if it is not initialized yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			price, err := optionalFelt(sqrtPrice)
			if err != nil {
				return fmt.Errorf("sqrt price: %w", err)
			}
			res, err := a.orch.Initialize(cmd.Context(), orchestrator.InitializeRequest{Fee: fee, TickSpacing: spacing, SqrtPrice: price})
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), res, func(w io.Writer) {
				if res.AlreadyInitialized {
					fmt.Fprintln(w, "pool already initialized")
					return
				}
				fmt.Fprintf(w, "pool initialized in %s at sqrt price %s\n", res.TxRef, res.SqrtPrice)
			})
		},
	}
	cmd.Flags().Uint32Var(&fee, "fee", 0, "Fee in hundredths of a bip (default 3000)")
	cmd.Flags().Int32Var(&spacing, "tick-spacing", 0, "Tick spacing (default 60)")
	cmd.Flags().StringVar(&sqrtPrice, "sqrt-price", "", "Initial sqrt price, Q128 (default 1:1)")
	return cmd
}

func newDepositCmd(get appFunc) *cobra.Command {
	var asset, amount string
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit public tokens into a new private note",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			id, err := a.asset(asset)
			if err != nil {
				return err
			}
			amt, err := notes.ParseAmount(amount)
			if err != nil {
				return err
			}
			res, err := a.orch.Deposit(cmd.Context(), id, amt)
			if err != nil {
				return err
			}
			v := viewNote(res.Note)
			return a.emit(cmd.OutOrStdout(), map[string]interface{}{"note": v, "tx": res.TxRef}, func(w io.Writer) {
				fmt.Fprintf(w, "deposited %s of %s in %s\n", v.Amount, v.Asset, res.TxRef)
				fmt.Fprintf(w, "note %s at index %s\n", v.Commitment, v.index())
			})
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "token0", "token0, token1 or a token address")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount to deposit")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newWithdrawCmd(get appFunc) *cobra.Command {
	var note, amount, recipient string
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw from a private note to a public address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			cm, err := felt.Parse(note)
			if err != nil {
				return fmt.Errorf("note: %w", err)
			}
			amt, err := notes.ParseAmount(amount)
			if err != nil {
				return err
			}
			to, err := felt.Parse(recipient)
			if err != nil {
				return fmt.Errorf("recipient: %w", err)
			}
			res, err := a.orch.Withdraw(cmd.Context(), cm, amt, to)
			if err != nil {
				return err
			}
			out := map[string]interface{}{"amount": res.Amount.String(), "tx": res.TxRef}
			if res.Change != nil {
				out["change"] = viewNote(res.Change)
			}
			return a.emit(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintf(w, "withdrew %s to %s in %s\n", res.Amount, felt.Hex(to), res.TxRef)
				if res.Change != nil {
					fmt.Fprintf(w, "change note %s holds %s\n", res.Change.CommitmentHex(), res.Change.Amount)
				}
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Commitment of the note to spend")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount to withdraw")
	cmd.Flags().StringVar(&recipient, "recipient", "", "Recipient address")
	for _, f := range []string{"note", "amount", "recipient"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newSwapCmd(get appFunc) *cobra.Command {
	var note, asset, amountIn, limit, quote string
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap a whole private note for a note of the other pool token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			var req orchestrator.SwapRequest
			var err error
			if req.Commitment, err = optionalFelt(note); err != nil {
				return fmt.Errorf("note: %w", err)
			}
			if req.Commitment == nil {
				if req.Asset, err = a.asset(asset); err != nil {
					return err
				}
				if amountIn == "" {
					return errors.New("--amount-in is required without --note")
				}
			}
			if amountIn != "" {
				if req.AmountIn, err = notes.ParseAmount(amountIn); err != nil {
					return err
				}
			}
			if req.SqrtPriceLimit, err = optionalFelt(limit); err != nil {
				return fmt.Errorf("limit: %w", err)
			}
			if req.QuotedSqrtPrice, err = optionalFelt(quote); err != nil {
				return fmt.Errorf("quote: %w", err)
			}

			res, err := a.orch.Swap(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := map[string]interface{}{
				"output":         viewNote(res.Output),
				"tx":             res.TxRef,
				"zero_for_one":   res.ZeroForOne,
				"liquidity":      res.Adjustment.Liquidity.String(),
				"price_diff":     res.Adjustment.PriceDiff.String(),
				"perturbed":      res.Adjustment.Perturbed,
				"strategy":       res.Adjustment.Strategy,
				"new_sqrt_price": res.NewSqrtPrice.String(),
			}
			return a.emit(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintf(w, "swapped into %s of %s in %s\n", res.Output.Amount, res.Output.AssetID, res.TxRef)
				fmt.Fprintf(w, "output note %s, sqrt price %s -> %s\n", res.Output.CommitmentHex(), res.SqrtPriceOld, res.NewSqrtPrice)
				if res.Adjustment.Perturbed {
					fmt.Fprintln(w, "zero price move was perturbed to satisfy exact division")
				}
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Commitment of the note to swap")
	cmd.Flags().StringVar(&asset, "asset", "token0", "Input asset when --note is not given")
	cmd.Flags().StringVar(&amountIn, "amount-in", "", "Minimum note amount to select; with --note, must equal the note amount")
	cmd.Flags().StringVar(&limit, "limit", "", "Sqrt price limit, Q128")
	cmd.Flags().StringVar(&quote, "quote", "", "Quoted post-swap sqrt price, Q128")
	return cmd
}

type positionFlags struct {
	note, asset, liquidity string
	lower, upper           int32
}

func (f *positionFlags) register(cmd *cobra.Command, withLiquidity bool) {
	cmd.Flags().StringVar(&f.note, "note", "", "Commitment of the note to use")
	cmd.Flags().StringVar(&f.asset, "asset", "token0", "Asset of the note when --note is not given")
	cmd.Flags().Int32Var(&f.lower, "lower", 0, "Lower tick")
	cmd.Flags().Int32Var(&f.upper, "upper", 0, "Upper tick")
	_ = cmd.MarkFlagRequired("lower")
	_ = cmd.MarkFlagRequired("upper")
	if withLiquidity {
		cmd.Flags().StringVar(&f.liquidity, "liquidity", "", "Liquidity amount")
		_ = cmd.MarkFlagRequired("liquidity")
	}
}

func (f *positionFlags) request(a *app) (orchestrator.LiquidityRequest, error) {
	req := orchestrator.LiquidityRequest{TickLower: f.lower, TickUpper: f.upper}
	var err error
	if req.Commitment, err = optionalFelt(f.note); err != nil {
		return req, fmt.Errorf("note: %w", err)
	}
	if req.Commitment == nil {
		if req.Asset, err = a.asset(f.asset); err != nil {
			return req, err
		}
	}
	if f.liquidity != "" {
		if req.Liquidity, err = notes.ParseAmount(f.liquidity); err != nil {
			return req, err
		}
	}
	return req, nil
}

func printLiquidity(a *app, w io.Writer, verb string, res *orchestrator.LiquidityResult) error {
	out := map[string]interface{}{"output": viewNote(res.Output), "tx": res.TxRef}
	if res.Liquidity != nil {
		out["liquidity"] = res.Liquidity.String()
	}
	if res.Fees != nil {
		out["fees"] = res.Fees.String()
	}
	return a.emit(w, out, func(w io.Writer) {
		fmt.Fprintf(w, "%s in %s; note %s now holds %s\n", verb, res.TxRef, res.Output.CommitmentHex(), res.Output.Amount)
	})
}

func newPositionCmd(get appFunc, use, short string) *cobra.Command {
	var f positionFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			req, err := f.request(a)
			if err != nil {
				return err
			}
			var res *orchestrator.LiquidityResult
			if use == "mint" {
				res, err = a.orch.MintLiquidity(cmd.Context(), req)
			} else {
				res, err = a.orch.BurnLiquidity(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			return printLiquidity(a, cmd.OutOrStdout(), use+"ed "+req.Liquidity.String(), res)
		},
	}
	f.register(cmd, true)
	return cmd
}

func newCollectCmd(get appFunc) *cobra.Command {
	var f positionFlags
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect position fees into a private note",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			req, err := f.request(a)
			if err != nil {
				return err
			}
			res, err := a.orch.CollectFees(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printLiquidity(a, cmd.OutOrStdout(), "collected "+res.Fees.String(), res)
		},
	}
	f.register(cmd, false)
	return cmd
}

func newNotesCmd(get appFunc) *cobra.Command {
	var showQuarantine bool
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "List the notes in the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			var vs []noteView
			if showQuarantine {
				for _, q := range a.ledger.Quarantined() {
					vs = append(vs, viewNote(q.Note))
				}
			} else {
				for _, n := range a.ledger.Notes() {
					v := viewNote(n)
					v.Reserved = a.ledger.Reserved(n.Commitment)
					vs = append(vs, v)
				}
			}
			return a.emit(cmd.OutOrStdout(), vs, func(w io.Writer) { printNotes(w, vs) })
		},
	}
	cmd.Flags().BoolVar(&showQuarantine, "quarantined", false, "List quarantined notes instead")
	return cmd
}

func newBalanceCmd(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the private balance per pool token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			a0, a1 := a.orch.Assets()
			out := map[string]string{
				a0: a.ledger.TotalBalance(a0).String(),
				a1: a.ledger.TotalBalance(a1).String(),
			}
			return a.emit(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintf(w, "token0 %s: %s\n", a0, out[a0])
				fmt.Fprintf(w, "token1 %s: %s\n", a1, out[a1])
			})
		},
	}
}

func newValidateCmd(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every note against its membership tree leaf",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			results := a.orch.ValidateAll(cmd.Context())
			type row struct {
				Commitment string `json:"commitment"`
				Valid      bool   `json:"valid"`
				Error      string `json:"error,omitempty"`
			}
			rows := make([]row, len(results))
			invalid := 0
			for i, r := range results {
				rows[i] = row{Commitment: r.Note.CommitmentHex(), Valid: r.Err == nil}
				if r.Err != nil {
					rows[i].Error = r.Err.Error()
					invalid++
				}
			}
			if err := a.emit(cmd.OutOrStdout(), rows, func(w io.Writer) {
				for _, r := range rows {
					if r.Valid {
						fmt.Fprintf(w, "ok       %s\n", r.Commitment)
					} else {
						fmt.Fprintf(w, "INVALID  %s: %s\n", r.Commitment, r.Error)
					}
				}
			}); err != nil {
				return err
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d notes failed validation", invalid, len(rows))
			}
			return nil
		},
	}
}

func newReconcileCmd(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Settle interrupted transactions, attach missing tree indexes and quarantine notes spent on chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			rep, err := a.orch.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), rep, func(w io.Writer) {
				fmt.Fprintf(w, "checked %d notes: %d indexed, %d unsynced, %d quarantined, %d skipped\n",
					rep.Checked, len(rep.Indexed), len(rep.Unsynced), len(rep.Quarantined), len(rep.Skipped))
				fmt.Fprintf(w, "transactions: %d settled, %d still pending\n", len(rep.Settled), len(rep.Pending))
			})
		},
	}
}

func newHealthCmd(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the tree oracle, prover and chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			h := a.health.CheckHealth(cmd.Context())
			if err := a.emit(cmd.OutOrStdout(), h, func(w io.Writer) {
				fmt.Fprintf(w, "overall: %s (version %s)\n", h.OverallStatus, h.Version)
				for _, c := range h.Components {
					fmt.Fprintf(w, "  %-6s %-9s %s (%s)\n", c.Name, c.Status, c.Message, c.Latency)
				}
			}); err != nil {
				return err
			}
			if h.OverallStatus == metrics.Unhealthy {
				return errors.New("unhealthy")
			}
			return nil
		},
	}
}

func newDemoCmd(get appFunc) *cobra.Command {
	var amount int64
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run deposit, swap, liquidity and withdraw against the devnet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if a.net == nil {
				return errors.New("demo needs the devnet backend")
			}
			return runDemo(cmd.Context(), a, cmd.OutOrStdout(), big.NewInt(amount))
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 1000, "Deposit amount")
	return cmd
}
