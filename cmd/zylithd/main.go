// zylithd is the command line client for the shielded AMM pool: it keeps
// the private note ledger and drives deposits, swaps, withdrawals and
// liquidity operations through the proof pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"shieldedamm/internal/config"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

type globalFlags struct {
	configPath string
	envFiles   []string
	backend    string
	logLevel   string
	jsonOut    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	var a *app

	root := &cobra.Command{
		Use:   "zylithd",
		Short: "Private note client for the shielded AMM pool",
		Long: `zylithd keeps the local ledger of private notes and runs deposits,
withdrawals, swaps and liquidity operations against the pool.

Configuration is read from the config file, then .env files, then ZYLITH_*
environment variables, then flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err = newApp(cmd.Context(), cfg, flags.jsonOut)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "zylith.json", "Config file (created with defaults if missing)")
	pf.StringSliceVar(&flags.envFiles, "env", []string{".env"}, "Env files to load")
	pf.StringVar(&flags.backend, "backend", "", "Collaborator backend: devnet or remote")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&flags.jsonOut, "json", false, "Print results as JSON")

	appRef := func() *app { return a }
	root.AddCommand(
		newVersionCmd(),
		newInitializeCmd(appRef),
		newDepositCmd(appRef),
		newWithdrawCmd(appRef),
		newSwapCmd(appRef),
		newPositionCmd(appRef, "mint", "Add liquidity to a position from a private note"),
		newPositionCmd(appRef, "burn", "Remove liquidity from a position into a private note"),
		newCollectCmd(appRef),
		newNotesCmd(appRef),
		newBalanceCmd(appRef),
		newValidateCmd(appRef),
		newReconcileCmd(appRef),
		newHealthCmd(appRef),
		newDemoCmd(appRef),
	)
	return root
}

func loadConfig(flags globalFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	if err := config.LoadEnv(flags.envFiles...); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if flags.backend != "" {
		cfg.Backend = flags.backend
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "zylithd %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
}
