package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"shieldedamm/internal/asp"
	"shieldedamm/internal/chain"
	"shieldedamm/internal/collab"
	"shieldedamm/internal/config"
	"shieldedamm/internal/devnet"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/ledger"
	"shieldedamm/internal/logging"
	"shieldedamm/internal/metrics"
	"shieldedamm/internal/orchestrator"
)

// app holds the wired client for one command invocation.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	ledger  *ledger.Ledger
	orch    *orchestrator.Orchestrator
	metrics *metrics.Collector
	health  *metrics.HealthChecker
	jsonOut bool

	net *devnet.Network // devnet backend only

	closers      []func() error
	stopProgress func()
}

func newApp(ctx context.Context, cfg *config.Config, jsonOut bool) (*app, error) {
	lg, err := logging.New(cfg.LogOptions())
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     cfg,
		log:     lg,
		metrics: metrics.NewCollector(),
		health:  metrics.NewHealthChecker(Version),
		jsonOut: jsonOut,
		closers: []func() error{lg.Close},
	}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	addrs := a.cfg.Addresses()
	opts := orchestrator.DefaultOptions(addrs.Pool, addrs.Token0, addrs.Token1)
	opts.SwapProofTimeout = a.cfg.SwapProofTimeout()
	opts.ProofTimeout = a.cfg.ProofTimeout()
	opts.ConfirmTimeout = a.cfg.ConfirmTimeout()

	var (
		tree   collab.TreeOracle
		prover collab.ProofGenerator
		exec   collab.ChainExecutor
	)
	switch a.cfg.Backend {
	case config.BackendDevnet:
		// Devnet state lives in this process, so a persisted ledger would
		// reference commitments the fresh tree has never seen.
		a.log.Warn().Msg("devnet backend: chain and ledger state last for this invocation only")
		a.net = devnet.NewNetwork(a.cfg.Funds(), a.log.Component("devnet"))
		opts.Pool, opts.Token0, opts.Token1 = a.net.Pool, a.net.Token0, a.net.Token1
		tree, prover, exec = a.net.Tree, a.net.Prover, a.net.Chain
		a.ledger = ledger.New(a.log.Logger)

	case config.BackendRemote:
		client := asp.NewClient(a.cfg.ASPURL,
			asp.WithRateLimiter(asp.NewRateLimiter(a.cfg.ASPBurst, a.cfg.ASPRequestsPerSecond, time.Second)),
			asp.WithLogger(a.log.Component("asp")),
		)
		signerRPC, err := rpc.DialContext(ctx, a.cfg.SignerURL)
		if err != nil {
			return fmt.Errorf("dial signer: %w", err)
		}
		a.closers = append(a.closers, func() error { signerRPC.Close(); return nil })
		executor, err := chain.Dial(ctx, a.cfg.RPCURL, addrs.Account, chain.NewRemoteSigner(signerRPC),
			chain.WithLogger(a.log.Component("chain")))
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { executor.Close(); return nil })
		tree, prover, exec = client, client, executor

		a.health.RegisterComponent("asp", client.Health)
		a.health.RegisterComponent("chain", func(ctx context.Context) error {
			_, err := executor.ChainID(ctx)
			return err
		})
		if err := a.openLedger(); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown backend %q", a.cfg.Backend)
	}

	a.health.RegisterComponent("tree", func(ctx context.Context) error {
		_, err := tree.TreeSize(ctx)
		return err
	})
	a.health.RegisterComponent("pool", func(ctx context.Context) error {
		ok, err := chain.IsPoolInitialized(ctx, exec, opts.Pool)
		if err == nil && !ok {
			err = errors.New("pool is not initialized")
		}
		return err
	})

	orch, err := orchestrator.New(a.ledger, tree, prover, exec, opts,
		orchestrator.WithLogger(a.log.Logger),
		orchestrator.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.orch = orch
	a.followProgress()

	if a.net != nil {
		if _, err := orch.Initialize(ctx, orchestrator.InitializeRequest{}); err != nil {
			return fmt.Errorf("initialize devnet pool: %w", err)
		}
	}
	return nil
}

func (a *app) openLedger() error {
	var p ledger.Persister
	switch a.cfg.LedgerBackend {
	case config.LedgerLevelDB:
		db, err := ledger.OpenLevelDB(a.cfg.LedgerPath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		p = db
	default:
		p = ledger.JSONFile{Path: a.cfg.LedgerPath}
	}
	l, err := ledger.Open(p, a.log.Logger)
	if err != nil {
		return err
	}
	// Closers run in reverse: the final flush happens before the store closes.
	a.closers = append(a.closers, l.Flush)
	a.ledger = l
	return nil
}

// followProgress logs every pipeline transition and audits terminal ones.
func (a *app) followProgress() {
	events, cancel := a.orch.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			e := a.log.Debug()
			if ev.State.Terminal() {
				e = a.log.Info()
				details := map[string]interface{}{"op_id": ev.OpID, "kind": string(ev.Kind), "state": string(ev.State)}
				if ev.Err != nil {
					details["error"] = ev.Err.Error()
				}
				a.log.Audit("operation", details)
			}
			e.Str("op_id", ev.OpID).Str("kind", string(ev.Kind)).Str("state", string(ev.State)).Msg("progress")
		}
	}()
	a.stopProgress = func() {
		cancel()
		<-done
	}
}

// Close releases every resource in reverse order of acquisition.
func (a *app) Close() error {
	if a.stopProgress != nil {
		a.stopProgress()
		a.stopProgress = nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// asset resolves token0, token1 or a token address to a ledger asset id.
func (a *app) asset(s string) (string, error) {
	a0, a1 := a.orch.Assets()
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "token0":
		return a0, nil
	case "1", "token1":
		return a1, nil
	}
	v, err := felt.Parse(s)
	if err != nil {
		return "", fmt.Errorf("asset %q: %w", s, err)
	}
	id := orchestrator.AssetID(v)
	if id != a0 && id != a1 {
		return "", fmt.Errorf("asset %s is not a pool token", id)
	}
	return id, nil
}

func optionalFelt(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return felt.Parse(s)
}
