// Package orchestrator drives every private operation through the same
// pipeline: membership proof, note validation, witness, proof, formatting,
// submission and confirmation, and finally the ledger update.
package orchestrator

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/ledger"
	"shieldedamm/internal/metrics"
	"shieldedamm/internal/retry"
	"shieldedamm/internal/transactions/initialize"
)

// Options are the pool coordinates and pipeline limits.
type Options struct {
	Pool   *big.Int
	Token0 *big.Int
	Token1 *big.Int

	TickSpacing int32

	SwapProofTimeout time.Duration
	ProofTimeout     time.Duration
	ConfirmTimeout   time.Duration
	// CallTimeout bounds every tree oracle and chain read.
	CallTimeout time.Duration

	// IndexPoll bounds the search for an output's tree index when the
	// receipt carries no Deposit event for it.
	IndexPoll retry.Policy
}

// DefaultOptions returns the limits used in production.
func DefaultOptions(pool, token0, token1 *big.Int) Options {
	return Options{
		Pool:             pool,
		Token0:           token0,
		Token1:           token1,
		TickSpacing:      initialize.DefaultTickSpacing,
		SwapProofTimeout: 10 * time.Minute,
		ProofTimeout:     2 * time.Minute,
		ConfirmTimeout:   5 * time.Minute,
		CallTimeout:      30 * time.Second,
		IndexPoll:        retry.DefaultPolicy,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

// WithMetrics records pipeline metrics into mc.
func WithMetrics(mc *metrics.Collector) Option { return func(o *Orchestrator) { o.metrics = mc } }

// Orchestrator runs operations concurrently against one ledger.
type Orchestrator struct {
	ledger *ledger.Ledger
	tree   collab.TreeOracle
	prover collab.ProofGenerator
	chain  collab.ChainExecutor
	opts   Options

	progress *broadcaster
	active   sync.Map // op id -> struct{}, operations in flight
	metrics  *metrics.Collector
	log      zerolog.Logger
}

// New wires an orchestrator.
func New(l *ledger.Ledger, tree collab.TreeOracle, prover collab.ProofGenerator, exec collab.ChainExecutor, opts Options, options ...Option) (*Orchestrator, error) {
	if l == nil || tree == nil || prover == nil || exec == nil {
		return nil, errors.New("orchestrator needs a ledger, tree oracle, proof generator and chain executor")
	}
	if opts.Pool == nil || opts.Token0 == nil || opts.Token1 == nil {
		return nil, errors.New("orchestrator needs pool and token addresses")
	}
	if opts.Token0.Cmp(opts.Token1) == 0 {
		return nil, errors.New("pool tokens must differ")
	}
	defaults := DefaultOptions(opts.Pool, opts.Token0, opts.Token1)
	if opts.TickSpacing == 0 {
		opts.TickSpacing = defaults.TickSpacing
	}
	if opts.SwapProofTimeout == 0 {
		opts.SwapProofTimeout = defaults.SwapProofTimeout
	}
	if opts.ProofTimeout == 0 {
		opts.ProofTimeout = defaults.ProofTimeout
	}
	if opts.ConfirmTimeout == 0 {
		opts.ConfirmTimeout = defaults.ConfirmTimeout
	}
	if opts.CallTimeout == 0 {
		opts.CallTimeout = defaults.CallTimeout
	}
	if opts.IndexPoll.MaxAttempts == 0 {
		opts.IndexPoll = defaults.IndexPoll
	}

	o := &Orchestrator{
		ledger:   l,
		tree:     tree,
		prover:   prover,
		chain:    exec,
		opts:     opts,
		progress: newBroadcaster(),
		log:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(o)
	}
	o.log = o.log.With().Str("component", "orchestrator").Logger()
	return o, nil
}

// Subscribe returns a channel of every state transition of every operation
// and a cancel func that closes it. Slow subscribers miss events; they never
// stall an operation.
func (o *Orchestrator) Subscribe() (<-chan Progress, func()) {
	return o.progress.subscribe()
}

// Ledger returns the underlying ledger.
func (o *Orchestrator) Ledger() *ledger.Ledger { return o.ledger }

// AssetID is the ledger asset id of a pool token: its 0x address.
func AssetID(token *big.Int) string { return felt.Hex(token) }

// Assets returns the asset ids of token0 and token1.
func (o *Orchestrator) Assets() (string, string) {
	return AssetID(o.opts.Token0), AssetID(o.opts.Token1)
}

// tokenFor resolves an asset id to its token and reports whether it is token0.
func (o *Orchestrator) tokenFor(asset string) (token *big.Int, isToken0 bool, ok bool) {
	a0, a1 := o.Assets()
	switch asset {
	case a0:
		return o.opts.Token0, true, true
	case a1:
		return o.opts.Token1, false, true
	}
	return nil, false, false
}

func (o *Orchestrator) newOpID() string { return uuid.NewString() }

func (o *Orchestrator) inFlight(opID string) bool {
	_, ok := o.active.Load(opID)
	return ok
}

func (o *Orchestrator) recordBalances() {
	if o.metrics == nil {
		return
	}
	a0, a1 := o.Assets()
	for _, a := range []string{a0, a1} {
		f, _ := new(big.Float).SetInt(o.ledger.TotalBalance(a)).Float64()
		o.metrics.RecordBalance(a, f)
	}
	o.metrics.RecordQuarantined(len(o.ledger.Quarantined()))
}
