package devnet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/rs/zerolog"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/transactions/liquidity"
	"shieldedamm/internal/transactions/swap"
	"shieldedamm/internal/transactions/withdraw"
)

// ErrUnknownProof is returned by Verify for proofs this prover never issued.
var ErrUnknownProof = errors.New("invalid proof: not issued by this prover")

type circuitDef struct {
	empty   func() frontend.Circuit
	publics []string
	witness func(*collab.ProofRequest) (frontend.Circuit, error)
}

var circuits = map[collab.ProofKind]circuitDef{
	collab.ProofSwap: {
		empty:   func() frontend.Circuit { return &swap.CircuitSwap{} },
		publics: swap.PublicSignals,
		witness: func(r *collab.ProofRequest) (frontend.Circuit, error) { return swap.BuildWitness(r) },
	},
	collab.ProofWithdraw: {
		empty:   func() frontend.Circuit { return &withdraw.CircuitWithdraw{} },
		publics: withdraw.PublicSignals,
		witness: func(r *collab.ProofRequest) (frontend.Circuit, error) { return withdraw.BuildWitness(r) },
	},
	collab.ProofMint: {
		empty:   func() frontend.Circuit { return liquidity.NewMintCircuit() },
		publics: liquidity.PositionSignals,
		witness: liquidity.BuildWitness,
	},
	collab.ProofBurn: {
		empty:   func() frontend.Circuit { return liquidity.NewBurnCircuit() },
		publics: liquidity.PositionSignals,
		witness: liquidity.BuildWitness,
	},
	collab.ProofCollect: {
		empty:   func() frontend.Circuit { return &liquidity.CircuitCollect{} },
		publics: liquidity.CollectSignals,
		witness: liquidity.BuildWitness,
	},
}

type keys struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

type issued struct {
	kind  collab.ProofKind
	proof groth16.Proof
}

// Prover generates Groth16 proofs over BN254 and remembers every proof it
// issued, keyed by the felt encoding handed to the chain. BN254 coordinates
// do not fit in a felt252, so the encoding is lossy and the chain verifies
// against the remembered proof.
type Prover struct {
	mu     sync.Mutex
	keys   map[collab.ProofKind]*keys
	issued map[string]issued

	delay   time.Duration
	failErr error
	tamper  func(*collab.ProofBlob)
	calls   int

	log zerolog.Logger
}

// NewProver returns a prover with lazily compiled circuits.
func NewProver(log zerolog.Logger) *Prover {
	return &Prover{
		keys:   make(map[collab.ProofKind]*keys),
		issued: make(map[string]issued),
		log:    log,
	}
}

// SetDelay makes every proof take at least d.
func (p *Prover) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// FailNext makes the next GenerateProof return err.
func (p *Prover) FailNext(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failErr = err
}

// SetTamper installs a hook applied to every blob before it is returned.
func (p *Prover) SetTamper(f func(*collab.ProofBlob)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tamper = f
}

// Calls returns the number of GenerateProof invocations.
func (p *Prover) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *Prover) setup(kind collab.ProofKind) (*keys, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if k, ok := p.keys[kind]; ok {
		return k, nil
	}
	def, ok := circuits[kind]
	if !ok {
		return nil, fmt.Errorf("no circuit for proof kind %q", kind)
	}
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, def.empty())
	if err != nil {
		return nil, fmt.Errorf("compile %s circuit: %w", kind, err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("setup %s circuit: %w", kind, err)
	}
	k := &keys{ccs: ccs, pk: pk, vk: vk}
	p.keys[kind] = k
	p.log.Debug().Str("kind", string(kind)).Int("constraints", ccs.GetNbConstraints()).Msg("circuit compiled")
	return k, nil
}

// GenerateProof implements collab.ProofGenerator.
func (p *Prover) GenerateProof(ctx context.Context, req *collab.ProofRequest) (*collab.ProofBlob, error) {
	p.mu.Lock()
	p.calls++
	delay, failErr, tamper := p.delay, p.failErr, p.tamper
	p.failErr = nil
	p.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	k, err := p.setup(req.Kind)
	if err != nil {
		return nil, err
	}
	def := circuits[req.Kind]
	assignment, err := def.witness(req)
	if err != nil {
		return nil, fmt.Errorf("%s witness: %w", req.Kind, err)
	}
	full, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("%s witness: %w", req.Kind, err)
	}
	proof, err := groth16.Prove(k.ccs, k.pk, full)
	if err != nil {
		return nil, fmt.Errorf("%s prove: %w", req.Kind, err)
	}

	blob := &collab.ProofBlob{Proof: proofFelts(proof)}
	if blob.PublicInputs, err = signalValues(req.Public, def.publics); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.issued[proofKey(blob.Proof)] = issued{kind: req.Kind, proof: proof}
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tamper != nil {
		tamper(blob)
	}
	p.log.Debug().Str("kind", string(req.Kind)).Msg("proof generated")
	return blob, nil
}

// Verify checks a felt-encoded proof against the public inputs the chain saw.
func (p *Prover) Verify(kind collab.ProofKind, proofFelts, publicInputs []*big.Int) error {
	p.mu.Lock()
	rec, ok := p.issued[proofKey(proofFelts)]
	k := p.keys[kind]
	p.mu.Unlock()

	if !ok || rec.kind != kind || k == nil {
		return ErrUnknownProof
	}
	pub, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return err
	}
	values := make(chan any, len(publicInputs))
	for _, v := range publicInputs {
		values <- v
	}
	close(values)
	if err := pub.Fill(len(publicInputs), 0, values); err != nil {
		return fmt.Errorf("invalid proof: public inputs: %w", err)
	}
	if err := groth16.Verify(rec.proof, k.vk, pub); err != nil {
		return fmt.Errorf("invalid proof: %w", err)
	}
	return nil
}

func signalValues(m map[string]interface{}, names []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(names))
	for i, n := range names {
		s, ok := m[n].(string)
		if !ok {
			return nil, fmt.Errorf("missing public signal %q", n)
		}
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("public signal %q: invalid number %q", n, s)
		}
		out[i] = v
	}
	return out, nil
}

// proofFelts lays out A, B, C as eight felts reduced modulo the felt252 prime.
func proofFelts(proof groth16.Proof) []*big.Int {
	pr := proof.(*groth16_bn254.Proof)
	coords := []*big.Int{
		pr.Ar.X.BigInt(new(big.Int)),
		pr.Ar.Y.BigInt(new(big.Int)),
		pr.Bs.X.A0.BigInt(new(big.Int)),
		pr.Bs.X.A1.BigInt(new(big.Int)),
		pr.Bs.Y.A0.BigInt(new(big.Int)),
		pr.Bs.Y.A1.BigInt(new(big.Int)),
		pr.Krs.X.BigInt(new(big.Int)),
		pr.Krs.Y.BigInt(new(big.Int)),
	}
	for i, c := range coords {
		coords[i], _ = felt.Reduce(c)
	}
	return coords
}

func proofKey(vs []*big.Int) string {
	return strings.Join(felt.HexAll(vs), ",")
}
