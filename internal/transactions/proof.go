package transactions

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/rs/zerolog"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/felt"
	"shieldedamm/internal/txerr"
)

// ProofPrefixLen is the Groth16 point layout: A.x, A.y, B.x0, B.x1, B.y0, B.y1, C.x, C.y.
const ProofPrefixLen = 8

// Public input counts per circuit.
const (
	SwapPublicInputs     = 9
	WithdrawPublicInputs = 5
	MintPublicInputs     = 6
	BurnPublicInputs     = 6
	CollectPublicInputs  = 5
)

// PublicInputCount returns the expected public input count for kind.
func PublicInputCount(kind collab.ProofKind) (int, error) {
	switch kind {
	case collab.ProofSwap:
		return SwapPublicInputs, nil
	case collab.ProofWithdraw:
		return WithdrawPublicInputs, nil
	case collab.ProofMint:
		return MintPublicInputs, nil
	case collab.ProofBurn:
		return BurnPublicInputs, nil
	case collab.ProofCollect:
		return CollectPublicInputs, nil
	}
	return 0, fmt.Errorf("unknown proof kind %q", kind)
}

// FormattedProof is a proof ready to be placed in calldata.
type FormattedProof struct {
	Proof        []*big.Int
	PublicInputs []*big.Int
}

// FormatProof validates the generator output against the fixed layout.
// A count mismatch is a ProofFormatError. Public inputs at or above the
// felt252 prime are reduced and logged; proof points must already be felts.
func FormatProof(kind collab.ProofKind, blob *collab.ProofBlob, log zerolog.Logger) (*FormattedProof, error) {
	op := string(kind)
	want, err := PublicInputCount(kind)
	if err != nil {
		return nil, &txerr.ProofFormatError{Op: op, Reason: err.Error()}
	}
	if blob == nil {
		return nil, &txerr.ProofFormatError{Op: op, Reason: "empty proof blob"}
	}
	if len(blob.Proof) != ProofPrefixLen || len(blob.PublicInputs) != want {
		log.Error().Str("op", op).Int("proof_len", len(blob.Proof)).Int("public_len", len(blob.PublicInputs)).
			Int("want_proof", ProofPrefixLen).Int("want_public", want).Msg("proof layout mismatch")
		return nil, &txerr.ProofFormatError{
			Op: op,
			Reason: fmt.Sprintf("expected %d proof elements and %d public inputs, got %d and %d",
				ProofPrefixLen, want, len(blob.Proof), len(blob.PublicInputs)),
		}
	}

	out := &FormattedProof{
		Proof:        make([]*big.Int, ProofPrefixLen),
		PublicInputs: make([]*big.Int, want),
	}
	for i, p := range blob.Proof {
		if p == nil || felt.Check(p) != nil {
			return nil, &txerr.ProofFormatError{Op: op, Reason: fmt.Sprintf("proof element %d is not a felt252", i)}
		}
		out.Proof[i] = p
	}
	for i, v := range blob.PublicInputs {
		if v == nil || v.Sign() < 0 {
			return nil, &txerr.ProofFormatError{Op: op, Reason: fmt.Sprintf("public input %d is negative or missing", i)}
		}
		r, reduced := felt.Reduce(v)
		if reduced {
			log.Warn().Str("op", op).Int("index", i).Str("original", v.String()).Str("reduced", r.String()).
				Msg("public input exceeds felt252, reduced modulo prime")
		}
		out.PublicInputs[i] = r
	}
	return out, nil
}

// Calldata returns [len(proof), proof..., len(public), public...].
func (f *FormattedProof) Calldata() []*big.Int {
	out := felt.Array(f.Proof)
	return append(out, felt.Array(f.PublicInputs)...)
}

// MerkleWitness encodes a membership proof as circuit signals.
func MerkleWitness(mp *collab.MembershipProof) (pathElements, pathIndices []string) {
	pathElements = make([]string, len(mp.Path))
	for i, p := range mp.Path {
		pathElements[i] = p.String()
	}
	pathIndices = make([]string, len(mp.PathIndices))
	for i, b := range mp.PathIndices {
		pathIndices[i] = strconv.Itoa(int(b))
	}
	return pathElements, pathIndices
}

// Dec formats a value as a decimal signal.
func Dec(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Signal reads a decimal (or 0x hex) scalar signal from a proof input map.
func Signal(m map[string]interface{}, name string) (*big.Int, error) {
	raw, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("missing signal %q", name)
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case *big.Int:
		return v, nil
	case fmt.Stringer:
		s = v.String()
	default:
		return nil, fmt.Errorf("signal %q has unsupported type %T", name, raw)
	}
	v, ok := parseSignal(s)
	if !ok {
		return nil, fmt.Errorf("signal %q: invalid number %q", name, s)
	}
	return v, nil
}

func parseSignal(s string) (*big.Int, bool) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}

// Signals reads several scalar signals in order.
func Signals(m map[string]interface{}, names ...string) ([]*big.Int, error) {
	out := make([]*big.Int, len(names))
	for i, n := range names {
		v, err := Signal(m, n)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
