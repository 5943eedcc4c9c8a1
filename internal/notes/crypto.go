// crypto.go - Commitment schemes and field helpers for private notes.

package notes

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

// MaskBits is the width every commitment is truncated to.
const MaskBits = 250

// SecretBits is the width of randomly sampled secrets and nullifiers. It stays
// at least four bits below the BN254 scalar modulus width.
const SecretBits = 250

var (
	// Mask is 2^250 - 1.
	Mask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), MaskBits), big.NewInt(1))

	// FieldModulus is the BN254 scalar field order r.
	FieldModulus = fr.Modulus()

	secretBound = new(big.Int).Lsh(big.NewInt(1), SecretBits)
)

// Commit computes Poseidon(Poseidon(secret, nullifier), amount) & Mask.
// Inputs are reduced modulo the BN254 scalar field first, the same embedding
// the circuit applies to its witnesses.
func Commit(secret, nullifier, amount *big.Int) *big.Int {
	inner, err := poseidon.Hash([]*big.Int{reduce(secret), reduce(nullifier)})
	if err != nil {
		// poseidon.Hash only fails for out-of-field inputs, excluded by reduce.
		panic(fmt.Sprintf("poseidon inner hash: %v", err))
	}
	outer, err := poseidon.Hash([]*big.Int{inner, reduce(amount)})
	if err != nil {
		panic(fmt.Sprintf("poseidon outer hash: %v", err))
	}
	return outer.And(outer, Mask)
}

// CommitLegacy computes the superseded commitment MiMC(secret || nullifier || amount) & Mask,
// each input written as one canonical 32-byte BN254 element.
func CommitLegacy(secret, nullifier, amount *big.Int) *big.Int {
	h := mimc.NewMiMC()
	for _, v := range []*big.Int{secret, nullifier, amount} {
		var e fr.Element
		e.SetBigInt(v)
		b := e.Bytes()
		h.Write(b[:])
	}
	out := new(big.Int).SetBytes(h.Sum(nil))
	return out.And(out, Mask)
}

// RandomFieldElement returns a uniform value in [0, 2^SecretBits).
func RandomFieldElement() (*big.Int, error) {
	v, err := rand.Int(rand.Reader, secretBound)
	if err != nil {
		return nil, fmt.Errorf("failed to sample field element: %w", err)
	}
	return v, nil
}

func reduce(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	if v.Sign() >= 0 && v.Cmp(FieldModulus) < 0 {
		return v
	}
	return new(big.Int).Mod(v, FieldModulus)
}
