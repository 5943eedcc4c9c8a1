// note.go - Note type for the shielded pool.
//
// A Note is a private claim on `Amount` units of `AssetID`. It is spendable only
// once it has a tree index and its recomputed commitment equals the leaf stored there.

package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Note represents a private, commitment-hiding UTXO.
type Note struct {
	Secret     *big.Int  // Random blinding value, never revealed
	Nullifier  *big.Int  // Revealed on spend to prevent double-spending
	Amount     *big.Int  // Value held by the note (u128 by contract)
	Commitment *big.Int  // Commit(Secret, Nullifier, Amount)
	AssetID    string    // Token address the note is denominated in, empty if unknown
	TreeIndex  *uint64   // Leaf index in the membership tree, nil until indexed
	CreatedAt  time.Time // Local creation time
}

// NewNote creates a fresh note with random secret and nullifier.
// The tree index is left unset until the deposit is observed on-chain.
func NewNote(amount *big.Int, assetID string) (*Note, error) {
	if _, err := ToU128(amount); err != nil {
		return nil, fmt.Errorf("invalid note amount: %w", err)
	}
	secret, err := RandomFieldElement()
	if err != nil {
		return nil, err
	}
	nullifier, err := RandomFieldElement()
	if err != nil {
		return nil, err
	}
	amt := new(big.Int).Set(amount)
	return &Note{
		Secret:     secret,
		Nullifier:  nullifier,
		Amount:     amt,
		Commitment: Commit(secret, nullifier, amt),
		AssetID:    assetID,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Recompute returns Commit(Secret, Nullifier, Amount) without touching the stored commitment.
func (n *Note) Recompute() *big.Int {
	return Commit(n.Secret, n.Nullifier, n.Amount)
}

// Indexed reports whether the note has a tree index.
func (n *Note) Indexed() bool {
	return n.TreeIndex != nil
}

// WithTreeIndex sets the tree index.
func (n *Note) WithTreeIndex(index uint64) *Note {
	n.TreeIndex = &index
	return n
}

// Clone returns a deep copy.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := &Note{
		Secret:     cloneInt(n.Secret),
		Nullifier:  cloneInt(n.Nullifier),
		Amount:     cloneInt(n.Amount),
		Commitment: cloneInt(n.Commitment),
		AssetID:    n.AssetID,
		CreatedAt:  n.CreatedAt,
	}
	if n.TreeIndex != nil {
		idx := *n.TreeIndex
		c.TreeIndex = &idx
	}
	return c
}

// CommitmentHex is the commitment formatted as 0x-prefixed hex.
func (n *Note) CommitmentHex() string {
	return Hex(n.Commitment)
}

// noteJSON is the persisted form. Big integers are decimal strings so they
// round-trip exactly.
type noteJSON struct {
	Secret     string    `json:"secret"`
	Nullifier  string    `json:"nullifier"`
	Amount     string    `json:"amount"`
	Commitment string    `json:"commitment"`
	AssetID    string    `json:"asset_id,omitempty"`
	TreeIndex  *uint64   `json:"tree_index,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// MarshalJSON implements json.Marshaler.
func (n *Note) MarshalJSON() ([]byte, error) {
	return json.Marshal(noteJSON{
		Secret:     decimal(n.Secret),
		Nullifier:  decimal(n.Nullifier),
		Amount:     decimal(n.Amount),
		Commitment: decimal(n.Commitment),
		AssetID:    n.AssetID,
		TreeIndex:  n.TreeIndex,
		CreatedAt:  n.CreatedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Note) UnmarshalJSON(data []byte) error {
	var raw noteJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := []struct {
		name string
		src  string
		dst  **big.Int
	}{
		{"secret", raw.Secret, &n.Secret},
		{"nullifier", raw.Nullifier, &n.Nullifier},
		{"amount", raw.Amount, &n.Amount},
		{"commitment", raw.Commitment, &n.Commitment},
	}
	for _, f := range fields {
		if f.src == "" {
			return fmt.Errorf("note field %s is missing", f.name)
		}
		v, err := ParseHexOrDecimal(f.src)
		if err != nil {
			return fmt.Errorf("note field %s: %w", f.name, err)
		}
		*f.dst = v
	}
	if n.Amount.Sign() < 0 {
		return errors.New("note amount is negative")
	}
	n.AssetID = raw.AssetID
	n.TreeIndex = raw.TreeIndex
	n.CreatedAt = raw.CreatedAt
	return nil
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
