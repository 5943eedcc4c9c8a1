package devnet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/iden3/go-iden3-crypto/poseidon"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/notes"
)

const (
	// TreeDepth is the depth of the commitment tree.
	TreeDepth = 20

	// MaxTreeSize is the maximum number of leaves.
	MaxTreeSize = 1 << TreeDepth
)

// Tree is an append-only Poseidon Merkle tree of note commitments. Node
// hashes are masked to 250 bits so every root is a valid felt.
type Tree struct {
	mu sync.RWMutex

	root   *big.Int
	leaves []*big.Int
	byLeaf map[string]uint64

	// nodes[level][index]
	nodes [TreeDepth]map[uint64]*big.Int

	zeroHashes [TreeDepth + 1]*big.Int
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	t := &Tree{byLeaf: make(map[string]uint64)}
	t.zeroHashes[0] = new(big.Int)
	for i := 1; i <= TreeDepth; i++ {
		t.zeroHashes[i] = hashPair(t.zeroHashes[i-1], t.zeroHashes[i-1])
	}
	for i := range t.nodes {
		t.nodes[i] = make(map[uint64]*big.Int)
	}
	t.root = t.zeroHashes[TreeDepth]
	return t
}

// Root returns the current root.
func (t *Tree) Root() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.root)
}

// Append adds a commitment and returns its leaf index and the new root.
func (t *Tree) Append(commitment *big.Int) (uint64, *big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	index := uint64(len(t.leaves))
	if index >= MaxTreeSize {
		return 0, nil, fmt.Errorf("tree capacity exceeded: size=%d, max=%d", index, MaxTreeSize)
	}
	leaf := new(big.Int).Set(commitment)
	t.leaves = append(t.leaves, leaf)
	if _, dup := t.byLeaf[leaf.String()]; !dup {
		t.byLeaf[leaf.String()] = index
	}
	t.updatePath(index, leaf)
	return index, new(big.Int).Set(t.root), nil
}

func (t *Tree) updatePath(index uint64, leaf *big.Int) {
	current := leaf
	for level := 0; level < TreeDepth; level++ {
		t.nodes[level][index] = current
		if index%2 == 0 {
			current = hashPair(current, t.sibling(level, index+1))
		} else {
			current = hashPair(t.nodes[level][index-1], current)
		}
		index /= 2
	}
	t.root = current
}

func (t *Tree) sibling(level int, index uint64) *big.Int {
	if h, ok := t.nodes[level][index]; ok {
		return h
	}
	return t.zeroHashes[level]
}

// MembershipProof implements collab.TreeOracle.
func (t *Tree) MembershipProof(_ context.Context, index uint64) (*collab.MembershipProof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index >= uint64(len(t.leaves)) {
		return nil, fmt.Errorf("leaf %d out of bounds (size=%d)", index, len(t.leaves))
	}
	mp := &collab.MembershipProof{
		Root:        new(big.Int).Set(t.root),
		Leaf:        new(big.Int).Set(t.leaves[index]),
		Path:        make([]*big.Int, TreeDepth),
		PathIndices: make([]uint8, TreeDepth),
	}
	cur := index
	for level := 0; level < TreeDepth; level++ {
		if cur%2 == 0 {
			mp.Path[level] = new(big.Int).Set(t.sibling(level, cur+1))
		} else {
			mp.Path[level] = new(big.Int).Set(t.nodes[level][cur-1])
			mp.PathIndices[level] = 1
		}
		cur /= 2
	}
	return mp, nil
}

// TreeSize implements collab.TreeOracle.
func (t *Tree) TreeSize(context.Context) (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return uint64(len(t.leaves)), nil
}

// FindIndexByCommitment implements collab.TreeOracle.
func (t *Tree) FindIndexByCommitment(_ context.Context, commitment *big.Int) (uint64, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.byLeaf[commitment.String()]
	return idx, ok, nil
}

// VerifyMembership recomputes the root from a proof.
func VerifyMembership(mp *collab.MembershipProof) bool {
	if mp == nil || len(mp.Path) != len(mp.PathIndices) {
		return false
	}
	current := mp.Leaf
	for i, sib := range mp.Path {
		if mp.PathIndices[i] == 0 {
			current = hashPair(current, sib)
		} else {
			current = hashPair(sib, current)
		}
	}
	return current.Cmp(mp.Root) == 0
}

func hashPair(left, right *big.Int) *big.Int {
	h, err := poseidon.Hash([]*big.Int{left, right})
	if err != nil {
		// Inputs are masked to 250 bits and always inside the field.
		panic(fmt.Sprintf("poseidon node hash: %v", err))
	}
	return h.And(h, notes.Mask)
}
