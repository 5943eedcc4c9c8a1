package asp

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"shieldedamm/internal/collab"
	"shieldedamm/internal/notes"
)

type proofResponse struct {
	Root        Number   `json:"root"`
	Leaf        Number   `json:"leaf"`
	Path        []Number `json:"path"`
	PathIndices []uint8  `json:"path_indices"`
}

// TreeInfo is the /deposit/info response.
type TreeInfo struct {
	Root      Number `json:"root"`
	LeafCount uint64 `json:"leaf_count"`
	Depth     int    `json:"depth"`
}

type indexResponse struct {
	Index  uint64 `json:"index"`
	Found  bool   `json:"found"`
	Source string `json:"source,omitempty"`
}

// MembershipProof fetches the inclusion proof of the leaf at index.
func (c *Client) MembershipProof(ctx context.Context, index uint64) (*collab.MembershipProof, error) {
	var resp proofResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/deposit/proof/%d", index), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Path) != len(resp.PathIndices) {
		return nil, fmt.Errorf("membership proof for %d: %d path elements but %d indices",
			index, len(resp.Path), len(resp.PathIndices))
	}
	mp := &collab.MembershipProof{
		Root:        resp.Root.Int,
		Leaf:        resp.Leaf.Int,
		Path:        make([]*big.Int, len(resp.Path)),
		PathIndices: resp.PathIndices,
	}
	for i, p := range resp.Path {
		mp.Path[i] = p.Int
	}
	return mp, nil
}

// Info returns root, leaf count and depth of the deposit tree.
func (c *Client) Info(ctx context.Context) (*TreeInfo, error) {
	var info TreeInfo
	if err := c.do(ctx, http.MethodGet, "/deposit/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// TreeSize returns the number of leaves.
func (c *Client) TreeSize(ctx context.Context) (uint64, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.LeafCount, nil
}

// FindIndexByCommitment looks up the leaf index of a commitment.
func (c *Client) FindIndexByCommitment(ctx context.Context, commitment *big.Int) (uint64, bool, error) {
	var resp indexResponse
	err := c.do(ctx, http.MethodGet, "/deposit/index/"+notes.Hex(commitment), nil, &resp)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return resp.Index, resp.Found, nil
}
