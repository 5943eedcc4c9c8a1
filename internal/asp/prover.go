package asp

import (
	"context"
	"fmt"
	"math/big"
	"net/http"

	"shieldedamm/internal/collab"
)

type proofBlobResponse struct {
	FullProofWithHints []Number `json:"full_proof_with_hints"`
	PublicInputs       []Number `json:"public_inputs"`
}

// GenerateProof posts the circuit inputs to /api/proof/{kind}. Public and
// private inputs are merged into one flat JSON object keyed by signal name.
func (c *Client) GenerateProof(ctx context.Context, req *collab.ProofRequest) (*collab.ProofBlob, error) {
	body := make(map[string]interface{}, len(req.Public)+len(req.Private))
	for k, v := range req.Public {
		body[k] = v
	}
	for k, v := range req.Private {
		if _, dup := body[k]; dup {
			return nil, fmt.Errorf("proof input %q is both public and private", k)
		}
		body[k] = v
	}

	var resp proofBlobResponse
	if err := c.do(ctx, http.MethodPost, "/api/proof/"+string(req.Kind), body, &resp); err != nil {
		return nil, err
	}
	blob := &collab.ProofBlob{
		Proof:        make([]*big.Int, len(resp.FullProofWithHints)),
		PublicInputs: make([]*big.Int, len(resp.PublicInputs)),
	}
	for i, v := range resp.FullProofWithHints {
		blob.Proof[i] = v.Int
	}
	for i, v := range resp.PublicInputs {
		blob.PublicInputs[i] = v.Int
	}
	return blob, nil
}
