package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/rpc"

	"shieldedamm/internal/felt"
)

// RemoteSigner delegates signing to a wallet daemon exposing signer_signInvoke.
// Private keys never enter this process.
type RemoteSigner struct {
	client *rpc.Client
}

// NewRemoteSigner wraps a client connected to the signer daemon.
func NewRemoteSigner(c *rpc.Client) *RemoteSigner {
	return &RemoteSigner{client: c}
}

// SignInvoke implements Signer.
func (s *RemoteSigner) SignInvoke(ctx context.Context, account, nonce *big.Int, calldata []*big.Int) (map[string]interface{}, error) {
	var tx map[string]interface{}
	err := s.client.CallContext(ctx, &tx, "signer_signInvoke", map[string]interface{}{
		"sender_address": felt.Hex(account),
		"nonce":          felt.Hex(nonce),
		"calldata":       felt.HexAll(calldata),
	})
	return tx, err
}
