package devnet

import (
	"math/big"

	"github.com/rs/zerolog"
)

// Default devnet addresses.
var (
	DefaultPool    = big.NewInt(0x9001)
	DefaultAccount = big.NewInt(0xa11ce)
	DefaultToken0  = big.NewInt(0x7001)
	DefaultToken1  = big.NewInt(0x7002)
)

// Network wires a tree, a prover and a chain together.
type Network struct {
	Tree   *Tree
	Prover *Prover
	Chain  *Chain

	Pool    *big.Int
	Account *big.Int
	Token0  *big.Int
	Token1  *big.Int
}

// NewNetwork returns a devnet where the account holds `funds` of both tokens
// and the pool holds the same reserve to pay out withdrawals of swapped value.
func NewNetwork(funds *big.Int, log zerolog.Logger) *Network {
	tree := NewTree()
	prover := NewProver(log.With().Str("component", "devnet-prover").Logger())
	n := &Network{
		Tree:    tree,
		Prover:  prover,
		Chain:   NewChain(DefaultPool, DefaultAccount, tree, prover, log.With().Str("component", "devnet-chain").Logger()),
		Pool:    DefaultPool,
		Account: DefaultAccount,
		Token0:  DefaultToken0,
		Token1:  DefaultToken1,
	}
	if funds != nil && funds.Sign() > 0 {
		for _, token := range []*big.Int{n.Token0, n.Token1} {
			n.Chain.Mint(token, n.Account, funds)
			n.Chain.Mint(token, n.Pool, funds)
		}
	}
	return n
}
