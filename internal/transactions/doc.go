// Package transactions holds what every pool operation shares: proof blob
// formatting and the Merkle witness encoding. The per-operation proof request
// and calldata builders live in the subpackages.
package transactions
