// Package devnet is an in-process stand-in for the three external
// collaborators of the pipeline: the commitment tree, the prover and the pool
// contract. It runs real Groth16 proofs over BN254 with gnark so the whole
// pipeline can be exercised end to end without a network.
package devnet
