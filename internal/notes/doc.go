// Package notes implements the private note model of the shielded pool.
//
// Overview:
//   - A Note is a commitment-hiding UTXO: (secret, nullifier, amount) plus its commitment
//   - Commitments are Poseidon(Poseidon(secret, nullifier), amount) over BN254, masked to 250 bits
//   - The mask keeps every commitment a valid felt252 so it can travel as Starknet calldata
//   - Nullifiers are revealed on spend; commitments are appended to the membership tree on creation
//
// Security Model:
//   - Secrets and nullifiers are drawn from crypto/rand and are 250 bits wide
//   - Poseidon parameters are the circom ones used by the spend circuits
//   - CommitLegacy reproduces the superseded MiMC scheme and is only used to diagnose old notes
package notes
