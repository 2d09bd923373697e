// circuit.go - The halp-auth arithmetic circuit.
//
// Five public inputs in fixed order: pseudonym, nullifier, commitmentHash,
// registryRoot, challenge. The private witness opens the session
// derivations and the non-membership path of the nullifier. Poseidon
// in-circuit uses the same width-2 permutation and Merkle-Damgard fold as
// internal/poseidon; the two must never diverge.

package circuit

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash"
	"github.com/consensys/gnark/std/math/cmp"
	"github.com/consensys/gnark/std/permutation/poseidon2"
)

// MerkleHeight mirrors the registry tree height.
const MerkleHeight = 20

// ComparatorBits bounds every comparison-bearing value. Host witness
// assembly resamples the session nonce until derived values fit; widening
// this without changing the circuit breaks soundness of the comparator.
const ComparatorBits = 252

// CircuitID names this circuit on the wire.
const CircuitID = "halp-auth-v1"

// AuthCircuit is the Groth16 statement for one authentication session.
type AuthCircuit struct {
	// Public inputs; declaration order fixes the wire order.
	Pseudonym      frontend.Variable `gnark:",public"`
	Nullifier      frontend.Variable `gnark:",public"`
	CommitmentHash frontend.Variable `gnark:",public"`
	RegistryRoot   frontend.Variable `gnark:",public"`
	Challenge      frontend.Variable `gnark:",public"`

	// Private witness
	MasterSecret         frontend.Variable
	SessionNonce         frontend.Variable
	DomainHash           frontend.Variable
	CredentialIDHash     frontend.Variable
	BlindingFactor       frontend.Variable
	LowNullifier         frontend.Variable
	LowNullifierNextVal  frontend.Variable
	LowNullifierNextIdx  frontend.Variable
	MerkleSiblings       [MerkleHeight]frontend.Variable
	MerklePathIndices    [MerkleHeight]frontend.Variable
}

func (c *AuthCircuit) Define(api frontend.API) error {
	p, err := poseidon2.NewPoseidon2FromParameters(api, 2, 6, 50)
	if err != nil {
		return err
	}
	hasher := hash.NewMerkleDamgardHasher(api, p, 0)

	hash2 := func(a, b frontend.Variable) frontend.Variable {
		hasher.Reset()
		hasher.Write(a, b)
		return hasher.Sum()
	}
	hash3 := func(a, b, x frontend.Variable) frontend.Variable {
		hasher.Reset()
		hasher.Write(a, b, x)
		return hasher.Sum()
	}

	// Step 1: pseudonym = Poseidon3(masterSecret, sessionNonce, domainHash)
	api.AssertIsEqual(c.Pseudonym, hash3(c.MasterSecret, c.SessionNonce, c.DomainHash))

	// Step 2: nullifier = Poseidon3(credentialIdHash, sessionNonce, domainHash)
	api.AssertIsEqual(c.Nullifier, hash3(c.CredentialIDHash, c.SessionNonce, c.DomainHash))

	// Step 3: commitmentHash = Poseidon2(masterSecret, blindingFactor)
	api.AssertIsEqual(c.CommitmentHash, hash2(c.MasterSecret, c.BlindingFactor))

	// Step 4: non-membership of the nullifier against registryRoot.
	// Range-bound the compared values so the comparator stays sound.
	api.ToBinary(c.Nullifier, ComparatorBits)
	api.ToBinary(c.LowNullifier, ComparatorBits)
	api.ToBinary(c.LowNullifierNextVal, ComparatorBits)

	// Both compared values are range-bound to 252 bits above, so any
	// difference fits 2^252 - 1, the widest bound the comparator accepts
	// on BN254.
	bound := new(big.Int).Lsh(big.NewInt(1), ComparatorBits)
	bound.Sub(bound, big.NewInt(1))
	comparator := cmp.NewBoundedComparator(api, bound, false)

	// lowNullifier < nullifier
	comparator.AssertIsLess(c.LowNullifier, c.Nullifier)

	// lowNext == 0 (tail) or nullifier < lowNext
	isTail := api.IsZero(c.LowNullifierNextVal)
	below := comparator.IsLess(c.Nullifier, c.LowNullifierNextVal)
	api.AssertIsEqual(api.Or(isTail, below), 1)

	// Low-nullifier leaf hashes up the supplied path to the root.
	cur := hash3(c.LowNullifier, c.LowNullifierNextVal, c.LowNullifierNextIdx)
	for i := 0; i < MerkleHeight; i++ {
		api.AssertIsBoolean(c.MerklePathIndices[i])
		left := api.Select(c.MerklePathIndices[i], c.MerkleSiblings[i], cur)
		right := api.Select(c.MerklePathIndices[i], cur, c.MerkleSiblings[i])
		cur = hash2(left, right)
	}
	api.AssertIsEqual(c.RegistryRoot, cur)

	// Step 5: wire the challenge into the system without a semantic
	// constraint.
	api.Mul(c.Challenge, c.Challenge)

	return nil
}
