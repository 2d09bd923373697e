// assignment.go - Host-side witness assembly.

package circuit

import (
	"fmt"
	"math/big"

	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/zunaedsazzad/halp-core/internal/poseidon"
	"github.com/zunaedsazzad/halp-core/internal/registry"
)

// Assignment is the fully-populated witness for one authentication
// session. Public values are recomputed from the private ones by Populate
// so a mismatch never reaches the prover.
type Assignment struct {
	Pseudonym      fr.Element
	Nullifier      fr.Element
	CommitmentHash fr.Element
	RegistryRoot   fr.Element
	Challenge      fr.Element

	MasterSecret        fr.Element
	SessionNonce        fr.Element
	DomainHash          fr.Element
	CredentialIDHash    fr.Element
	BlindingFactor      fr.Element
	LowNullifier        fr.Element
	LowNullifierNextVal fr.Element
	LowNullifierNextIdx uint32
	Siblings            [MerkleHeight]fr.Element
	PathIndices         [MerkleHeight]int
}

// FitsComparator reports whether a value is inside the comparator range.
func FitsComparator(v fr.Element) bool {
	return v.BigInt(new(big.Int)).BitLen() <= ComparatorBits
}

// Populate derives the public signals from the private witness and the
// registry proof, then checks the comparator bounds. The challenge is set
// separately by the caller.
func (a *Assignment) Populate(proof *registry.NonMembershipProof) error {
	a.Pseudonym = poseidon.Hash3(a.MasterSecret, a.SessionNonce, a.DomainHash)
	a.Nullifier = poseidon.Hash3(a.CredentialIDHash, a.SessionNonce, a.DomainHash)
	a.CommitmentHash = poseidon.Hash2(a.MasterSecret, a.BlindingFactor)

	if len(proof.Siblings) != MerkleHeight || len(proof.PathIndices) != MerkleHeight {
		return fmt.Errorf("circuit: registry proof depth %d, want %d", len(proof.Siblings), MerkleHeight)
	}
	a.RegistryRoot = proof.Root
	a.LowNullifier = proof.LowValue
	a.LowNullifierNextVal = proof.LowNextValue
	a.LowNullifierNextIdx = proof.LowNextIdx
	copy(a.Siblings[:], proof.Siblings)
	copy(a.PathIndices[:], proof.PathIndices)

	for _, v := range []fr.Element{a.Nullifier, a.LowNullifier, a.LowNullifierNextVal} {
		if !FitsComparator(v) {
			return ErrWitnessOutOfRange
		}
	}
	return nil
}

// ErrWitnessOutOfRange signals a comparator-bearing value above 2^252; the
// caller resamples the session nonce and retries.
var ErrWitnessOutOfRange = fmt.Errorf("circuit: witness value exceeds %d bits", ComparatorBits)

// PublicInputs renders the public signals as ordered decimal strings.
func (a *Assignment) PublicInputs() *PublicInputs {
	dec := func(e fr.Element) string { return e.BigInt(new(big.Int)).String() }
	return &PublicInputs{
		Pseudonym:      dec(a.Pseudonym),
		Nullifier:      dec(a.Nullifier),
		CommitmentHash: dec(a.CommitmentHash),
		RegistryRoot:   dec(a.RegistryRoot),
		Challenge:      dec(a.Challenge),
	}
}

// circuit converts the assignment into the frontend witness struct.
func (a *Assignment) circuit() *AuthCircuit {
	v := func(e fr.Element) frontend.Variable { return e.BigInt(new(big.Int)) }
	c := &AuthCircuit{
		Pseudonym:           v(a.Pseudonym),
		Nullifier:           v(a.Nullifier),
		CommitmentHash:      v(a.CommitmentHash),
		RegistryRoot:        v(a.RegistryRoot),
		Challenge:           v(a.Challenge),
		MasterSecret:        v(a.MasterSecret),
		SessionNonce:        v(a.SessionNonce),
		DomainHash:          v(a.DomainHash),
		CredentialIDHash:    v(a.CredentialIDHash),
		BlindingFactor:      v(a.BlindingFactor),
		LowNullifier:        v(a.LowNullifier),
		LowNullifierNextVal: v(a.LowNullifierNextVal),
		LowNullifierNextIdx: a.LowNullifierNextIdx,
	}
	for i := 0; i < MerkleHeight; i++ {
		c.MerkleSiblings[i] = v(a.Siblings[i])
		c.MerklePathIndices[i] = a.PathIndices[i]
	}
	return c
}
