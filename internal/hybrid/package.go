// package.go - Wire types for the hybrid authentication package.
//
// Field elements travel as 64-char lower-case hex; the Groth16 layer
// consumes decimal strings, so PublicSignals converts at the boundary.

package hybrid

import (
	"github.com/zunaedsazzad/halp-core/internal/circuit"
)

// PublicSignals carries the five public inputs as 64-char hex, in circuit
// order.
type PublicSignals struct {
	Pseudonym      string `json:"pseudonym"`
	Nullifier      string `json:"nullifier"`
	CommitmentHash string `json:"commitmentHash"`
	RegistryRoot   string `json:"registryRoot"`
	Challenge      string `json:"challenge"`
}

// Decimal converts the hex signals into the prover-facing decimal form,
// rejecting non-hex or truncated values.
func (s *PublicSignals) Decimal() (*circuit.PublicInputs, error) {
	out := &circuit.PublicInputs{}
	src := []string{s.Pseudonym, s.Nullifier, s.CommitmentHash, s.RegistryRoot, s.Challenge}
	dst := []*string{&out.Pseudonym, &out.Nullifier, &out.CommitmentHash, &out.RegistryRoot, &out.Challenge}
	for i := range src {
		e, err := frBNFromHex(src[i])
		if err != nil {
			return nil, err
		}
		*dst[i] = e.String()
	}
	return out, nil
}

// BBSProof is the optional selective-disclosure part of the package.
// RevealedMessages carries message 0 (the commitment) hex-encoded; every
// other revealed message is its literal string.
type BBSProof struct {
	Proof            []byte         `json:"proof"`
	RevealedIndices  []int          `json:"revealedIndices"`
	RevealedMessages map[int]string `json:"revealedMessages"`
	IssuerPublicKey  []byte         `json:"issuerPublicKey"`
	Nonce            string         `json:"nonce"`
}

// AuthPackage is the hybrid proof as it travels to the verifier.
// Commitment carries the Pedersen commitment hex so the verifier can
// check the BBS+ binding without holding the credential record.
type AuthPackage struct {
	SnarkProof     *circuit.WireProof `json:"snarkProof"`
	PublicInputs   *PublicSignals     `json:"publicInputs"`
	BBSProof       *BBSProof          `json:"bbsProof,omitempty"`
	CommitmentHash string             `json:"commitmentHash"`
	Commitment     string             `json:"commitment,omitempty"`
}

// Result is what the orchestrator hands back to the holder: the package
// plus the session values the verify request repeats at the top level.
type Result struct {
	Package   *AuthPackage `json:"package"`
	Pseudonym string       `json:"pseudonym"`
	Nullifier string       `json:"nullifier"`
}

// ChallengeInfo is the verifier-issued challenge as seen by the prover.
type ChallengeInfo struct {
	ID     string
	Value  string // 64-char hex Fr
	Domain string
}
