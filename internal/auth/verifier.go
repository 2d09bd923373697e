// verifier.go - The hybrid verification pipeline.
//
// Eight strictly-ordered steps; the first failure short-circuits with a
// typed error. The registry insert happens only after every other check
// passed, so a rejected request never burns a nullifier.

package auth

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/zunaedsazzad/halp-core/internal/bbs"
	"github.com/zunaedsazzad/halp-core/internal/circuit"
	"github.com/zunaedsazzad/halp-core/internal/hybrid"
	"github.com/zunaedsazzad/halp-core/internal/registry"
)

// VerifyRequest is the inbound hybrid verification body.
type VerifyRequest struct {
	ChallengeID string              `json:"challengeId"`
	Challenge   string              `json:"challenge"`
	Domain      string              `json:"domain"`
	Timestamp   int64               `json:"timestamp"`
	Pseudonym   string              `json:"pseudonym"`
	Nullifier   string              `json:"nullifier"`
	HybridProof *hybrid.AuthPackage `json:"hybridProof"`
}

// VerificationDetails reports which pipeline stages passed.
type VerificationDetails struct {
	SnarkValid        bool `json:"snarkValid"`
	BBSValid          bool `json:"bbsValid"`
	BindingValid      bool `json:"bindingValid"`
	RegistryRootValid bool `json:"registryRootValid"`
	NullifierFresh    bool `json:"nullifierFresh"`
}

// SessionRecord is the pseudonymous outcome of a successful verification.
type SessionRecord struct {
	Pseudonym  string    `json:"pseudonym"`
	Domain     string    `json:"domain"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

// Verifier runs the pipeline against a challenge store, the Groth16
// runtime and the nullifier registry.
type Verifier struct {
	Challenges *ChallengeStore
	Runtime    *circuit.Runtime
	Registry   *registry.Registry
}

// NewVerifier wires the pipeline.
func NewVerifier(challenges *ChallengeStore, rt *circuit.Runtime, reg *registry.Registry) *Verifier {
	return &Verifier{Challenges: challenges, Runtime: rt, Registry: reg}
}

// VerifyHybridAuth executes the pipeline. On failure the returned details
// show how far the request got.
func (v *Verifier) VerifyHybridAuth(req *VerifyRequest) (*SessionRecord, *VerificationDetails, error) {
	details := &VerificationDetails{}

	// Step 1: challenge validity.
	ch, ok := v.Challenges.Get(req.ChallengeID)
	if !ok {
		return nil, details, errf(KindInvalidChallenge, "unknown challenge id")
	}
	if ch.Value != req.Challenge || ch.Domain != req.Domain {
		return nil, details, errf(KindInvalidChallenge, "challenge mismatch")
	}
	if time.Now().UnixMilli() >= ch.ExpiresAt {
		return nil, details, errf(KindChallengeExpired, "challenge expired")
	}

	// Step 2: structure.
	pkg := req.HybridProof
	if pkg == nil || pkg.SnarkProof == nil || pkg.PublicInputs == nil {
		return nil, details, errf(KindInvalidInput, "incomplete hybrid proof")
	}
	signals := pkg.PublicInputs
	decimal, err := signals.Decimal()
	if err != nil {
		return nil, details, errf(KindInvalidInput, "undecodable public inputs")
	}
	if req.Pseudonym != signals.Pseudonym || req.Nullifier != signals.Nullifier {
		return nil, details, errf(KindInvalidInput, "top-level session values disagree with public inputs")
	}

	// Step 3: SNARK. The challenge public input must be the reduction of
	// the session challenge.
	expectedChallenge, err := hybrid.ChallengeToFrBN(req.Challenge)
	if err != nil {
		return nil, details, errf(KindInvalidInput, "undecodable challenge value")
	}
	if hybrid.FrBNToHex(expectedChallenge) != signals.Challenge {
		return nil, details, errf(KindInvalidProof, "proof not bound to this challenge")
	}
	if err := v.Runtime.Verify(pkg.SnarkProof, decimal); err != nil {
		if kindOfCircuitErr(err) == KindInvalidInput {
			return nil, details, errf(KindInvalidInput, "malformed proof")
		}
		return nil, details, errf(KindInvalidProof, "snark verification failed")
	}
	details.SnarkValid = true

	// Step 4: BBS+ selective disclosure, when present.
	if pkg.BBSProof != nil {
		if err := v.verifyBBS(pkg.BBSProof, req.Challenge); err != nil {
			return nil, details, err
		}
	}
	details.BBSValid = true

	// Step 5: binding.
	if err := v.verifyBinding(pkg, signals); err != nil {
		return nil, details, err
	}
	details.BindingValid = true

	// Step 6: registry-root freshness.
	claimedRoot, err := hybrid.FrBNFromHex(signals.RegistryRoot)
	if err != nil {
		return nil, details, errf(KindInvalidInput, "undecodable registry root")
	}
	if !v.Registry.RootIsRecent(claimedRoot) {
		return nil, details, errf(KindRegistryRootMismatch, "registry root is not current")
	}
	details.RegistryRootValid = true

	// Step 7: nullifier freshness.
	nullifier, err := hybrid.FrBNFromHex(signals.Nullifier)
	if err != nil {
		return nil, details, errf(KindInvalidInput, "undecodable nullifier")
	}
	if v.Registry.Has(nullifier) {
		return nil, details, errf(KindNullifierReused, "nullifier already registered")
	}
	details.NullifierFresh = true

	// Step 8: register, consume, emit the session.
	now := time.Now().UTC()
	if _, _, err := v.Registry.Insert(nullifier, req.Domain, signals.Pseudonym, now); err != nil {
		if errors.Is(err, registry.ErrAlreadyPresent) {
			details.NullifierFresh = false
			return nil, details, errf(KindNullifierReused, "nullifier already registered")
		}
		return nil, details, errf(KindInternal, "registry insert failed")
	}
	v.Challenges.Consume(ch.ID)

	return &SessionRecord{
		Pseudonym:  signals.Pseudonym,
		Domain:     req.Domain,
		VerifiedAt: now,
	}, details, nil
}

// verifyBBS checks the selective-disclosure proof under the issuer key
// with the session challenge as nonce.
func (v *Verifier) verifyBBS(bp *hybrid.BBSProof, challengeHex string) error {
	if bp.Nonce != challengeHex {
		return errf(KindInvalidProof, "disclosure proof not bound to this challenge")
	}
	pk, err := bbs.ParsePublicKey(bp.IssuerPublicKey)
	if err != nil {
		return errf(KindInvalidInput, "undecodable issuer public key")
	}
	nonce, err := hex.DecodeString(bp.Nonce)
	if err != nil {
		return errf(KindInvalidInput, "undecodable disclosure nonce")
	}
	revealed := make(map[int][]byte, len(bp.RevealedMessages))
	for idx, msg := range bp.RevealedMessages {
		if idx == 0 {
			b, err := hex.DecodeString(msg)
			if err != nil {
				return errf(KindInvalidInput, "undecodable revealed commitment")
			}
			revealed[0] = b
			continue
		}
		revealed[idx] = []byte(msg)
	}
	if err := bbs.VerifyProof(pk, bp.Proof, revealed, nonce); err != nil {
		return errf(KindInvalidProof, "bbs verification failed")
	}
	return nil
}

// verifyBinding asserts the commitment agreement across proofs: the SNARK
// public commitmentHash equals the package's, and when a disclosure is
// present its revealed message 0 equals the package commitment.
func (v *Verifier) verifyBinding(pkg *hybrid.AuthPackage, signals *hybrid.PublicSignals) error {
	stated, err := hybrid.FrBNFromHex(pkg.CommitmentHash)
	if err != nil {
		return errf(KindInvalidInput, "undecodable commitment hash")
	}
	public, err := hybrid.FrBNFromHex(signals.CommitmentHash)
	if err != nil {
		return errf(KindInvalidInput, "undecodable commitment hash")
	}
	if !stated.Equal(&public) {
		return errf(KindBindingMismatch, "commitment hash disagreement")
	}

	if pkg.BBSProof == nil {
		return nil
	}
	m0, ok := pkg.BBSProof.RevealedMessages[0]
	if !ok {
		return errf(KindBindingMismatch, "disclosure does not reveal the commitment")
	}
	if pkg.Commitment == "" || m0 != pkg.Commitment {
		return errf(KindBindingMismatch, "revealed commitment disagreement")
	}
	return nil
}

// kindOfCircuitErr separates malformed-proof decode failures from honest
// verification failures.
func kindOfCircuitErr(err error) Kind {
	if errors.Is(err, circuit.ErrMalformedProof) {
		return KindInvalidInput
	}
	return KindInvalidProof
}
