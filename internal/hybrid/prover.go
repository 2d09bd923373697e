// prover.go - Hybrid proof orchestrator.
//
// One call assembles the full authentication package: fetch the master
// secret, derive the session values, obtain a registry non-membership
// proof, generate the Groth16 proof, and optionally a BBS+ selective
// disclosure bound to the same commitment and challenge.

package hybrid

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"

	bn254_fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/zunaedsazzad/halp-core/internal/bbs"
	"github.com/zunaedsazzad/halp-core/internal/circuit"
	"github.com/zunaedsazzad/halp-core/internal/curve"
	"github.com/zunaedsazzad/halp-core/internal/issuance"
	"github.com/zunaedsazzad/halp-core/internal/poseidon"
	"github.com/zunaedsazzad/halp-core/internal/registry"
	"github.com/zunaedsazzad/halp-core/internal/vault"
)

// nonceRetryCap bounds session-nonce resampling before giving up.
const nonceRetryCap = 100

var (
	// ErrWitnessOutOfRange reports that no in-range session nonce was
	// found within the retry cap.
	ErrWitnessOutOfRange = errors.New("hybrid: witness values out of comparator range")

	// ErrRecordInconsistent reports a credential record whose stored
	// commitment hash does not match its blinding factor.
	ErrRecordInconsistent = errors.New("hybrid: credential record is inconsistent")
)

// RegistryClient supplies non-membership proofs. The local Registry
// satisfies it; a remote HTTP client can too.
type RegistryClient interface {
	NonMembershipProof(v bn254_fr.Element) (*registry.NonMembershipProof, error)
}

// Prover builds hybrid authentication packages.
type Prover struct {
	vault    *vault.Vault
	registry RegistryClient
	runtime  *circuit.Runtime
	pool     *Pool
}

// NewProver wires the orchestrator. registry may be nil; proofs then fall
// back to the empty-tree witness.
func NewProver(v *vault.Vault, reg RegistryClient, rt *circuit.Runtime, pool *Pool) *Prover {
	if pool == nil {
		pool = NewPool(1)
	}
	return &Prover{vault: v, registry: reg, runtime: rt, pool: pool}
}

// GenerateAuthProof runs the full orchestration for one session.
func (p *Prover) GenerateAuthProof(ctx context.Context, holderID string,
	rec *issuance.Record, ch ChallengeInfo, revealedIndices []int) (*Result, error) {

	ms, err := p.vault.Get(holderID)
	if err != nil {
		return nil, fmt.Errorf("hybrid: fetching master secret: %w", err)
	}
	msBN := curve.ReduceToFrBN(ms.BigInt(new(big.Int)))

	blinding, err := frBNFromHex(rec.BlindingFactor)
	if err != nil {
		return nil, fmt.Errorf("%w: blinding factor: %v", ErrRecordInconsistent, err)
	}
	commitmentHash := poseidon.Hash2(msBN, blinding)
	if FrBNToHex(commitmentHash) != rec.CommitmentHash {
		return nil, ErrRecordInconsistent
	}

	domainHash := poseidon.HashString(ch.Domain)
	credIDHash := poseidon.HashString(rec.Credential.ID)

	sessionNonce, err := sampleSessionNonce(msBN, credIDHash, domainHash)
	if err != nil {
		return nil, err
	}

	challengeFr, err := challengeToFrBN(ch.Value)
	if err != nil {
		return nil, fmt.Errorf("hybrid: bad challenge value: %w", err)
	}

	a := &circuit.Assignment{
		MasterSecret:     msBN,
		SessionNonce:     sessionNonce,
		DomainHash:       domainHash,
		CredentialIDHash: credIDHash,
		BlindingFactor:   blinding,
	}
	nullifier := poseidon.Hash3(credIDHash, sessionNonce, domainHash)
	if err := a.Populate(p.registryProof(nullifier)); err != nil {
		return nil, fmt.Errorf("hybrid: assembling witness: %w", err)
	}
	a.Challenge = challengeFr

	var wire *circuit.WireProof
	err = p.pool.Do(ctx, func() error {
		var perr error
		wire, _, perr = p.runtime.Prove(a)
		return perr
	})
	if err != nil {
		return nil, err
	}

	pkg := &AuthPackage{
		SnarkProof: wire,
		PublicInputs: &PublicSignals{
			Pseudonym:      FrBNToHex(a.Pseudonym),
			Nullifier:      FrBNToHex(a.Nullifier),
			CommitmentHash: FrBNToHex(a.CommitmentHash),
			RegistryRoot:   FrBNToHex(a.RegistryRoot),
			Challenge:      FrBNToHex(a.Challenge),
		},
		CommitmentHash: FrBNToHex(a.CommitmentHash),
		Commitment:     hex.EncodeToString(rec.Commitment),
	}

	if len(revealedIndices) > 0 {
		pkg.BBSProof, err = p.deriveBBSProof(rec, ch, revealedIndices)
		if err != nil {
			return nil, err
		}
	}

	return &Result{
		Package:   pkg,
		Pseudonym: FrBNToHex(a.Pseudonym),
		Nullifier: FrBNToHex(a.Nullifier),
	}, nil
}

// sampleSessionNonce resamples until both derived values fit the
// comparator range.
func sampleSessionNonce(msBN, credIDHash, domainHash bn254_fr.Element) (bn254_fr.Element, error) {
	for attempt := 0; attempt < nonceRetryCap; attempt++ {
		nonce, err := curve.RandomFrBN()
		if err != nil {
			return bn254_fr.Element{}, fmt.Errorf("hybrid: sampling session nonce: %w", err)
		}
		pseudonym := poseidon.Hash3(msBN, nonce, domainHash)
		nullifier := poseidon.Hash3(credIDHash, nonce, domainHash)
		if circuit.FitsComparator(pseudonym) && circuit.FitsComparator(nullifier) {
			return nonce, nil
		}
	}
	return bn254_fr.Element{}, ErrWitnessOutOfRange
}

// registryProof fetches the non-membership proof, falling back to the
// empty-tree witness when the registry is unreachable. A verifier with a
// non-empty tree rejects the fallback on root mismatch, which is the
// intended failure mode.
func (p *Prover) registryProof(nullifier bn254_fr.Element) *registry.NonMembershipProof {
	if p.registry != nil {
		if proof, err := p.registry.NonMembershipProof(nullifier); err == nil {
			return proof
		}
	}
	return registry.EmptyTreeProof(registry.TreeHeight)
}

// deriveBBSProof produces the selective disclosure. Index 0 (the
// commitment) is always revealed; the proof nonce is the challenge value.
func (p *Prover) deriveBBSProof(rec *issuance.Record, ch ChallengeInfo,
	revealedIndices []int) (*BBSProof, error) {

	revealed := append([]int(nil), revealedIndices...)
	hasZero := false
	for _, idx := range revealed {
		if idx == 0 {
			hasZero = true
			break
		}
	}
	if !hasZero {
		revealed = append(revealed, 0)
	}
	sort.Ints(revealed)

	messages, _, err := issuance.MessageVector(rec.Credential, rec.Commitment)
	if err != nil {
		return nil, err
	}
	sig, err := bbs.ParseSignature(rec.Signature)
	if err != nil {
		return nil, fmt.Errorf("hybrid: parsing credential signature: %w", err)
	}
	pk, err := bbs.ParsePublicKey(rec.IssuerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("hybrid: parsing issuer public key: %w", err)
	}
	nonce, err := hex.DecodeString(ch.Value)
	if err != nil {
		return nil, fmt.Errorf("hybrid: bad challenge value: %w", err)
	}

	proofBytes, err := bbs.DeriveProof(pk, sig, messages, revealed, nonce)
	if err != nil {
		return nil, fmt.Errorf("hybrid: deriving disclosure proof: %w", err)
	}

	revealedMessages := make(map[int]string, len(revealed))
	for _, idx := range revealed {
		if idx == 0 {
			revealedMessages[0] = hex.EncodeToString(messages[0])
			continue
		}
		revealedMessages[idx] = string(messages[idx])
	}
	return &BBSProof{
		Proof:            proofBytes,
		RevealedIndices:  revealed,
		RevealedMessages: revealedMessages,
		IssuerPublicKey:  rec.IssuerPublicKey,
		Nonce:            ch.Value,
	}, nil
}

// FrBNToHex renders a BN254 scalar as 64 lower-case hex chars.
func FrBNToHex(e bn254_fr.Element) string {
	b := e.Bytes()
	return hex.EncodeToString(b[:])
}

// frBNFromHex parses a 64-char hex scalar.
func frBNFromHex(s string) (bn254_fr.Element, error) {
	var e bn254_fr.Element
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return e, curve.ErrInvalidScalar
	}
	e.SetBytes(b)
	return e, nil
}

// FrBNFromHex is the exported form used by the verification pipeline.
func FrBNFromHex(s string) (bn254_fr.Element, error) { return frBNFromHex(s) }

// challengeToFrBN reduces the 64-char hex BLS challenge into the BN254
// field for use as a public input.
func challengeToFrBN(s string) (bn254_fr.Element, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) == 0 {
		return bn254_fr.Element{}, curve.ErrInvalidScalar
	}
	return curve.ReduceToFrBN(new(big.Int).SetBytes(b)), nil
}

// ChallengeToFrBN is the exported form used by the verification pipeline.
func ChallengeToFrBN(s string) (bn254_fr.Element, error) { return challengeToFrBN(s) }
