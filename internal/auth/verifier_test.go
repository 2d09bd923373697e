// verifier_test.go - End-to-end tests of the hybrid verification pipeline:
// enrollment, issuance, proof generation and the full verify sequence.
package auth

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	bls12381_fr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/zunaedsazzad/halp-core/internal/bbs"
	"github.com/zunaedsazzad/halp-core/internal/circuit"
	"github.com/zunaedsazzad/halp-core/internal/commitment"
	"github.com/zunaedsazzad/halp-core/internal/curve"
	"github.com/zunaedsazzad/halp-core/internal/hybrid"
	"github.com/zunaedsazzad/halp-core/internal/issuance"
	"github.com/zunaedsazzad/halp-core/internal/params"
	"github.com/zunaedsazzad/halp-core/internal/poseidon"
	"github.com/zunaedsazzad/halp-core/internal/registry"
	"github.com/zunaedsazzad/halp-core/internal/vault"
)

// harness wires every component of the system for one holder with one
// issued credential.
type harness struct {
	vault      *vault.Vault
	runtime    *circuit.Runtime
	registry   *registry.Registry
	challenges *ChallengeStore
	verifier   *Verifier
	prover     *hybrid.Prover
	record     *issuance.Record
}

const testHolder = "holder-e2e"

func newHarness(t *testing.T) *harness {
	t.Helper()

	keyring.MockInit()
	v := vault.New(vault.StaticKeyProvider{Material: []byte("e2e-test-key")})
	if _, err := v.Generate(testHolder); err != nil {
		require.ErrorIs(t, err, vault.ErrAlreadyExists)
	}
	ms, err := v.Get(testHolder)
	require.NoError(t, err)

	// Issuance: the holder commits to the master secret and proves the
	// opening against the request nonce.
	pp, err := params.Generate(8)
	require.NoError(t, err)
	kp, err := bbs.GenerateKeyPair()
	require.NoError(t, err)
	issuer := issuance.NewIssuer("did:halp:issuer:e2e", pp, kp)

	attrs, err := curve.EncodeAttribute("membership")
	require.NoError(t, err)
	attrVec := []bls12381_fr.Element{attrs}
	c, r, err := commitment.Commit(pp, ms, attrVec, nil)
	require.NoError(t, err)

	nonce := []byte("e2e-request-nonce-0123456789abcd")
	credType := "MembershipCredential"
	proof, err := commitment.ProveWithNonce(pp, ms, attrVec, r, c,
		issuance.IssuanceContext(credType), nonce)
	require.NoError(t, err)

	g := curve.G1Generator()
	nym := curve.G1ScalarMul(&g, &ms)
	nymBytes := curve.G1ToBytes(&nym)

	claims := map[string]interface{}{"name": "Alice", "tier": "gold"}
	key := issuance.ClaimsKey(nonce, nymBytes)
	enc, err := issuance.EncryptClaims(key, claims)
	require.NoError(t, err)
	sum, err := issuance.ClaimsHash(claims)
	require.NoError(t, err)

	responses := make([]string, len(proof.Responses))
	for i := range proof.Responses {
		responses[i] = proof.Responses[i].BigInt(new(big.Int)).String()
	}
	issued, err := issuer.Issue(&issuance.Request{
		Pseudonym:  hex.EncodeToString(nymBytes),
		Commitment: hex.EncodeToString(c),
		CommitmentProof: issuance.WireSchnorrProof{
			Challenge: hex.EncodeToString(curve.ScalarToBytes(&proof.Challenge)),
			Responses: responses,
			T:         hex.EncodeToString(proof.T),
		},
		CredentialType:  credType,
		EncryptedClaims: enc,
		ClaimsHash:      sum,
		Nonce:           hex.EncodeToString(nonce),
		Timestamp:       time.Now().UnixMilli(),
	})
	require.NoError(t, err)

	// The record fixes the SNARK-side binding at issuance time.
	msBN := curve.ReduceToFrBN(ms.BigInt(new(big.Int)))
	blindingBN := curve.ReduceToFrBN(r.BigInt(new(big.Int)))
	rec := &issuance.Record{
		HolderID:        testHolder,
		Credential:      issued.Credential,
		Signature:       issued.Signature,
		MessageLabels:   issued.MessageLabels,
		Commitment:      c,
		CommitmentHash:  hybrid.FrBNToHex(poseidon.Hash2(msBN, blindingBN)),
		BlindingFactor:  hybrid.FrBNToHex(blindingBN),
		IssuerPublicKey: kp.Public.Bytes(),
		IssuedAt:        time.Now().UTC(),
	}

	rt, err := circuit.NewEphemeralRuntime()
	require.NoError(t, err)

	// Window of 2 keeps the previous root valid across one insert, which
	// the nullifier-reuse scenario relies on.
	reg := registry.New(2)
	challenges := NewChallengeStore(time.Minute, time.Hour, func() string {
		return hybrid.FrBNToHex(reg.Root())
	})
	t.Cleanup(challenges.Close)

	return &harness{
		vault:      v,
		runtime:    rt,
		registry:   reg,
		challenges: challenges,
		verifier:   NewVerifier(challenges, rt, reg),
		prover:     hybrid.NewProver(v, reg, rt, hybrid.NewPool(1)),
		record:     rec,
	}
}

// authRequest issues a fresh challenge, generates a hybrid proof for it,
// and shapes the verify request.
func (h *harness) authRequest(t *testing.T, revealed []int) (*VerifyRequest, *Challenge) {
	t.Helper()
	ch, err := h.challenges.Issue("example.com")
	require.NoError(t, err)
	return h.requestFor(t, ch, revealed), ch
}

func (h *harness) requestFor(t *testing.T, ch *Challenge, revealed []int) *VerifyRequest {
	t.Helper()
	res, err := h.prover.GenerateAuthProof(context.Background(), testHolder, h.record,
		hybrid.ChallengeInfo{ID: ch.ID, Value: ch.Value, Domain: ch.Domain}, revealed)
	require.NoError(t, err)
	return &VerifyRequest{
		ChallengeID: ch.ID,
		Challenge:   ch.Value,
		Domain:      ch.Domain,
		Timestamp:   time.Now().UnixMilli(),
		Pseudonym:   res.Pseudonym,
		Nullifier:   res.Nullifier,
		HybridProof: res.Package,
	}
}

func TestVerifyHybridAuth(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup is slow")
	}
	h := newHarness(t)

	t.Run("happy path with disclosure", func(t *testing.T) {
		req, ch := h.authRequest(t, []int{0, 2})

		session, details, err := h.verifier.VerifyHybridAuth(req)
		require.NoError(t, err)
		assert.True(t, details.SnarkValid)
		assert.True(t, details.BBSValid)
		assert.True(t, details.BindingValid)
		assert.True(t, details.RegistryRootValid)
		assert.True(t, details.NullifierFresh)
		assert.Equal(t, req.Pseudonym, session.Pseudonym)
		assert.Equal(t, "example.com", session.Domain)

		// The challenge is consumed and the nullifier registered.
		_, ok := h.challenges.Get(ch.ID)
		assert.False(t, ok)
		nullifier, err := hybrid.FrBNFromHex(req.Nullifier)
		require.NoError(t, err)
		assert.True(t, h.registry.Has(nullifier))
	})

	t.Run("second session gets a fresh nullifier", func(t *testing.T) {
		req, _ := h.authRequest(t, nil)
		_, details, err := h.verifier.VerifyHybridAuth(req)
		require.NoError(t, err)
		assert.True(t, details.NullifierFresh)
	})

	t.Run("nullifier reuse", func(t *testing.T) {
		req, _ := h.authRequest(t, nil)

		// Register the nullifier between proof generation and submission.
		// The proof's root stays inside the freshness window, so the
		// pipeline reaches the reuse check.
		nullifier, err := hybrid.FrBNFromHex(req.Nullifier)
		require.NoError(t, err)
		_, _, err = h.registry.Insert(nullifier, "example.com", req.Pseudonym, time.Now())
		require.NoError(t, err)

		_, details, err := h.verifier.VerifyHybridAuth(req)
		assert.Equal(t, KindNullifierReused, KindOf(err))
		assert.True(t, details.RegistryRootValid)
		assert.False(t, details.NullifierFresh)
	})

	t.Run("unknown challenge", func(t *testing.T) {
		req, _ := h.authRequest(t, nil)
		req.ChallengeID = "ch_bogus"
		_, _, err := h.verifier.VerifyHybridAuth(req)
		assert.Equal(t, KindInvalidChallenge, KindOf(err))
	})

	t.Run("challenge value mismatch", func(t *testing.T) {
		req, _ := h.authRequest(t, nil)
		req.Challenge = "deadbeef"
		_, _, err := h.verifier.VerifyHybridAuth(req)
		assert.Equal(t, KindInvalidChallenge, KindOf(err))
	})

	t.Run("expired challenge", func(t *testing.T) {
		expiring := NewChallengeStore(time.Millisecond, time.Hour, func() string {
			return hybrid.FrBNToHex(h.registry.Root())
		})
		defer expiring.Close()
		verifier := NewVerifier(expiring, h.runtime, h.registry)

		ch, err := expiring.Issue("example.com")
		require.NoError(t, err)
		req := h.requestFor(t, ch, nil)

		time.Sleep(5 * time.Millisecond)
		_, _, err = verifier.VerifyHybridAuth(req)
		assert.Equal(t, KindChallengeExpired, KindOf(err))
	})

	t.Run("missing proof structure", func(t *testing.T) {
		req, _ := h.authRequest(t, nil)
		req.HybridProof = nil
		_, _, err := h.verifier.VerifyHybridAuth(req)
		assert.Equal(t, KindInvalidInput, KindOf(err))
	})

	t.Run("top-level session values disagree", func(t *testing.T) {
		req, _ := h.authRequest(t, nil)
		req.Nullifier = req.Pseudonym
		_, _, err := h.verifier.VerifyHybridAuth(req)
		assert.Equal(t, KindInvalidInput, KindOf(err))
	})

	t.Run("proof bound to a different challenge", func(t *testing.T) {
		first, _ := h.authRequest(t, nil)
		other, err := h.challenges.Issue("example.com")
		require.NoError(t, err)

		first.ChallengeID = other.ID
		first.Challenge = other.Value
		_, details, err := h.verifier.VerifyHybridAuth(first)
		assert.Equal(t, KindInvalidProof, KindOf(err))
		assert.False(t, details.SnarkValid)
	})

	t.Run("tampered snark proof", func(t *testing.T) {
		req, _ := h.authRequest(t, nil)
		wire := req.HybridProof.SnarkProof
		wire.PiA, wire.PiC = wire.PiC, wire.PiA
		_, details, err := h.verifier.VerifyHybridAuth(req)
		assert.Equal(t, KindInvalidProof, KindOf(err))
		assert.False(t, details.SnarkValid)
	})

	t.Run("malformed snark proof", func(t *testing.T) {
		req, _ := h.authRequest(t, nil)
		req.HybridProof.SnarkProof.Protocol = "plonk"
		_, _, err := h.verifier.VerifyHybridAuth(req)
		assert.Equal(t, KindInvalidInput, KindOf(err))
	})

	t.Run("commitment hash mismatch", func(t *testing.T) {
		req, _ := h.authRequest(t, nil)
		req.HybridProof.CommitmentHash = req.HybridProof.PublicInputs.Pseudonym
		_, details, err := h.verifier.VerifyHybridAuth(req)
		assert.Equal(t, KindBindingMismatch, KindOf(err))
		assert.True(t, details.SnarkValid)
		assert.False(t, details.BindingValid)
	})

	t.Run("revealed commitment mismatch", func(t *testing.T) {
		req, _ := h.authRequest(t, []int{0})
		req.HybridProof.Commitment = "00" + req.HybridProof.Commitment[2:]
		_, details, err := h.verifier.VerifyHybridAuth(req)
		assert.Equal(t, KindBindingMismatch, KindOf(err))
		assert.True(t, details.BBSValid)
	})

	t.Run("tampered disclosure", func(t *testing.T) {
		req, _ := h.authRequest(t, []int{0, 2})
		req.HybridProof.BBSProof.RevealedMessages[2] = "urn:uuid:forged"
		_, details, err := h.verifier.VerifyHybridAuth(req)
		assert.Equal(t, KindInvalidProof, KindOf(err))
		assert.False(t, details.BBSValid)
	})

	t.Run("stale registry root", func(t *testing.T) {
		// A prover without registry access falls back to the empty-tree
		// witness; against a populated registry it fails on the root.
		offline := hybrid.NewProver(h.vault, nil, h.runtime, hybrid.NewPool(1))
		ch, err := h.challenges.Issue("example.com")
		require.NoError(t, err)
		res, err := offline.GenerateAuthProof(context.Background(), testHolder, h.record,
			hybrid.ChallengeInfo{ID: ch.ID, Value: ch.Value, Domain: ch.Domain}, nil)
		require.NoError(t, err)

		req := &VerifyRequest{
			ChallengeID: ch.ID,
			Challenge:   ch.Value,
			Domain:      ch.Domain,
			Timestamp:   time.Now().UnixMilli(),
			Pseudonym:   res.Pseudonym,
			Nullifier:   res.Nullifier,
			HybridProof: res.Package,
		}
		_, details, err := h.verifier.VerifyHybridAuth(req)
		assert.Equal(t, KindRegistryRootMismatch, KindOf(err))
		assert.True(t, details.SnarkValid)
		assert.False(t, details.RegistryRootValid)
	})
}
