// issuance_test.go - Tests for claims encryption, the canonical message
// vector and the anonymous issuance flow.
package issuance

import (
	"encoding/hex"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	bls12381_fr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zunaedsazzad/halp-core/internal/bbs"
	"github.com/zunaedsazzad/halp-core/internal/commitment"
	"github.com/zunaedsazzad/halp-core/internal/curve"
	"github.com/zunaedsazzad/halp-core/internal/params"
)

func TestClaimsRoundtrip(t *testing.T) {
	key := ClaimsKey([]byte("nonce"), []byte("pseudonym"))
	claims := map[string]interface{}{"name": "Alice", "role": "engineer"}

	blob, err := EncryptClaims(key, claims)
	require.NoError(t, err)

	got, err := DecryptClaims(key, blob)
	require.NoError(t, err)
	assert.Equal(t, claims, got)
}

func TestClaimsKeyDerivation(t *testing.T) {
	k1 := ClaimsKey([]byte("nonce-a"), []byte("nym"))
	k2 := ClaimsKey([]byte("nonce-b"), []byte("nym"))
	k3 := ClaimsKey([]byte("nonce-a"), []byte("other"))
	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Equal(t, k1, ClaimsKey([]byte("nonce-a"), []byte("nym")))
}

func TestDecryptClaimsRejectsTamper(t *testing.T) {
	key := ClaimsKey([]byte("nonce"), []byte("pseudonym"))
	blob, err := EncryptClaims(key, map[string]interface{}{"a": "b"})
	require.NoError(t, err)

	// Flip the last ciphertext nibble.
	mutated := []byte(blob)
	if mutated[len(mutated)-1] == '0' {
		mutated[len(mutated)-1] = '1'
	} else {
		mutated[len(mutated)-1] = '0'
	}
	_, err = DecryptClaims(key, string(mutated))
	assert.Error(t, err)

	// Wrong key.
	other := ClaimsKey([]byte("other"), []byte("pseudonym"))
	_, err = DecryptClaims(other, blob)
	assert.Error(t, err)

	// Malformed blob shapes.
	for _, bad := range []string{"", "aa:bb", "zz:zz:zz", "00:11:22:33"} {
		_, err = DecryptClaims(key, bad)
		assert.ErrorIs(t, err, ErrClaimsFormat)
	}
}

func TestClaimsHashStable(t *testing.T) {
	claims := map[string]interface{}{"b": "2", "a": "1"}
	h1, err := ClaimsHash(claims)
	require.NoError(t, err)
	h2, err := ClaimsHash(map[string]interface{}{"a": "1", "b": "2"})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	h3, err := ClaimsHash(map[string]interface{}{"a": "1", "b": "3"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestMessageVector(t *testing.T) {
	vc := &Credential{
		Context:   []string{"https://www.w3.org/ns/credentials/v2"},
		ID:        "urn:uuid:1234",
		Type:      []string{"VerifiableCredential", "TestCredential"},
		Issuer:    "did:halp:issuer:test",
		ValidFrom: "2026-08-24T00:00:00Z",
		Subject: map[string]interface{}{
			"id":   "did:halp:pseudo:abc",
			"name": "Alice",
			"age":  float64(30),
		},
	}

	commitBytes := []byte("48-byte-commitment-placeholder")
	messages, labels, err := MessageVector(vc, commitBytes)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"commitment", "@context", "id", "type", "issuer", "validFrom",
		"subject.id", "subject.age", "subject.name",
	}, labels)
	assert.Equal(t, commitBytes, messages[0])
	assert.Equal(t, []byte("age:30"), messages[7])
	assert.Equal(t, []byte("name:Alice"), messages[8])

	// validUntil joins the vector only when set.
	vc.ValidUntil = "2027-08-24T00:00:00Z"
	_, labels, err = MessageVector(vc, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"@context", "id", "type", "issuer", "validFrom", "validUntil",
		"subject.id", "subject.age", "subject.name",
	}, labels)
}

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	pp, err := params.Generate(8)
	require.NoError(t, err)
	kp, err := bbs.GenerateKeyPair()
	require.NoError(t, err)
	return NewIssuer("did:halp:issuer:test", pp, kp)
}

// buildRequest plays the holder side: commit to a fresh master secret,
// prove the opening against the request nonce, encrypt the claims.
func buildRequest(t *testing.T, is *Issuer, claims map[string]interface{}) (*Request, []byte) {
	t.Helper()

	ms, err := curve.RandomFrBLS()
	require.NoError(t, err)

	attrs, err := curve.EncodeAttribute("attr-payload")
	require.NoError(t, err)
	attrVec := []bls12381_fr.Element{attrs}

	c, r, err := commitment.Commit(is.Params, ms, attrVec, nil)
	require.NoError(t, err)

	nonce := []byte("0123456789abcdef0123456789abcdef")
	credType := "TestCredential"
	proof, err := commitment.ProveWithNonce(is.Params, ms, attrVec, r, c, IssuanceContext(credType), nonce)
	require.NoError(t, err)

	g := curve.G1Generator()
	nym := curve.G1ScalarMul(&g, &ms)
	nymBytes := curve.G1ToBytes(&nym)

	key := ClaimsKey(nonce, nymBytes)
	enc, err := EncryptClaims(key, claims)
	require.NoError(t, err)
	sum, err := ClaimsHash(claims)
	require.NoError(t, err)

	responses := make([]string, len(proof.Responses))
	for i := range proof.Responses {
		responses[i] = proof.Responses[i].BigInt(new(big.Int)).String()
	}
	req := &Request{
		Pseudonym:  hex.EncodeToString(nymBytes),
		Commitment: hex.EncodeToString(c),
		CommitmentProof: WireSchnorrProof{
			Challenge: hex.EncodeToString(curve.ScalarToBytes(&proof.Challenge)),
			Responses: responses,
			T:         hex.EncodeToString(proof.T),
		},
		CredentialType:  credType,
		EncryptedClaims: enc,
		ClaimsHash:      sum,
		Nonce:           hex.EncodeToString(nonce),
		Timestamp:       time.Now().UnixMilli(),
	}
	return req, c
}

func TestIssue(t *testing.T) {
	is := newTestIssuer(t)
	claims := map[string]interface{}{"name": "Alice", "role": "engineer"}
	req, commitBytes := buildRequest(t, is, claims)

	issued, err := is.Issue(req)
	require.NoError(t, err)

	vc := issued.Credential
	assert.Equal(t, is.DID, vc.Issuer)
	assert.Equal(t, []string{"VerifiableCredential", "TestCredential"}, vc.Type)
	assert.Equal(t, "Alice", vc.Subject["name"])
	assert.Equal(t, "did:halp:pseudo:"+req.Pseudonym, vc.Subject["id"])

	// The returned signature verifies over the canonical vector with the
	// commitment bound as message 0.
	messages, labels, err := MessageVector(vc, commitBytes)
	require.NoError(t, err)
	assert.Equal(t, issued.MessageLabels, labels)

	sig, err := bbs.ParseSignature(issued.Signature)
	require.NoError(t, err)
	require.NoError(t, bbs.Verify(is.Keys.Public, messages, sig))
}

func TestIssueRejectsBadPseudonym(t *testing.T) {
	is := newTestIssuer(t)
	req, _ := buildRequest(t, is, map[string]interface{}{"a": "b"})

	req.Pseudonym = "not-hex"
	_, err := is.Issue(req)
	assert.Error(t, err)
}

func TestIssueRejectsTamperedProof(t *testing.T) {
	is := newTestIssuer(t)
	req, _ := buildRequest(t, is, map[string]interface{}{"a": "b"})

	req.CommitmentProof.Responses[0] = "12345"
	_, err := is.Issue(req)
	assert.ErrorIs(t, err, ErrProofRejected)
}

func TestIssueRejectsWrongCredentialType(t *testing.T) {
	is := newTestIssuer(t)
	req, _ := buildRequest(t, is, map[string]interface{}{"a": "b"})

	// The Schnorr context binds the credential type.
	req.CredentialType = "OtherCredential"
	_, err := is.Issue(req)
	assert.ErrorIs(t, err, ErrProofRejected)
}

func TestIssueRejectsSubstitutedNonce(t *testing.T) {
	is := newTestIssuer(t)
	req, _ := buildRequest(t, is, map[string]interface{}{"a": "b"})

	req.Nonce = hex.EncodeToString([]byte("fedcba9876543210fedcba9876543210"))
	_, err := is.Issue(req)
	assert.ErrorIs(t, err, ErrProofRejected)
}

func TestIssueRejectsClaimsMismatch(t *testing.T) {
	is := newTestIssuer(t)
	req, _ := buildRequest(t, is, map[string]interface{}{"a": "b"})

	sum, err := ClaimsHash(map[string]interface{}{"a": "c"})
	require.NoError(t, err)
	req.ClaimsHash = sum
	_, err = is.Issue(req)
	assert.ErrorIs(t, err, ErrClaimsMismatch)
}

func TestStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	s, err := NewStore(path)
	require.NoError(t, err)

	rec := &Record{
		HolderID:   "holder-1",
		Credential: &Credential{ID: "urn:uuid:1", Issuer: "did:halp:issuer:test"},
		Signature:  []byte{1, 2, 3},
		IssuedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.Add(rec))

	got, err := s.Get("urn:uuid:1")
	require.NoError(t, err)
	assert.Equal(t, "holder-1", got.HolderID)

	_, err = s.Get("urn:uuid:missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	assert.Len(t, s.List("holder-1"), 1)
	assert.Empty(t, s.List("holder-2"))

	// A fresh store over the same file sees the persisted record.
	reopened, err := NewStore(path)
	require.NoError(t, err)
	got, err = reopened.Get("urn:uuid:1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got.Signature)

	// A record without a credential id is rejected.
	assert.Error(t, s.Add(&Record{HolderID: "x"}))
}
