// commitment_test.go - Tests for the Pedersen commitment and the Schnorr
// opening proof.
package commitment

import (
	"testing"

	bls12381_fr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zunaedsazzad/halp-core/internal/curve"
	"github.com/zunaedsazzad/halp-core/internal/params"
)

func setup(t *testing.T, k int) (*params.PublicParameters, bls12381_fr.Element, []bls12381_fr.Element) {
	t.Helper()
	pp, err := params.Generate(k)
	require.NoError(t, err)

	ms, err := curve.RandomFrBLS()
	require.NoError(t, err)

	attrs := make([]bls12381_fr.Element, 2)
	for i := range attrs {
		attrs[i], err = curve.EncodeAttribute("attr-" + string(rune('a'+i)))
		require.NoError(t, err)
	}
	return pp, ms, attrs
}

func TestCommitDeterministicWithFixedBlinding(t *testing.T) {
	pp, ms, attrs := setup(t, 4)

	r, err := curve.RandomFrBLS()
	require.NoError(t, err)

	c1, r1, err := Commit(pp, ms, attrs, &r)
	require.NoError(t, err)
	assert.True(t, r1.Equal(&r))

	c2, _, err := Commit(pp, ms, attrs, &r)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)

	// Fresh blinding, different commitment.
	c3, r3, err := Commit(pp, ms, attrs, nil)
	require.NoError(t, err)
	assert.False(t, r3.Equal(&r))
	assert.NotEqual(t, c1, c3)
}

func TestCommitRejectsTooManyAttributes(t *testing.T) {
	pp, ms, _ := setup(t, 1)

	attrs := make([]bls12381_fr.Element, 2)
	_, _, err := Commit(pp, ms, attrs, nil)
	assert.ErrorIs(t, err, ErrTooManyAttributes)
}

func TestProveVerify(t *testing.T) {
	pp, ms, attrs := setup(t, 4)

	c, r, err := Commit(pp, ms, attrs, nil)
	require.NoError(t, err)

	ctx := Context("did:halp:alice", "schema-1", []byte("nonce"))
	proof, err := Prove(pp, ms, attrs, r, c, ctx)
	require.NoError(t, err)

	require.NoError(t, Verify(pp, proof, ctx, len(attrs)))
}

func TestVerifyRejectsWrongContext(t *testing.T) {
	pp, ms, attrs := setup(t, 4)

	c, r, err := Commit(pp, ms, attrs, nil)
	require.NoError(t, err)

	ctx := Context("did:halp:alice", "schema-1", []byte("nonce"))
	proof, err := Prove(pp, ms, attrs, r, c, ctx)
	require.NoError(t, err)

	other := Context("did:halp:alice", "schema-2", []byte("nonce"))
	assert.Error(t, Verify(pp, proof, other, len(attrs)))
}

func TestVerifyRejectsWrongResponseCount(t *testing.T) {
	pp, ms, attrs := setup(t, 4)

	c, r, err := Commit(pp, ms, attrs, nil)
	require.NoError(t, err)

	ctx := Context("did:halp:alice", "schema-1", []byte("nonce"))
	proof, err := Prove(pp, ms, attrs, r, c, ctx)
	require.NoError(t, err)

	// numAttrs off by one must be rejected before any group math.
	assert.Error(t, Verify(pp, proof, ctx, len(attrs)+1))
	assert.Error(t, Verify(pp, proof, ctx, len(attrs)-1))
}

func TestVerifyRejectsTamperedResponse(t *testing.T) {
	pp, ms, attrs := setup(t, 4)

	c, r, err := Commit(pp, ms, attrs, nil)
	require.NoError(t, err)

	ctx := Context("did:halp:alice", "schema-1", []byte("nonce"))
	proof, err := Prove(pp, ms, attrs, r, c, ctx)
	require.NoError(t, err)

	var one bls12381_fr.Element
	one.SetOne()
	proof.Responses[0].Add(&proof.Responses[0], &one)
	assert.Error(t, Verify(pp, proof, ctx, len(attrs)))
}

func TestVerifyRejectsSwappedCommitment(t *testing.T) {
	pp, ms, attrs := setup(t, 4)

	c, r, err := Commit(pp, ms, attrs, nil)
	require.NoError(t, err)
	ctx := Context("did:halp:alice", "schema-1", []byte("nonce"))
	proof, err := Prove(pp, ms, attrs, r, c, ctx)
	require.NoError(t, err)

	// A proof for commitment C must not verify for a different C'.
	other, _, err := Commit(pp, ms, attrs, nil)
	require.NoError(t, err)
	proof.C = other
	assert.Error(t, Verify(pp, proof, ctx, len(attrs)))
}

func TestProveWithNonceIsBound(t *testing.T) {
	pp, ms, attrs := setup(t, 4)

	c, r, err := Commit(pp, ms, attrs, nil)
	require.NoError(t, err)
	ctx := Context("did:halp:alice", "schema-1", []byte("nonce"))

	proof, err := ProveWithNonce(pp, ms, attrs, r, c, ctx, []byte("fixed nonce"))
	require.NoError(t, err)
	assert.Equal(t, []byte("fixed nonce"), proof.Nonce)
	require.NoError(t, Verify(pp, proof, ctx, len(attrs)))

	// Substituting the nonce breaks the Fiat-Shamir challenge.
	proof.Nonce = []byte("other nonce")
	assert.Error(t, Verify(pp, proof, ctx, len(attrs)))
}
