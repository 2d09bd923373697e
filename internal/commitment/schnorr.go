// schnorr.go - Sigma protocol proving knowledge of a commitment opening,
// made non-interactive with Fiat-Shamir.
//
// The announcement T has the same linear structure as C; the challenge
// binds (C, T, ctx, nonce) through SHA-256 under a fixed DST. Response
// order is fixed: [s_ms, s_a1..s_ak, s_r].

package commitment

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"math/big"

	bls12381_fr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/zunaedsazzad/halp-core/internal/curve"
	"github.com/zunaedsazzad/halp-core/internal/params"
)

// ChallengeDST prefixes the Fiat-Shamir hash input.
const ChallengeDST = "BBS_COMMITMENT_CHALLENGE_V1"

const nonceSize = 32

// SchnorrProof is a non-interactive proof of knowledge of the opening
// (ms, a1..an, r) of commitment C under context ctx.
type SchnorrProof struct {
	C         []byte
	T         []byte
	Challenge bls12381_fr.Element
	Responses []bls12381_fr.Element
	Nonce     []byte
}

// Context derives the issuance context hash SHA256(did || schemaID || nonce).
func Context(did, schemaID string, nonce []byte) []byte {
	h := sha256.New()
	h.Write([]byte(did))
	h.Write([]byte(schemaID))
	h.Write(nonce)
	return h.Sum(nil)
}

// Prove generates a Schnorr proof for commitment c (compressed bytes) with
// opening (ms, attrs, r) under context ctx, sampling a fresh nonce.
func Prove(pp *params.PublicParameters, ms bls12381_fr.Element, attrs []bls12381_fr.Element,
	r bls12381_fr.Element, c []byte, ctx []byte) (*SchnorrProof, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("sampling nonce: %w", err)
	}
	return ProveWithNonce(pp, ms, attrs, r, c, ctx, nonce)
}

// ProveWithNonce is Prove with a caller-chosen nonce, used when the proof
// must bind to an externally-fixed request nonce.
func ProveWithNonce(pp *params.PublicParameters, ms bls12381_fr.Element, attrs []bls12381_fr.Element,
	r bls12381_fr.Element, c []byte, ctx []byte, nonce []byte) (*SchnorrProof, error) {
	if len(attrs) > pp.MaxAttributes {
		return nil, ErrTooManyAttributes
	}

	// Blinding scalars, one per secret.
	rMS, err := curve.RandomFrBLS()
	if err != nil {
		return nil, fmt.Errorf("sampling blinding: %w", err)
	}
	rAttrs := make([]bls12381_fr.Element, len(attrs))
	for i := range rAttrs {
		if rAttrs[i], err = curve.RandomFrBLS(); err != nil {
			return nil, fmt.Errorf("sampling blinding: %w", err)
		}
	}
	rR, err := curve.RandomFrBLS()
	if err != nil {
		return nil, fmt.Errorf("sampling blinding: %w", err)
	}

	t := linearCombination(pp, rMS, rAttrs, rR)
	tBytes := curve.G1ToBytes(&t)

	ch := challenge(c, tBytes, ctx, nonce)

	// s_x = r_x + ch*x mod q, in the fixed order [ms, a1..ak, r].
	responses := make([]bls12381_fr.Element, 0, len(attrs)+2)
	responses = append(responses, response(rMS, ch, ms))
	for i := range attrs {
		responses = append(responses, response(rAttrs[i], ch, attrs[i]))
	}
	responses = append(responses, response(rR, ch, r))

	return &SchnorrProof{
		C:         c,
		T:         tBytes,
		Challenge: ch,
		Responses: responses,
		Nonce:     nonce,
	}, nil
}

// Verify checks the proof against the context and expected attribute
// count. Returns nil only when the recomputed challenge matches.
func Verify(pp *params.PublicParameters, proof *SchnorrProof, ctx []byte, numAttrs int) error {
	if len(proof.Responses) != numAttrs+2 {
		return fmt.Errorf("commitment: expected %d responses, got %d", numAttrs+2, len(proof.Responses))
	}
	if numAttrs > pp.MaxAttributes {
		return ErrTooManyAttributes
	}

	cPoint, err := curve.G1FromBytes(proof.C)
	if err != nil {
		return err
	}

	// T' = G^s_ms * prod(Hi^s_i) * Hr^s_r * C^-ch
	sMS := proof.Responses[0]
	sAttrs := proof.Responses[1 : numAttrs+1]
	sR := proof.Responses[numAttrs+1]
	tPrime := linearCombination(pp, sMS, sAttrs, sR)

	var negCh bls12381_fr.Element
	negCh.Neg(&proof.Challenge)
	cTerm := curve.G1ScalarMul(&cPoint, &negCh)
	tPrime.Add(&tPrime, &cTerm)

	chPrime := challenge(proof.C, curve.G1ToBytes(&tPrime), ctx, proof.Nonce)

	got := chPrime.Bytes()
	want := proof.Challenge.Bytes()
	if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
		return fmt.Errorf("commitment: proof verification failed")
	}
	return nil
}

// challenge computes SHA256(DST || C || T || ctx || nonce) reduced into
// the BLS12-381 scalar field.
func challenge(c, t, ctx, nonce []byte) bls12381_fr.Element {
	h := sha256.New()
	h.Write([]byte(ChallengeDST))
	h.Write(c)
	h.Write(t)
	h.Write(ctx)
	h.Write(nonce)
	var e bls12381_fr.Element
	e.SetBigInt(new(big.Int).Mod(new(big.Int).SetBytes(h.Sum(nil)), bls12381_fr.Modulus()))
	return e
}

func response(blind, ch, secret bls12381_fr.Element) bls12381_fr.Element {
	prod := curve.ModMul(&ch, &secret)
	return curve.ModAdd(&blind, &prod)
}
