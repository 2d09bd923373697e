// bbs.go - BBS+ signing and verification over a message vector.
//
// A signature is (A, e, s) with A = B^(1/(x+e)) and
// B = P1 * H0^s * prod(Hi^mi). Verification reduces to the pairing check
// e(A, W * P2^e) == e(B, P2). The message vector must be bit-identical
// between signing and verification.

package bbs

import (
	"errors"
	"fmt"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	bls12381_fr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/zunaedsazzad/halp-core/internal/curve"
)

// Signature is a BBS+ signature (A, e, s).
type Signature struct {
	A bls12381.G1Affine
	E bls12381_fr.Element
	S bls12381_fr.Element
}

func newBig() *big.Int { return new(big.Int) }

// Sign signs a message vector with the private key. Messages are opaque
// byte strings mapped into the scalar field via MapMessage.
func Sign(priv *PrivateKey, pub *PublicKey, messages [][]byte) (*Signature, error) {
	if len(messages) == 0 {
		return nil, errors.New("bbs: empty message vector")
	}
	gens, err := pub.toPublicKeyWithGenerators(len(messages))
	if err != nil {
		return nil, err
	}

	e, err := curve.RandomFrBLS()
	if err != nil {
		return nil, fmt.Errorf("bbs: sampling e: %w", err)
	}
	s, err := curve.RandomFrBLS()
	if err != nil {
		return nil, fmt.Errorf("bbs: sampling s: %w", err)
	}

	msgFr := make([]bls12381_fr.Element, len(messages))
	for i, m := range messages {
		msgFr[i] = MapMessage(m)
	}

	b := computeB(&s, msgFr, gens)

	// exp = 1/(x+e)
	var exp bls12381_fr.Element
	exp.Add(&priv.X, &e)
	if exp.IsZero() {
		return nil, errors.New("bbs: degenerate exponent, resign")
	}
	exp.Inverse(&exp)

	a := curve.G1ScalarMul(&b, &exp)

	return &Signature{A: a, E: e, S: s}, nil
}

// Verify checks the signature over the exact message vector.
func Verify(pub *PublicKey, messages [][]byte, sig *Signature) error {
	if len(messages) == 0 {
		return errors.New("bbs: empty message vector")
	}
	gens, err := pub.toPublicKeyWithGenerators(len(messages))
	if err != nil {
		return err
	}

	msgFr := make([]bls12381_fr.Element, len(messages))
	for i, m := range messages {
		msgFr[i] = MapMessage(m)
	}
	b := computeB(&sig.S, msgFr, gens)

	return verifySignaturePairing(&sig.A, &sig.E, &b, pub)
}

// verifySignaturePairing checks e(A, W + P2^e) * e(-B, P2) == 1.
func verifySignaturePairing(a *bls12381.G1Affine, e *bls12381_fr.Element,
	b *bls12381.G1Affine, pub *PublicKey) error {
	_, _, _, p2 := bls12381.Generators()

	var eP2 bls12381.G2Affine
	eP2.ScalarMultiplication(&p2, e.BigInt(newBig()))
	var wPlusEP2 bls12381.G2Affine
	wPlusEP2.Add(&pub.W, &eP2)

	negB := curve.G1Neg(b)

	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{*a, negB},
		[]bls12381.G2Affine{wPlusEP2, p2},
	)
	if err != nil {
		return fmt.Errorf("bbs: pairing: %w", err)
	}
	if !ok {
		return errors.New("bbs: invalid signature")
	}
	return nil
}

// computeB evaluates P1 * H0^s * prod(Hi^mi).
func computeB(s *bls12381_fr.Element, messages []bls12381_fr.Element,
	gens *publicKeyWithGenerators) bls12381.G1Affine {
	acc := curve.G1Generator()
	term := curve.G1ScalarMul(&gens.h0, s)
	acc.Add(&acc, &term)
	for i := range messages {
		term = curve.G1ScalarMul(&gens.h[i], &messages[i])
		acc.Add(&acc, &term)
	}
	return acc
}

// sumOfG1Products evaluates prod(bases_i^scalars_i).
func sumOfG1Products(bases []bls12381.G1Affine, scalars []bls12381_fr.Element) bls12381.G1Affine {
	var acc bls12381.G1Affine
	for i := range bases {
		term := curve.G1ScalarMul(&bases[i], &scalars[i])
		acc.Add(&acc, &term)
	}
	return acc
}

// Bytes serializes the signature as A || e || s (112 bytes).
func (sig *Signature) Bytes() []byte {
	out := make([]byte, 0, signatureByteSize)
	a := sig.A.Bytes()
	e := sig.E.Bytes()
	s := sig.S.Bytes()
	out = append(out, a[:]...)
	out = append(out, e[:]...)
	out = append(out, s[:]...)
	return out
}

// ParseSignature deserializes a 112-byte signature.
func ParseSignature(data []byte) (*Signature, error) {
	if len(data) != signatureByteSize {
		return nil, fmt.Errorf("bbs: signature must be %d bytes, got %d", signatureByteSize, len(data))
	}
	var sig Signature
	if _, err := sig.A.SetBytes(data[:g1CompressedSize]); err != nil {
		return nil, fmt.Errorf("bbs: parse A: %w", err)
	}
	e, err := curve.ScalarFromBytes(data[g1CompressedSize : g1CompressedSize+frSize])
	if err != nil {
		return nil, fmt.Errorf("bbs: parse e: %w", err)
	}
	s, err := curve.ScalarFromBytes(data[g1CompressedSize+frSize:])
	if err != nil {
		return nil, fmt.Errorf("bbs: parse s: %w", err)
	}
	sig.E, sig.S = e, s
	return &sig, nil
}
