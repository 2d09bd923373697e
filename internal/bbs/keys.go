// keys.go - BBS+ key material and per-message generators.
//
// Public keys live in G2; message generators are hash-to-curve images in
// G1, derived deterministically from the public key and the message count
// so signer and verifier always agree on the basis.

package bbs

import (
	"encoding/binary"
	"fmt"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	bls12381_fr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/zunaedsazzad/halp-core/internal/curve"
)

// Ciphersuite tags, patterned after the BLS12-381 BBS ciphersuite
// identifiers.
const (
	ciphersuiteID      = "BBS_BLS12381G1_HALP_"
	blindingGenDST     = ciphersuiteID + "H0_GENERATOR_"
	messageGenDST      = ciphersuiteID + "MSG_GENERATOR_"
	proofChallengeDST  = ciphersuiteID + "PROOF_CHALLENGE_"
	g2CompressedSize   = 96
	g1CompressedSize   = 48
	frSize             = 32
	signatureByteSize  = g1CompressedSize + 2*frSize
)

// PrivateKey is the issuer's secret scalar.
type PrivateKey struct {
	X bls12381_fr.Element
}

// PublicKey is the issuer's G2 public key W = P2^x.
type PublicKey struct {
	W bls12381.G2Affine
}

// KeyPair bundles a BBS+ signing key with its public key.
type KeyPair struct {
	Private *PrivateKey
	Public  *PublicKey
}

// GenerateKeyPair samples a fresh BBS+ key pair.
func GenerateKeyPair() (*KeyPair, error) {
	x, err := curve.RandomFrBLS()
	if err != nil {
		return nil, fmt.Errorf("bbs: sampling private key: %w", err)
	}
	return KeyPairFromPrivate(x), nil
}

// KeyPairFromPrivate rebuilds the key pair from a stored secret scalar.
func KeyPairFromPrivate(x bls12381_fr.Element) *KeyPair {
	_, _, _, g2 := bls12381.Generators()
	var w bls12381.G2Affine
	w.ScalarMultiplication(&g2, x.BigInt(newBig()))
	return &KeyPair{
		Private: &PrivateKey{X: x},
		Public:  &PublicKey{W: w},
	}
}

// Bytes serializes the public key in 96-byte compressed form.
func (pk *PublicKey) Bytes() []byte {
	b := pk.W.Bytes()
	return b[:]
}

// ParsePublicKey deserializes a compressed G2 public key.
func ParsePublicKey(data []byte) (*PublicKey, error) {
	if len(data) != g2CompressedSize {
		return nil, fmt.Errorf("bbs: public key must be %d bytes, got %d", g2CompressedSize, len(data))
	}
	var w bls12381.G2Affine
	if _, err := w.SetBytes(data); err != nil {
		return nil, fmt.Errorf("bbs: parse public key: %w", err)
	}
	return &PublicKey{W: w}, nil
}

// publicKeyWithGenerators extends a public key with the generator basis
// for a fixed message count.
type publicKeyWithGenerators struct {
	w             bls12381.G2Affine
	h0            bls12381.G1Affine
	h             []bls12381.G1Affine
	messagesCount int
}

// toPublicKeyWithGenerators derives the blinding generator H0 and one
// message generator per slot from the public key bytes.
func (pk *PublicKey) toPublicKeyWithGenerators(messagesCount int) (*publicKeyWithGenerators, error) {
	if messagesCount <= 0 {
		return nil, fmt.Errorf("bbs: message count must be positive, got %d", messagesCount)
	}
	pkBytes := pk.Bytes()

	h0, err := curve.HashToG1(pkBytes, []byte(blindingGenDST))
	if err != nil {
		return nil, fmt.Errorf("bbs: deriving H0: %w", err)
	}

	h := make([]bls12381.G1Affine, messagesCount)
	for i := 0; i < messagesCount; i++ {
		seed := make([]byte, len(pkBytes)+4)
		copy(seed, pkBytes)
		binary.BigEndian.PutUint32(seed[len(pkBytes):], uint32(i))
		if h[i], err = curve.HashToG1(seed, []byte(messageGenDST)); err != nil {
			return nil, fmt.Errorf("bbs: deriving H%d: %w", i, err)
		}
	}

	return &publicKeyWithGenerators{
		w:             pk.W,
		h0:            h0,
		h:             h,
		messagesCount: messagesCount,
	}, nil
}

// MapMessage encodes message bytes into the scalar field (SHA-256
// reduced). Both signing and proof verification use the same mapping, so
// a single flipped message byte invalidates the signature.
func MapMessage(data []byte) bls12381_fr.Element {
	return curve.MapToFrBLS(data)
}
