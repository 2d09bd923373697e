// curve.go - Field and curve primitives for the HALP credential core.
//
// Wraps BLS12-381 G1 and scalar arithmetic (commitments, BBS+) and BN254
// scalar helpers (Poseidon, SNARK) on top of gnark-crypto. All scalar and
// scalar-by-point operations go through gnark-crypto's constant-time
// implementations.

package curve

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	bls12381_fr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	bn254_fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ErrInvalidPoint is returned when a serialized G1 point fails to
// deserialize or is not in the prime-order subgroup.
var ErrInvalidPoint = errors.New("curve: invalid G1 point")

// ErrInvalidScalar is returned when serialized scalar bytes do not decode
// to a canonical field element.
var ErrInvalidScalar = errors.New("curve: invalid scalar")

// G1CompressedSize is the byte length of a compressed BLS12-381 G1 point.
const G1CompressedSize = 48

// ScalarSize is the byte length of a serialized scalar.
const ScalarSize = 32

// G1Generator returns the canonical BLS12-381 G1 generator in affine form.
func G1Generator() bls12381.G1Affine {
	_, _, g1, _ := bls12381.Generators()
	return g1
}

// RandomFrBLS samples a uniform BLS12-381 scalar by rejection on 32
// uniform bytes, falling back to modular reduction after a bounded number
// of attempts.
func RandomFrBLS() (bls12381_fr.Element, error) {
	var e bls12381_fr.Element
	mod := bls12381_fr.Modulus()
	for i := 0; i < 64; i++ {
		buf := make([]byte, ScalarSize)
		if _, err := rand.Read(buf); err != nil {
			return e, fmt.Errorf("sampling randomness: %w", err)
		}
		v := new(big.Int).SetBytes(buf)
		if v.Cmp(mod) < 0 {
			e.SetBigInt(v)
			return e, nil
		}
	}
	// Statistically unreachable; reduce the last sample instead of looping.
	buf := make([]byte, ScalarSize)
	if _, err := rand.Read(buf); err != nil {
		return e, fmt.Errorf("sampling randomness: %w", err)
	}
	e.SetBigInt(new(big.Int).Mod(new(big.Int).SetBytes(buf), mod))
	return e, nil
}

// RandomFrBN samples a uniform BN254 scalar.
func RandomFrBN() (bn254_fr.Element, error) {
	var e bn254_fr.Element
	mod := bn254_fr.Modulus()
	for i := 0; i < 64; i++ {
		buf := make([]byte, ScalarSize)
		if _, err := rand.Read(buf); err != nil {
			return e, fmt.Errorf("sampling randomness: %w", err)
		}
		v := new(big.Int).SetBytes(buf)
		if v.Cmp(mod) < 0 {
			e.SetBigInt(v)
			return e, nil
		}
	}
	buf := make([]byte, ScalarSize)
	if _, err := rand.Read(buf); err != nil {
		return e, fmt.Errorf("sampling randomness: %w", err)
	}
	e.SetBigInt(new(big.Int).Mod(new(big.Int).SetBytes(buf), mod))
	return e, nil
}

// ScalarToBytes serializes a BLS12-381 scalar as 32 big-endian bytes.
func ScalarToBytes(e *bls12381_fr.Element) []byte {
	b := e.Bytes()
	return b[:]
}

// ScalarFromBytes decodes 32 big-endian bytes into a BLS12-381 scalar.
// The bytes must encode a canonical value below the field modulus.
func ScalarFromBytes(data []byte) (bls12381_fr.Element, error) {
	var e bls12381_fr.Element
	if len(data) != ScalarSize {
		return e, ErrInvalidScalar
	}
	if new(big.Int).SetBytes(data).Cmp(bls12381_fr.Modulus()) >= 0 {
		return e, ErrInvalidScalar
	}
	e.SetBytes(data)
	return e, nil
}

// ModAdd returns a+b in the BLS12-381 scalar field.
func ModAdd(a, b *bls12381_fr.Element) bls12381_fr.Element {
	var out bls12381_fr.Element
	out.Add(a, b)
	return out
}

// ModMul returns a*b in the BLS12-381 scalar field.
func ModMul(a, b *bls12381_fr.Element) bls12381_fr.Element {
	var out bls12381_fr.Element
	out.Mul(a, b)
	return out
}

// G1Add returns p+q.
func G1Add(p, q *bls12381.G1Affine) bls12381.G1Affine {
	var out bls12381.G1Affine
	out.Add(p, q)
	return out
}

// G1Neg returns -p.
func G1Neg(p *bls12381.G1Affine) bls12381.G1Affine {
	var out bls12381.G1Affine
	out.Neg(p)
	return out
}

// G1ScalarMul returns s*p.
func G1ScalarMul(p *bls12381.G1Affine, s *bls12381_fr.Element) bls12381.G1Affine {
	var out bls12381.G1Affine
	out.ScalarMultiplication(p, s.BigInt(new(big.Int)))
	return out
}

// G1ToBytes serializes a G1 point in 48-byte compressed form.
func G1ToBytes(p *bls12381.G1Affine) []byte {
	b := p.Bytes()
	return b[:]
}

// G1FromBytes deserializes a compressed G1 point, enforcing that the
// result is on the curve and in the correct subgroup.
func G1FromBytes(data []byte) (bls12381.G1Affine, error) {
	var p bls12381.G1Affine
	if len(data) != G1CompressedSize {
		return p, ErrInvalidPoint
	}
	if _, err := p.SetBytes(data); err != nil {
		return p, ErrInvalidPoint
	}
	return p, nil
}

// HashToG1 maps arbitrary bytes onto a G1 point with the given domain
// separation tag (IETF hash-to-curve suite for BLS12-381 G1).
func HashToG1(msg, dst []byte) (bls12381.G1Affine, error) {
	p, err := bls12381.HashToG1(msg, dst)
	if err != nil {
		return p, fmt.Errorf("hash to G1: %w", err)
	}
	return p, nil
}

// MapToFrBLS hashes bytes into a BLS12-381 scalar via SHA-256 reduced
// modulo the group order. The mapping is deterministic; holder and issuer
// rely on producing identical field elements from identical input.
func MapToFrBLS(data []byte) bls12381_fr.Element {
	sum := sha256.Sum256(data)
	var e bls12381_fr.Element
	e.SetBigInt(new(big.Int).Mod(new(big.Int).SetBytes(sum[:]), bls12381_fr.Modulus()))
	return e
}

// MapToFrBN hashes bytes into a BN254 scalar via SHA-256 reduced modulo
// the group order.
func MapToFrBN(data []byte) bn254_fr.Element {
	sum := sha256.Sum256(data)
	var e bn254_fr.Element
	e.SetBigInt(new(big.Int).Mod(new(big.Int).SetBytes(sum[:]), bn254_fr.Modulus()))
	return e
}

// ReduceToFrBN reduces an arbitrary big integer into a BN254 scalar.
func ReduceToFrBN(v *big.Int) bn254_fr.Element {
	var e bn254_fr.Element
	e.SetBigInt(new(big.Int).Mod(v, bn254_fr.Modulus()))
	return e
}
