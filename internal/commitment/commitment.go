// commitment.go - Pedersen vector commitments over BLS12-381 G1.
//
// C = G^ms * prod(Hi^ai) * Hr^r binds the holder's master secret and
// attribute vector under the blinding factor r. The holder keeps the
// opening; the issuer only ever sees C.

package commitment

import (
	"errors"
	"fmt"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	bls12381_fr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/zunaedsazzad/halp-core/internal/curve"
	"github.com/zunaedsazzad/halp-core/internal/params"
)

// ErrTooManyAttributes is returned when the attribute vector exceeds the
// parameter set's capacity.
var ErrTooManyAttributes = errors.New("commitment: too many attributes for parameter set")

// Commit computes the Pedersen commitment for the master secret and
// attribute vector. When blinding is nil a fresh blinding factor is
// sampled. Returns the compressed commitment and the blinding factor used.
func Commit(pp *params.PublicParameters, ms bls12381_fr.Element, attrs []bls12381_fr.Element,
	blinding *bls12381_fr.Element) ([]byte, bls12381_fr.Element, error) {
	var r bls12381_fr.Element
	if len(attrs) > pp.MaxAttributes {
		return nil, r, ErrTooManyAttributes
	}
	if blinding != nil {
		r = *blinding
	} else {
		var err error
		if r, err = curve.RandomFrBLS(); err != nil {
			return nil, r, fmt.Errorf("sampling blinding factor: %w", err)
		}
	}

	c := linearCombination(pp, ms, attrs, r)
	return curve.G1ToBytes(&c), r, nil
}

// linearCombination evaluates G^s0 * prod(Hi^si) * Hr^sr, the shared
// structure of both the commitment and the Schnorr announcement.
func linearCombination(pp *params.PublicParameters, s0 bls12381_fr.Element,
	si []bls12381_fr.Element, sr bls12381_fr.Element) bls12381.G1Affine {
	acc := curve.G1ScalarMul(&pp.G, &s0)
	for i := range si {
		term := curve.G1ScalarMul(&pp.H[i], &si[i])
		acc.Add(&acc, &term)
	}
	term := curve.G1ScalarMul(&pp.Hr, &sr)
	acc.Add(&acc, &term)
	return acc
}
