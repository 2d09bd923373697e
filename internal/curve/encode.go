// encode.go - Stable attribute-to-scalar encoding.
//
// Issuer and holder must derive bit-identical field elements from the same
// attribute value, otherwise commitment verification and BBS+ signing
// disagree silently.

package curve

import (
	"fmt"
	"math/big"

	bls12381_fr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// EncodeAttribute maps an attribute value onto a BLS12-381 scalar.
// Strings hash via SHA-256 reduced mod q; integers cast directly mod q;
// booleans map to {0,1}. The encoding is stable across processes.
func EncodeAttribute(value interface{}) (bls12381_fr.Element, error) {
	var e bls12381_fr.Element

	switch v := value.(type) {
	case string:
		return MapToFrBLS([]byte(v)), nil
	case []byte:
		return MapToFrBLS(v), nil
	case bool:
		if v {
			e.SetOne()
		}
		return e, nil
	case int:
		return encodeInt(big.NewInt(int64(v))), nil
	case int32:
		return encodeInt(big.NewInt(int64(v))), nil
	case int64:
		return encodeInt(big.NewInt(v)), nil
	case uint32:
		return encodeInt(new(big.Int).SetUint64(uint64(v))), nil
	case uint64:
		return encodeInt(new(big.Int).SetUint64(v)), nil
	case *big.Int:
		return encodeInt(v), nil
	case bls12381_fr.Element:
		return v, nil
	case *bls12381_fr.Element:
		return *v, nil
	case float64:
		// JSON decodes all numbers as float64; only integral values have a
		// stable encoding.
		if v != float64(int64(v)) {
			return e, fmt.Errorf("attribute %v: non-integral numbers have no stable encoding", v)
		}
		return encodeInt(big.NewInt(int64(v))), nil
	case fmt.Stringer:
		return MapToFrBLS([]byte(v.String())), nil
	default:
		return e, fmt.Errorf("attribute of type %T cannot be encoded", value)
	}
}

func encodeInt(v *big.Int) bls12381_fr.Element {
	var e bls12381_fr.Element
	e.SetBigInt(new(big.Int).Mod(v, bls12381_fr.Modulus()))
	return e
}
