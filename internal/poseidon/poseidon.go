// poseidon.go - Poseidon hashing over the BN254 scalar field.
//
// Uses the gnark-crypto Poseidon2 permutation (width 2, 6 full / 50 partial
// rounds) with the Merkle-Damgard feed-forward compression, the exact
// construction the halp-auth circuit evaluates in-circuit. Any parameter
// change here must be mirrored in internal/circuit or proofs stop
// verifying.

package poseidon

import (
	"math/big"
	"sync"

	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

// Permutation parameters shared with the circuit gadget.
const (
	Width         = 2
	FullRounds    = 6
	PartialRounds = 50
)

// ChunkSize is the byte-absorption chunk length. 31 bytes always fit
// below the BN254 modulus.
const ChunkSize = 31

var (
	permOnce sync.Once
	perm     *poseidon2.Permutation
)

func permutation() *poseidon2.Permutation {
	permOnce.Do(func() {
		perm = poseidon2.NewPermutation(Width, FullRounds, PartialRounds)
	})
	return perm
}

// compress is the width-2 feed-forward compression: perm(state, x)[1] + x.
// Identical to the Compress of both gnark-crypto and the gnark circuit
// gadget.
func compress(state, x fr.Element) fr.Element {
	buf := []fr.Element{state, x}
	// The permutation only errors on a width mismatch.
	_ = permutation().Permutation(buf)
	var out fr.Element
	out.Add(&buf[1], &x)
	return out
}

// Hash2 hashes two field elements: a Merkle-Damgard fold seeded at zero.
func Hash2(a, b fr.Element) fr.Element {
	var state fr.Element
	state = compress(state, a)
	return compress(state, b)
}

// Hash3 hashes three field elements.
func Hash3(a, b, c fr.Element) fr.Element {
	var state fr.Element
	state = compress(state, a)
	state = compress(state, b)
	return compress(state, c)
}

// HashMany folds any number of field elements. An empty input hashes to
// Hash2(0, 0).
func HashMany(elems ...fr.Element) fr.Element {
	if len(elems) == 0 {
		var zero fr.Element
		return Hash2(zero, zero)
	}
	var state fr.Element
	for _, e := range elems {
		state = compress(state, e)
	}
	return state
}

// HashBytes absorbs arbitrary bytes by splitting into 31-byte chunks, each
// of which is below the field modulus, and left-folding with Hash2:
//
//	acc = Hash2(chunk_0, 0); acc = Hash2(acc, chunk_i) for i >= 1
//
// Empty input hashes to Hash2(0, 0).
func HashBytes(data []byte) fr.Element {
	var zero fr.Element
	if len(data) == 0 {
		return Hash2(zero, zero)
	}

	var acc fr.Element
	first := true
	for off := 0; off < len(data); off += ChunkSize {
		end := off + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		var chunk fr.Element
		chunk.SetBigInt(new(big.Int).SetBytes(data[off:end]))
		if first {
			acc = Hash2(chunk, zero)
			first = false
		} else {
			acc = Hash2(acc, chunk)
		}
	}
	return acc
}

// HashString absorbs a UTF-8 string.
func HashString(s string) fr.Element {
	return HashBytes([]byte(s))
}
