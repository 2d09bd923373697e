// proof.go - Selective-disclosure proof of knowledge of a BBS+ signature.
//
// The prover randomizes the signature into (A', Abar, d) and proves two
// linked sigma statements: VC1 ties A' to the signature exponent e, VC2
// opens the commitment to the hidden messages. The verifier recomputes the
// Fiat-Shamir challenge from the proof, the revealed messages and the
// session nonce, so a proof cannot be replayed under a different nonce or
// revealed set.

package bbs

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	bls12381_fr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/zunaedsazzad/halp-core/internal/curve"
)

// PoKProof is a parsed selective-disclosure proof.
type PoKProof struct {
	MessagesCount int
	Revealed      []int

	APrime bls12381.G1Affine
	ABar   bls12381.G1Affine
	D      bls12381.G1Affine

	C1         bls12381.G1Affine
	Responses1 []bls12381_fr.Element

	C2         bls12381.G1Affine
	Responses2 []bls12381_fr.Element
}

// DeriveProof builds a selective-disclosure proof revealing exactly the
// given message indices, bound to the verifier-supplied nonce.
func DeriveProof(pub *PublicKey, sig *Signature, messages [][]byte,
	revealedIndexes []int, nonce []byte) ([]byte, error) {
	if len(revealedIndexes) == 0 {
		return nil, errors.New("bbs: no message to reveal")
	}
	revealed := append([]int(nil), revealedIndexes...)
	sort.Ints(revealed)
	for i, idx := range revealed {
		if idx < 0 || idx >= len(messages) {
			return nil, fmt.Errorf("bbs: revealed index %d out of range", idx)
		}
		if i > 0 && revealed[i-1] == idx {
			return nil, fmt.Errorf("bbs: duplicate revealed index %d", idx)
		}
	}

	gens, err := pub.toPublicKeyWithGenerators(len(messages))
	if err != nil {
		return nil, err
	}

	msgFr := make([]bls12381_fr.Element, len(messages))
	for i, m := range messages {
		msgFr[i] = MapMessage(m)
	}

	r1, err := curve.RandomFrBLS()
	if err != nil {
		return nil, fmt.Errorf("bbs: sampling r1: %w", err)
	}
	if r1.IsZero() {
		r1.SetOne()
	}
	r2, err := curve.RandomFrBLS()
	if err != nil {
		return nil, fmt.Errorf("bbs: sampling r2: %w", err)
	}

	b := computeB(&sig.S, msgFr, gens)

	aPrime := curve.G1ScalarMul(&sig.A, &r1)

	// Abar = B^r1 - A'^e
	bR1 := curve.G1ScalarMul(&b, &r1)
	aPrimeE := curve.G1ScalarMul(&aPrime, &sig.E)
	var aBar bls12381.G1Affine
	aBar.Sub(&bR1, &aPrimeE)

	// d = B^r1 - H0^r2
	h0R2 := curve.G1ScalarMul(&gens.h0, &r2)
	var d bls12381.G1Affine
	d.Sub(&bR1, &h0R2)

	var r3 bls12381_fr.Element
	r3.Inverse(&r1)

	// s' = s - r2*r3
	var sPrime bls12381_fr.Element
	sPrime.Mul(&r2, &r3)
	sPrime.Sub(&sig.S, &sPrime)

	// VC1 over bases [A', H0] with secrets [-e, r2].
	var negE bls12381_fr.Element
	negE.Neg(&sig.E)
	bases1 := []bls12381.G1Affine{aPrime, gens.h0}
	secrets1 := []bls12381_fr.Element{negE, r2}
	blind1, err := randomScalars(len(bases1))
	if err != nil {
		return nil, err
	}
	c1 := sumOfG1Products(bases1, blind1)

	// VC2 over bases [d, H0, hidden Hj] with secrets [-r3, s', hidden mj].
	revealedSet := make(map[int]struct{}, len(revealed))
	for _, idx := range revealed {
		revealedSet[idx] = struct{}{}
	}
	var negR3 bls12381_fr.Element
	negR3.Neg(&r3)
	bases2 := []bls12381.G1Affine{d, gens.h0}
	secrets2 := []bls12381_fr.Element{negR3, sPrime}
	for i := range msgFr {
		if _, ok := revealedSet[i]; ok {
			continue
		}
		bases2 = append(bases2, gens.h[i])
		secrets2 = append(secrets2, msgFr[i])
	}
	blind2, err := randomScalars(len(bases2))
	if err != nil {
		return nil, err
	}
	c2 := sumOfG1Products(bases2, blind2)

	proof := &PoKProof{
		MessagesCount: len(messages),
		Revealed:      revealed,
		APrime:        aPrime,
		ABar:          aBar,
		D:             d,
		C1:            c1,
		C2:            c2,
	}

	revealedFr := make(map[int]bls12381_fr.Element, len(revealed))
	for _, idx := range revealed {
		revealedFr[idx] = msgFr[idx]
	}
	ch := proofChallenge(proof, revealedFr, nonce)

	proof.Responses1 = proofResponses(blind1, secrets1, &ch)
	proof.Responses2 = proofResponses(blind2, secrets2, &ch)

	return proof.Bytes(), nil
}

// VerifyProof checks a selective-disclosure proof against the revealed
// messages (index -> message bytes) under the given nonce.
func VerifyProof(pub *PublicKey, proofBytes []byte,
	revealedMessages map[int][]byte, nonce []byte) error {
	proof, err := ParseProof(proofBytes)
	if err != nil {
		return err
	}
	if len(revealedMessages) != len(proof.Revealed) {
		return fmt.Errorf("bbs: proof reveals %d messages, %d supplied", len(proof.Revealed), len(revealedMessages))
	}
	revealedFr := make(map[int]bls12381_fr.Element, len(proof.Revealed))
	for _, idx := range proof.Revealed {
		m, ok := revealedMessages[idx]
		if !ok {
			return fmt.Errorf("bbs: revealed message %d missing", idx)
		}
		revealedFr[idx] = MapMessage(m)
	}

	gens, err := pub.toPublicKeyWithGenerators(proof.MessagesCount)
	if err != nil {
		return err
	}

	// Signature validity: e(A', W) == e(Abar, P2).
	_, _, _, p2 := bls12381.Generators()
	negABar := curve.G1Neg(&proof.ABar)
	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{proof.APrime, negABar},
		[]bls12381.G2Affine{pub.W, p2},
	)
	if err != nil {
		return fmt.Errorf("bbs: pairing: %w", err)
	}
	if !ok {
		return errors.New("bbs: invalid signature proof")
	}

	ch := proofChallenge(proof, revealedFr, nonce)

	// VC1: C1 == A'^s0 * H0^s1 * (Abar-d)^c
	if len(proof.Responses1) != 2 {
		return errors.New("bbs: malformed VC1 responses")
	}
	var aBarD bls12381.G1Affine
	aBarD.Sub(&proof.ABar, &proof.D)
	bases1 := []bls12381.G1Affine{proof.APrime, gens.h0}
	if !sigmaHolds(bases1, proof.Responses1, &aBarD, &ch, &proof.C1) {
		return errors.New("bbs: invalid signature proof")
	}

	// VC2: C2 == d^s0 * H0^s1 * prod(hidden Hj^sj) * T^c with
	// T = -(P1 + sum revealed Hj^mj).
	revealedSet := make(map[int]struct{}, len(proof.Revealed))
	for _, idx := range proof.Revealed {
		revealedSet[idx] = struct{}{}
	}
	bases2 := []bls12381.G1Affine{proof.D, gens.h0}
	for i := 0; i < proof.MessagesCount; i++ {
		if _, hidden := revealedSet[i]; !hidden {
			bases2 = append(bases2, gens.h[i])
		}
	}
	if len(proof.Responses2) != len(bases2) {
		return errors.New("bbs: malformed VC2 responses")
	}

	target := curve.G1Generator()
	for _, idx := range proof.Revealed {
		m := revealedFr[idx]
		term := curve.G1ScalarMul(&gens.h[idx], &m)
		target.Add(&target, &term)
	}
	target.Neg(&target)

	if !sigmaHolds(bases2, proof.Responses2, &target, &ch, &proof.C2) {
		return errors.New("bbs: invalid signature proof")
	}
	return nil
}

// sigmaHolds checks commitment == prod(bases^responses) * extra^challenge.
func sigmaHolds(bases []bls12381.G1Affine, responses []bls12381_fr.Element,
	extra *bls12381.G1Affine, challenge *bls12381_fr.Element,
	commitment *bls12381.G1Affine) bool {
	contribution := sumOfG1Products(bases, responses)
	extraTerm := curve.G1ScalarMul(extra, challenge)
	contribution.Add(&contribution, &extraTerm)
	return contribution.Equal(commitment)
}

func proofResponses(blindings, secrets []bls12381_fr.Element,
	challenge *bls12381_fr.Element) []bls12381_fr.Element {
	out := make([]bls12381_fr.Element, len(blindings))
	for i := range blindings {
		var cs bls12381_fr.Element
		cs.Mul(challenge, &secrets[i])
		out[i].Sub(&blindings[i], &cs)
	}
	return out
}

func randomScalars(n int) ([]bls12381_fr.Element, error) {
	out := make([]bls12381_fr.Element, n)
	for i := range out {
		var err error
		if out[i], err = curve.RandomFrBLS(); err != nil {
			return nil, fmt.Errorf("bbs: sampling blinding: %w", err)
		}
	}
	return out, nil
}

// proofChallenge hashes the randomized points, both sigma commitments,
// the revealed set and the nonce into the challenge scalar.
func proofChallenge(p *PoKProof, revealed map[int]bls12381_fr.Element, nonce []byte) bls12381_fr.Element {
	h := sha256.New()
	h.Write([]byte(proofChallengeDST))
	writePoint := func(pt *bls12381.G1Affine) {
		b := pt.Bytes()
		h.Write(b[:])
	}
	writePoint(&p.APrime)
	writePoint(&p.ABar)
	writePoint(&p.D)
	writePoint(&p.C1)
	writePoint(&p.C2)

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(p.MessagesCount))
	h.Write(buf[:])
	for _, idx := range p.Revealed {
		binary.BigEndian.PutUint32(buf[:], uint32(idx))
		h.Write(buf[:])
		m := revealed[idx]
		mb := m.Bytes()
		h.Write(mb[:])
	}
	h.Write(nonce)

	var e bls12381_fr.Element
	e.SetBigInt(new(big.Int).Mod(new(big.Int).SetBytes(h.Sum(nil)), bls12381_fr.Modulus()))
	return e
}
