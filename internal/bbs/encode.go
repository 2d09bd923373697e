// encode.go - Wire layout for selective-disclosure proofs.
//
// Layout: u16 messagesCount | u16 revealedCount | u32 revealed indices |
// A' | Abar | d | C1 | u32 len | responses1 | C2 | u32 len | responses2,
// points compressed, scalars 32-byte big-endian.

package bbs

import (
	"encoding/binary"
	"errors"
	"fmt"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	bls12381_fr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/zunaedsazzad/halp-core/internal/curve"
)

// Bytes serializes the proof.
func (p *PoKProof) Bytes() []byte {
	out := make([]byte, 0, 4+4*len(p.Revealed)+5*g1CompressedSize+
		8+frSize*(len(p.Responses1)+len(p.Responses2)))

	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], uint16(p.MessagesCount))
	out = append(out, u16[:]...)
	binary.BigEndian.PutUint16(u16[:], uint16(len(p.Revealed)))
	out = append(out, u16[:]...)

	var u32 [4]byte
	for _, idx := range p.Revealed {
		binary.BigEndian.PutUint32(u32[:], uint32(idx))
		out = append(out, u32[:]...)
	}

	for _, pt := range []*bls12381.G1Affine{&p.APrime, &p.ABar, &p.D, &p.C1} {
		b := pt.Bytes()
		out = append(out, b[:]...)
	}
	out = appendResponses(out, p.Responses1)
	c2 := p.C2.Bytes()
	out = append(out, c2[:]...)
	out = appendResponses(out, p.Responses2)
	return out
}

func appendResponses(out []byte, responses []bls12381_fr.Element) []byte {
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(len(responses)))
	out = append(out, u32[:]...)
	for i := range responses {
		b := responses[i].Bytes()
		out = append(out, b[:]...)
	}
	return out
}

// ParseProof deserializes a proof blob.
func ParseProof(data []byte) (*PoKProof, error) {
	r := &byteCursor{data: data}

	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	revealedCount, err := r.u16()
	if err != nil {
		return nil, err
	}
	if revealedCount > count {
		return nil, errors.New("bbs: revealed count exceeds message count")
	}

	proof := &PoKProof{
		MessagesCount: int(count),
		Revealed:      make([]int, revealedCount),
	}
	for i := range proof.Revealed {
		idx, err := r.u32()
		if err != nil {
			return nil, err
		}
		if int(idx) >= proof.MessagesCount {
			return nil, fmt.Errorf("bbs: revealed index %d out of range", idx)
		}
		proof.Revealed[i] = int(idx)
	}

	for _, pt := range []*bls12381.G1Affine{&proof.APrime, &proof.ABar, &proof.D, &proof.C1} {
		if err := r.point(pt); err != nil {
			return nil, err
		}
	}
	if proof.Responses1, err = r.responses(); err != nil {
		return nil, err
	}
	if err := r.point(&proof.C2); err != nil {
		return nil, err
	}
	if proof.Responses2, err = r.responses(); err != nil {
		return nil, err
	}
	if r.off != len(r.data) {
		return nil, errors.New("bbs: trailing bytes in proof")
	}
	return proof, nil
}

type byteCursor struct {
	data []byte
	off  int
}

func (c *byteCursor) take(n int) ([]byte, error) {
	if c.off+n > len(c.data) {
		return nil, errors.New("bbs: truncated proof")
	}
	out := c.data[c.off : c.off+n]
	c.off += n
	return out, nil
}

func (c *byteCursor) u16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (c *byteCursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *byteCursor) point(pt *bls12381.G1Affine) error {
	b, err := c.take(g1CompressedSize)
	if err != nil {
		return err
	}
	if _, err := pt.SetBytes(b); err != nil {
		return fmt.Errorf("bbs: parse proof point: %w", err)
	}
	return nil
}

func (c *byteCursor) responses() ([]bls12381_fr.Element, error) {
	n, err := c.u32()
	if err != nil {
		return nil, err
	}
	if n > uint32(len(c.data)) {
		return nil, errors.New("bbs: malformed response count")
	}
	out := make([]bls12381_fr.Element, n)
	for i := range out {
		b, err := c.take(frSize)
		if err != nil {
			return nil, err
		}
		if out[i], err = curve.ScalarFromBytes(b); err != nil {
			return nil, fmt.Errorf("bbs: parse response: %w", err)
		}
	}
	return out, nil
}
