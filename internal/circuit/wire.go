// wire.go - snarkjs-compatible proof encoding.
//
// Groth16 proofs travel as the JSON shape snarkjs emits: affine points as
// decimal coordinate strings with a projective "1" filler, G2 coordinates
// as [c0, c1] pairs.

package circuit

import (
	"errors"
	"fmt"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
)

// ErrMalformedProof reports a wire proof that does not decode to curve
// points.
var ErrMalformedProof = errors.New("circuit: malformed proof")

// WireProof is the snarkjs JSON shape of a Groth16 proof.
type WireProof struct {
	PiA      [3]string    `json:"pi_a"`
	PiB      [3][2]string `json:"pi_b"`
	PiC      [3]string    `json:"pi_c"`
	Protocol string       `json:"protocol"`
	Curve    string       `json:"curve"`
}

// PublicInputs carries the five public signals as decimal strings in
// circuit order.
type PublicInputs struct {
	Pseudonym      string `json:"pseudonym"`
	Nullifier      string `json:"nullifier"`
	CommitmentHash string `json:"commitmentHash"`
	RegistryRoot   string `json:"registryRoot"`
	Challenge      string `json:"challenge"`
}

// Slice returns the signals in circuit order.
func (p *PublicInputs) Slice() []string {
	return []string{p.Pseudonym, p.Nullifier, p.CommitmentHash, p.RegistryRoot, p.Challenge}
}

// EncodeProof converts a native Groth16 proof into the wire shape.
func EncodeProof(proof groth16.Proof) (*WireProof, error) {
	native, ok := proof.(*groth16_bn254.Proof)
	if !ok {
		return nil, fmt.Errorf("circuit: unexpected proof type %T", proof)
	}
	w := &WireProof{Protocol: "groth16", Curve: "bn128"}
	w.PiA = [3]string{native.Ar.X.String(), native.Ar.Y.String(), "1"}
	w.PiB = [3][2]string{
		{native.Bs.X.A0.String(), native.Bs.X.A1.String()},
		{native.Bs.Y.A0.String(), native.Bs.Y.A1.String()},
		{"1", "0"},
	}
	w.PiC = [3]string{native.Krs.X.String(), native.Krs.Y.String(), "1"}
	return w, nil
}

// DecodeProof reconstructs a native Groth16 proof from the wire shape.
func DecodeProof(w *WireProof) (groth16.Proof, error) {
	if w == nil {
		return nil, ErrMalformedProof
	}
	if w.Protocol != "groth16" || w.Curve != "bn128" {
		return nil, fmt.Errorf("%w: protocol %q curve %q", ErrMalformedProof, w.Protocol, w.Curve)
	}
	if w.PiA[2] != "1" || w.PiC[2] != "1" || w.PiB[2] != [2]string{"1", "0"} {
		return nil, fmt.Errorf("%w: non-affine filler coordinates", ErrMalformedProof)
	}

	native := &groth16_bn254.Proof{}
	if err := setG1(&native.Ar, w.PiA[0], w.PiA[1]); err != nil {
		return nil, fmt.Errorf("%w: pi_a: %v", ErrMalformedProof, err)
	}
	if err := setG2(&native.Bs, w.PiB); err != nil {
		return nil, fmt.Errorf("%w: pi_b: %v", ErrMalformedProof, err)
	}
	if err := setG1(&native.Krs, w.PiC[0], w.PiC[1]); err != nil {
		return nil, fmt.Errorf("%w: pi_c: %v", ErrMalformedProof, err)
	}
	return native, nil
}

func setG1(pt *bn254.G1Affine, xs, ys string) error {
	if err := setFp(&pt.X, xs); err != nil {
		return err
	}
	if err := setFp(&pt.Y, ys); err != nil {
		return err
	}
	if !pt.IsOnCurve() || !pt.IsInSubGroup() {
		return errors.New("point not on curve")
	}
	return nil
}

func setG2(pt *bn254.G2Affine, coords [3][2]string) error {
	if err := setFp(&pt.X.A0, coords[0][0]); err != nil {
		return err
	}
	if err := setFp(&pt.X.A1, coords[0][1]); err != nil {
		return err
	}
	if err := setFp(&pt.Y.A0, coords[1][0]); err != nil {
		return err
	}
	if err := setFp(&pt.Y.A1, coords[1][1]); err != nil {
		return err
	}
	if !pt.IsOnCurve() || !pt.IsInSubGroup() {
		return errors.New("point not on curve")
	}
	return nil
}

func setFp(e *fp.Element, s string) error {
	if _, err := e.SetString(s); err != nil {
		return err
	}
	return nil
}
