// params.go - Deterministic public parameters for commitments and BBS+
// binding.
//
// All generators are hash-to-curve images under fixed domain separation
// tags, so every party regenerates the identical set from the version and
// attribute count alone. Parameters are loaded once at startup and treated
// as read-only afterwards.

package params

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"

	"github.com/zunaedsazzad/halp-core/internal/curve"
)

// Domain separation tags. Fixed by the protocol; changing any of them
// invalidates every issued credential.
const (
	AttrGeneratorDST     = "BBS_ATTR_GENERATOR_%d_V1"
	BlindingGeneratorDST = "BBS_BLINDING_GENERATOR_V1"
	CommitmentDST        = "BBS_COMMITMENT_HALP_V1"
)

// Version tags the parameter file format.
const Version = 1

// PublicParameters holds the commitment generators: the canonical G1
// generator G, one attribute generator per slot, and the blinding
// generator Hr.
type PublicParameters struct {
	Version       int
	MaxAttributes int
	G             bls12381.G1Affine
	H             []bls12381.G1Affine
	Hr            bls12381.G1Affine
	GeneratedAt   time.Time
}

// fileFormat is the versioned JSON layout on disk. Points are 48-byte
// compressed hex.
type fileFormat struct {
	Version       int       `json:"version"`
	MaxAttributes int       `json:"maxAttributes"`
	G             string    `json:"g"`
	H             []string  `json:"h"`
	Hr            string    `json:"hr"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

// Generate derives parameters for up to k attributes.
func Generate(k int) (*PublicParameters, error) {
	if k <= 0 {
		return nil, fmt.Errorf("params: max attributes must be positive, got %d", k)
	}
	p := &PublicParameters{
		Version:       Version,
		MaxAttributes: k,
		G:             curve.G1Generator(),
		H:             make([]bls12381.G1Affine, k),
		GeneratedAt:   time.Now().UTC(),
	}
	for i := 0; i < k; i++ {
		dst := fmt.Sprintf(AttrGeneratorDST, i+1)
		h, err := curve.HashToG1([]byte(dst), []byte(dst))
		if err != nil {
			return nil, fmt.Errorf("deriving H%d: %w", i+1, err)
		}
		p.H[i] = h
	}
	hr, err := curve.HashToG1([]byte(BlindingGeneratorDST), []byte(BlindingGeneratorDST))
	if err != nil {
		return nil, fmt.Errorf("deriving Hr: %w", err)
	}
	p.Hr = hr
	return p, nil
}

// Save writes the parameters as versioned JSON.
func Save(p *PublicParameters, path string) error {
	ff := fileFormat{
		Version:       p.Version,
		MaxAttributes: p.MaxAttributes,
		G:             hex.EncodeToString(curve.G1ToBytes(&p.G)),
		H:             make([]string, len(p.H)),
		Hr:            hex.EncodeToString(curve.G1ToBytes(&p.Hr)),
		GeneratedAt:   p.GeneratedAt,
	}
	for i := range p.H {
		ff.H[i] = hex.EncodeToString(curve.G1ToBytes(&p.H[i]))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating params file: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ff); err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}
	return nil
}

// Load reads and validates a parameter file.
func Load(path string) (*PublicParameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening params file: %w", err)
	}
	defer f.Close()
	var ff fileFormat
	if err := json.NewDecoder(f).Decode(&ff); err != nil {
		return nil, fmt.Errorf("decoding params: %w", err)
	}
	p := &PublicParameters{
		Version:       ff.Version,
		MaxAttributes: ff.MaxAttributes,
		H:             make([]bls12381.G1Affine, len(ff.H)),
		GeneratedAt:   ff.GeneratedAt,
	}
	if p.G, err = decodePoint(ff.G); err != nil {
		return nil, fmt.Errorf("params G: %w", err)
	}
	for i := range ff.H {
		if p.H[i], err = decodePoint(ff.H[i]); err != nil {
			return nil, fmt.Errorf("params H%d: %w", i+1, err)
		}
	}
	if p.Hr, err = decodePoint(ff.Hr); err != nil {
		return nil, fmt.Errorf("params Hr: %w", err)
	}
	if err := Verify(p); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadOrGenerate loads parameters from path, generating and saving a
// fresh set when the file does not exist.
func LoadOrGenerate(path string, k int) (*PublicParameters, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	p, err := Generate(k)
	if err != nil {
		return nil, err
	}
	if err := Save(p, path); err != nil {
		return nil, err
	}
	return p, nil
}

// Verify checks structural validity: the declared attribute count matches,
// every generator is a valid G1 element, and all generators are distinct.
func Verify(p *PublicParameters) error {
	if p.MaxAttributes != len(p.H) {
		return fmt.Errorf("params: declared %d attributes but %d generators", p.MaxAttributes, len(p.H))
	}
	seen := make(map[string]string, len(p.H)+2)
	check := func(name string, pt *bls12381.G1Affine) error {
		if pt.IsInfinity() || !pt.IsInSubGroup() {
			return fmt.Errorf("params: generator %s: %w", name, curve.ErrInvalidPoint)
		}
		key := hex.EncodeToString(curve.G1ToBytes(pt))
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("params: generators %s and %s coincide", prev, name)
		}
		seen[key] = name
		return nil
	}
	if err := check("G", &p.G); err != nil {
		return err
	}
	for i := range p.H {
		if err := check(fmt.Sprintf("H%d", i+1), &p.H[i]); err != nil {
			return err
		}
	}
	return check("Hr", &p.Hr)
}

func decodePoint(s string) (bls12381.G1Affine, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return bls12381.G1Affine{}, curve.ErrInvalidPoint
	}
	return curve.G1FromBytes(raw)
}
