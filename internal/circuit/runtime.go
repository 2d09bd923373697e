// runtime.go - Groth16 lifecycle for the halp-auth circuit.
//
// Compile once, then generate-or-load the proving and verifying keys from
// disk so restarts of the daemon reuse the same CRS.

package circuit

import (
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Runtime holds the compiled constraint system and the Groth16 key pair.
type Runtime struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// Compile builds the constraint system for AuthCircuit.
func Compile() (constraint.ConstraintSystem, error) {
	var c AuthCircuit
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &c)
	if err != nil {
		return nil, fmt.Errorf("circuit compilation failed: %w", err)
	}
	return ccs, nil
}

// NewRuntime compiles the circuit and generates or loads the Groth16 keys
// at the given paths.
func NewRuntime(pkPath, vkPath string) (*Runtime, error) {
	ccs, err := Compile()
	if err != nil {
		return nil, err
	}
	pk, vk, err := setupOrLoadKeys(ccs, pkPath, vkPath)
	if err != nil {
		return nil, err
	}
	return &Runtime{ccs: ccs, pk: pk, vk: vk}, nil
}

// NewEphemeralRuntime compiles the circuit and runs a fresh trusted setup
// without touching disk. Meant for tests.
func NewEphemeralRuntime() (*Runtime, error) {
	ccs, err := Compile()
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup failed: %w", err)
	}
	return &Runtime{ccs: ccs, pk: pk, vk: vk}, nil
}

// VerifyingKey exposes the verifying key for export.
func (r *Runtime) VerifyingKey() groth16.VerifyingKey { return r.vk }

// Prove generates a Groth16 proof for the assignment and returns the
// snarkjs-shaped proof together with the ordered public inputs.
func (r *Runtime) Prove(a *Assignment) (*WireProof, *PublicInputs, error) {
	w, err := frontend.NewWitness(a.circuit(), ecc.BN254.ScalarField())
	if err != nil {
		return nil, nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(r.ccs, r.pk, w)
	if err != nil {
		return nil, nil, fmt.Errorf("proof generation failed: %w", err)
	}
	wire, err := EncodeProof(proof)
	if err != nil {
		return nil, nil, err
	}
	return wire, a.PublicInputs(), nil
}

// Verify checks a wire proof against the ordered public inputs.
func (r *Runtime) Verify(wire *WireProof, pub *PublicInputs) error {
	proof, err := DecodeProof(wire)
	if err != nil {
		return err
	}

	assignment := &AuthCircuit{}
	values := []*frontend.Variable{
		&assignment.Pseudonym,
		&assignment.Nullifier,
		&assignment.CommitmentHash,
		&assignment.RegistryRoot,
		&assignment.Challenge,
	}
	for i, s := range pub.Slice() {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return fmt.Errorf("circuit: public input %d is not a decimal integer", i)
		}
		*values[i] = v
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}
	if err := groth16.Verify(proof, r.vk, w); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	return nil
}

// setupOrLoadKeys loads the Groth16 keys from disk if both files exist;
// otherwise it runs the setup and saves them.
func setupOrLoadKeys(ccs constraint.ConstraintSystem, pkPath, vkPath string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk, pkErr := loadProvingKey(pkPath)
	vk, vkErr := loadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return pk, vk, nil
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, fmt.Errorf("groth16 setup failed: %w", err)
	}
	if err := saveProvingKey(pkPath, pk); err != nil {
		return nil, nil, err
	}
	if err := saveVerifyingKey(vkPath, vk); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}

func saveProvingKey(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = pk.WriteTo(f)
	return err
}

func saveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = vk.WriteTo(f)
	return err
}

func loadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BN254)
	_, err = pk.ReadFrom(f)
	return pk, err
}

func loadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	_, err = vk.ReadFrom(f)
	return vk, err
}
