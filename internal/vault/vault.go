// vault.go - Master-secret lifecycle under the OS keychain.
//
// Each holder gets exactly one master secret: a BLS12-381 scalar sampled at
// enrollment, encrypted with AES-256-GCM under a process-local key and
// stored as a JSON envelope in the OS keyring (service
// "halp-credential-system", account "ms:<holderId>"). The decrypted scalar
// lives only for the duration of a single operation.

package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bls12381_fr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/zalando/go-keyring"

	"github.com/zunaedsazzad/halp-core/internal/curve"
)

const (
	// Service is the keyring service name all entries live under.
	Service = "halp-credential-system"

	// EnvelopeVersion tags the on-disk ciphertext format.
	EnvelopeVersion = 1

	ivSize  = 16
	tagSize = 16
)

// PseudonymDST prefixes the hash-to-curve input for context generators.
const PseudonymDST = "BBS_PSEUDONYM_"

var (
	// ErrAlreadyExists is returned by Generate when the holder already has
	// a master secret.
	ErrAlreadyExists = errors.New("vault: master secret already exists")

	// ErrNotFound is returned when no master secret is stored for the
	// holder.
	ErrNotFound = errors.New("vault: master secret not found")

	// ErrDecrypt is returned when the stored envelope fails authentication.
	ErrDecrypt = errors.New("vault: ciphertext authentication failed")
)

// KeyProvider supplies the process-local AES-256 key protecting stored
// master secrets. Implementations must be deterministic per process
// configuration; swapping providers must not change the envelope format.
type KeyProvider interface {
	Key() ([]byte, error)
}

// StaticKeyProvider derives the process key from fixed material via
// SHA-256. Suitable for development; production deployments substitute an
// HSM- or enclave-backed provider.
type StaticKeyProvider struct {
	Material []byte
}

// Key returns the 32-byte AES key.
func (p StaticKeyProvider) Key() ([]byte, error) {
	if len(p.Material) == 0 {
		return nil, errors.New("vault: empty key material")
	}
	sum := sha256.Sum256(p.Material)
	return sum[:], nil
}

// Metadata describes a stored master secret without exposing it.
type Metadata struct {
	PseudonymHex string    `json:"pseudonymHex"`
	CreatedAt    time.Time `json:"createdAt"`
	Version      int       `json:"version"`
}

// envelope is the keyring password payload.
type envelope struct {
	Version    int      `json:"version"`
	IV         string   `json:"iv"`
	AuthTag    string   `json:"authTag"`
	Ciphertext string   `json:"ciphertext"`
	Metadata   Metadata `json:"metadata"`
}

// Vault manages master secrets for holders.
type Vault struct {
	keys KeyProvider
}

// New builds a Vault on top of the given key provider.
func New(keys KeyProvider) *Vault {
	return &Vault{keys: keys}
}

func account(holderID string) string {
	return "ms:" + holderID
}

// Has reports whether a master secret exists for the holder.
func (v *Vault) Has(holderID string) (bool, error) {
	_, err := keyring.Get(Service, account(holderID))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("keyring lookup: %w", err)
}

// Generate samples a fresh master secret for the holder, stores it
// encrypted, and returns the metadata. Fails with ErrAlreadyExists when
// the holder is already enrolled.
func (v *Vault) Generate(holderID string) (*Metadata, error) {
	exists, err := v.Has(holderID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyExists
	}

	ms, err := curve.RandomFrBLS()
	if err != nil {
		return nil, fmt.Errorf("sampling master secret: %w", err)
	}

	// Base pseudonym Nym = G^ms on the canonical generator.
	g := curve.G1Generator()
	nym := curve.G1ScalarMul(&g, &ms)

	meta := Metadata{
		PseudonymHex: hex.EncodeToString(curve.G1ToBytes(&nym)),
		CreatedAt:    time.Now().UTC(),
		Version:      EnvelopeVersion,
	}

	env, err := v.seal(curve.ScalarToBytes(&ms), meta)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	if err := keyring.Set(Service, account(holderID), string(payload)); err != nil {
		return nil, fmt.Errorf("keyring write: %w", err)
	}
	return &meta, nil
}

// Get decrypts and returns the holder's master secret.
func (v *Vault) Get(holderID string) (bls12381_fr.Element, error) {
	var ms bls12381_fr.Element
	env, err := v.load(holderID)
	if err != nil {
		return ms, err
	}
	plain, err := v.open(env)
	if err != nil {
		return ms, err
	}
	return curve.ScalarFromBytes(plain)
}

// BasePseudonym returns the stored metadata, including the base pseudonym,
// without decrypting the secret.
func (v *Vault) BasePseudonym(holderID string) (*Metadata, error) {
	env, err := v.load(holderID)
	if err != nil {
		return nil, err
	}
	meta := env.Metadata
	return &meta, nil
}

// DeriveContextPseudonym computes G_ctx^ms where G_ctx is the
// hash-to-curve image of "BBS_PSEUDONYM_<context>". Deterministic per
// (holder, context); unlinkable across contexts.
func (v *Vault) DeriveContextPseudonym(holderID, context string) ([]byte, string, error) {
	ms, err := v.Get(holderID)
	if err != nil {
		return nil, "", err
	}
	gctx, err := curve.HashToG1([]byte(PseudonymDST+context), []byte(PseudonymDST+context))
	if err != nil {
		return nil, "", err
	}
	p := curve.G1ScalarMul(&gctx, &ms)
	return curve.G1ToBytes(&p), context, nil
}

// Delete removes the holder's master secret. Returns false when nothing
// was stored.
func (v *Vault) Delete(holderID string) (bool, error) {
	err := keyring.Delete(Service, account(holderID))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("keyring delete: %w", err)
}

func (v *Vault) load(holderID string) (*envelope, error) {
	payload, err := keyring.Get(Service, account(holderID))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("keyring read: %w", err)
	}
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return &env, nil
}

// seal encrypts the scalar bytes with AES-256-GCM using a random 16-byte
// IV, storing the 16-byte auth tag separately from the ciphertext.
func (v *Vault) seal(plain []byte, meta Metadata) (*envelope, error) {
	gcm, err := v.aead()
	if err != nil {
		return nil, err
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("sampling IV: %w", err)
	}
	sealed := gcm.Seal(nil, iv, plain, nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return &envelope{
		Version:    EnvelopeVersion,
		IV:         hex.EncodeToString(iv),
		AuthTag:    hex.EncodeToString(tag),
		Ciphertext: hex.EncodeToString(ct),
		Metadata:   meta,
	}, nil
}

func (v *Vault) open(env *envelope) ([]byte, error) {
	gcm, err := v.aead()
	if err != nil {
		return nil, err
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil || len(iv) != ivSize {
		return nil, ErrDecrypt
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil || len(tag) != tagSize {
		return nil, ErrDecrypt
	}
	ct, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, ErrDecrypt
	}
	plain, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

func (v *Vault) aead() (cipher.AEAD, error) {
	key, err := v.keys.Key()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("building cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("building GCM: %w", err)
	}
	return gcm, nil
}
