// vault_test.go - Tests for the master-secret vault against a mock
// keyring.
package vault

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/zunaedsazzad/halp-core/internal/curve"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	keyring.MockInit()
	return New(StaticKeyProvider{Material: []byte("test material")})
}

func TestGenerateAndGet(t *testing.T) {
	v := newTestVault(t)

	meta, err := v.Generate("alice")
	require.NoError(t, err)
	require.NotEmpty(t, meta.PseudonymHex)
	assert.Equal(t, EnvelopeVersion, meta.Version)

	ms, err := v.Get("alice")
	require.NoError(t, err)
	assert.False(t, ms.IsZero())

	// The stored base pseudonym is G^ms.
	g := curve.G1Generator()
	nym := curve.G1ScalarMul(&g, &ms)
	assert.Equal(t, hex.EncodeToString(curve.G1ToBytes(&nym)), meta.PseudonymHex)

	got, err := v.BasePseudonym("alice")
	require.NoError(t, err)
	assert.Equal(t, meta.PseudonymHex, got.PseudonymHex)

	has, err := v.Has("alice")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestGenerateIsOncePerHolder(t *testing.T) {
	v := newTestVault(t)

	_, err := v.Generate("bob")
	require.NoError(t, err)

	_, err = v.Generate("bob")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetUnknownHolder(t *testing.T) {
	v := newTestVault(t)

	_, err := v.Get("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTamperedEnvelopeFailsAuthentication(t *testing.T) {
	v := newTestVault(t)

	_, err := v.Generate("carol")
	require.NoError(t, err)

	payload, err := keyring.Get(Service, "ms:carol")
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(payload), &env))
	// Flip the first ciphertext nibble.
	if env.Ciphertext[0] == '0' {
		env.Ciphertext = "1" + env.Ciphertext[1:]
	} else {
		env.Ciphertext = "0" + env.Ciphertext[1:]
	}
	mutated, err := json.Marshal(&env)
	require.NoError(t, err)
	require.NoError(t, keyring.Set(Service, "ms:carol", string(mutated)))

	_, err = v.Get("carol")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestWrongKeyFailsAuthentication(t *testing.T) {
	keyring.MockInit()
	v1 := New(StaticKeyProvider{Material: []byte("key one")})
	_, err := v1.Generate("dave")
	require.NoError(t, err)

	v2 := New(StaticKeyProvider{Material: []byte("key two")})
	_, err = v2.Get("dave")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestContextPseudonyms(t *testing.T) {
	v := newTestVault(t)
	_, err := v.Generate("erin")
	require.NoError(t, err)

	p1, ctx, err := v.DeriveContextPseudonym("erin", "login.example.com")
	require.NoError(t, err)
	assert.Equal(t, "login.example.com", ctx)
	require.Len(t, p1, curve.G1CompressedSize)

	// Deterministic per context.
	p1b, _, err := v.DeriveContextPseudonym("erin", "login.example.com")
	require.NoError(t, err)
	assert.Equal(t, p1, p1b)

	// Different context, different pseudonym.
	p2, _, err := v.DeriveContextPseudonym("erin", "shop.example.com")
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestDelete(t *testing.T) {
	v := newTestVault(t)
	_, err := v.Generate("frank")
	require.NoError(t, err)

	removed, err := v.Delete("frank")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = v.Delete("frank")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = v.Get("frank")
	assert.ErrorIs(t, err, ErrNotFound)
}
