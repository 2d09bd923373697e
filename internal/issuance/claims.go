// claims.go - Claims encryption for anonymous issuance.
//
// The holder encrypts the claims payload to the issuer using a key both
// sides derive from the request nonce and the holder's pseudonym. Wire
// format is "iv:tag:ct", hex, aes-256-gcm with a 16-byte nonce and the
// 16-byte tag carried separately.

package issuance

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// claimsKeyDST separates the claims key derivation from other SHA-256
// uses.
const claimsKeyDST = "HALP_CLAIMS_KEY_V1"

const (
	claimsIVSize  = 16
	claimsTagSize = 16
)

// ErrClaimsFormat reports a malformed "iv:tag:ct" blob.
var ErrClaimsFormat = errors.New("issuance: malformed encrypted claims")

// ClaimsKey derives the shared aes-256 key from the request nonce and the
// holder pseudonym bytes.
func ClaimsKey(nonce, pseudonym []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(claimsKeyDST))
	h.Write(nonce)
	h.Write(pseudonym)
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

// EncryptClaims serializes and encrypts the claims map.
func EncryptClaims(key [32]byte, claims map[string]interface{}) (string, error) {
	plaintext, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("issuance: marshaling claims: %w", err)
	}
	aead, err := claimsAEAD(key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, claimsIVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("issuance: sampling iv: %w", err)
	}
	sealed := aead.Seal(nil, iv, plaintext, nil)
	ct := sealed[:len(sealed)-claimsTagSize]
	tag := sealed[len(sealed)-claimsTagSize:]
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// DecryptClaims reverses EncryptClaims.
func DecryptClaims(key [32]byte, blob string) (map[string]interface{}, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return nil, ErrClaimsFormat
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != claimsIVSize {
		return nil, ErrClaimsFormat
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != claimsTagSize {
		return nil, ErrClaimsFormat
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, ErrClaimsFormat
	}
	aead, err := claimsAEAD(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("issuance: decrypting claims: %w", err)
	}
	var claims map[string]interface{}
	if err := json.Unmarshal(plaintext, &claims); err != nil {
		return nil, fmt.Errorf("issuance: unmarshaling claims: %w", err)
	}
	return claims, nil
}

// ClaimsHash returns the lower-case hex SHA-256 of the canonical claims
// JSON (Go's encoder sorts map keys).
func ClaimsHash(claims map[string]interface{}) (string, error) {
	b, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("issuance: marshaling claims: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func claimsAEAD(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("issuance: cipher init: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, claimsIVSize)
}
