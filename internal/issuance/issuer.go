// issuer.go - Anonymous credential issuance.
//
// The issuer never learns the holder's master secret: the request carries
// a Pedersen commitment to it plus a Schnorr proof of opening. On
// acceptance the issuer signs the canonical message vector with the
// commitment bound as message 0, which later lets the verifier link the
// BBS+ disclosure to the SNARK through the shared commitment.

package issuance

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	bls12381_fr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/zunaedsazzad/halp-core/internal/bbs"
	"github.com/zunaedsazzad/halp-core/internal/commitment"
	"github.com/zunaedsazzad/halp-core/internal/curve"
	"github.com/zunaedsazzad/halp-core/internal/params"
)

var (
	// ErrProofRejected reports a failed Schnorr opening proof.
	ErrProofRejected = errors.New("issuance: commitment proof rejected")

	// ErrClaimsMismatch reports a claims hash that does not match the
	// decrypted payload.
	ErrClaimsMismatch = errors.New("issuance: claims hash mismatch")
)

// WireSchnorrProof is the commitment proof as it travels in the request:
// hex points, decimal response scalars. The proof nonce is the request
// nonce.
type WireSchnorrProof struct {
	Challenge string   `json:"challenge"`
	Responses []string `json:"responses"`
	T         string   `json:"T"`
}

// Request is the anonymous issuance request body.
type Request struct {
	Pseudonym       string           `json:"pseudonym"`
	Commitment      string           `json:"commitment"`
	CommitmentProof WireSchnorrProof `json:"commitmentProof"`
	CredentialType  string           `json:"credentialType"`
	EncryptedClaims string           `json:"encryptedClaims"`
	ClaimsHash      string           `json:"claimsHash"`
	Nonce           string           `json:"nonce"`
	Timestamp       int64            `json:"timestamp"`
}

// Issued is the issuance result handed back to the holder.
type Issued struct {
	Credential    *Credential `json:"credential"`
	Signature     []byte      `json:"signature"`
	MessageLabels []string    `json:"messageLabels"`
}

// Issuer signs credentials against a parameter set and a BBS+ key pair.
type Issuer struct {
	DID    string
	Params *params.PublicParameters
	Keys   *bbs.KeyPair
}

// NewIssuer wires an issuer identity to its parameter set and signing
// keys.
func NewIssuer(did string, pp *params.PublicParameters, keys *bbs.KeyPair) *Issuer {
	return &Issuer{DID: did, Params: pp, Keys: keys}
}

// IssuanceContext is the Schnorr context for an issuance request:
// "credential:" plus the credential type, UTF-8.
func IssuanceContext(credentialType string) []byte {
	return []byte("credential:" + credentialType)
}

// Issue validates an anonymous issuance request and returns the signed
// credential. The claims become the credential subject.
func (is *Issuer) Issue(req *Request) (*Issued, error) {
	pseudonym, err := hex.DecodeString(req.Pseudonym)
	if err != nil || len(pseudonym) != curve.G1CompressedSize {
		return nil, fmt.Errorf("issuance: bad pseudonym: %w", curve.ErrInvalidPoint)
	}
	if _, err := curve.G1FromBytes(pseudonym); err != nil {
		return nil, fmt.Errorf("issuance: bad pseudonym: %w", err)
	}
	commitBytes, err := hex.DecodeString(req.Commitment)
	if err != nil || len(commitBytes) != curve.G1CompressedSize {
		return nil, fmt.Errorf("issuance: bad commitment: %w", curve.ErrInvalidPoint)
	}
	nonce, err := hex.DecodeString(req.Nonce)
	if err != nil || len(nonce) == 0 {
		return nil, errors.New("issuance: bad nonce")
	}

	proof, err := parseWireProof(commitBytes, &req.CommitmentProof, nonce)
	if err != nil {
		return nil, err
	}
	numAttrs := len(proof.Responses) - 2
	if numAttrs < 0 || numAttrs > is.Params.MaxAttributes {
		return nil, ErrProofRejected
	}
	if err := commitment.Verify(is.Params, proof, IssuanceContext(req.CredentialType), numAttrs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofRejected, err)
	}

	key := ClaimsKey(nonce, pseudonym)
	claims, err := DecryptClaims(key, req.EncryptedClaims)
	if err != nil {
		return nil, err
	}
	sum, err := ClaimsHash(claims)
	if err != nil {
		return nil, err
	}
	if sum != req.ClaimsHash {
		return nil, ErrClaimsMismatch
	}

	vc, err := is.buildCredential(req, claims)
	if err != nil {
		return nil, err
	}
	messages, labels, err := MessageVector(vc, commitBytes)
	if err != nil {
		return nil, err
	}
	sig, err := bbs.Sign(is.Keys.Private, is.Keys.Public, messages)
	if err != nil {
		return nil, fmt.Errorf("issuance: signing: %w", err)
	}
	return &Issued{
		Credential:    vc,
		Signature:     sig.Bytes(),
		MessageLabels: labels,
	}, nil
}

func (is *Issuer) buildCredential(req *Request, claims map[string]interface{}) (*Credential, error) {
	var idBytes [16]byte
	if _, err := rand.Read(idBytes[:]); err != nil {
		return nil, fmt.Errorf("issuance: sampling credential id: %w", err)
	}
	subject := make(map[string]interface{}, len(claims)+1)
	for k, v := range claims {
		subject[k] = v
	}
	if _, ok := subject["id"]; !ok {
		subject["id"] = "did:halp:pseudo:" + req.Pseudonym
	}
	return &Credential{
		Context:   append([]string(nil), DefaultContext...),
		ID:        "urn:uuid:" + hex.EncodeToString(idBytes[:]),
		Type:      []string{"VerifiableCredential", req.CredentialType},
		Issuer:    is.DID,
		ValidFrom: time.Now().UTC().Format(time.RFC3339),
		Subject:   subject,
	}, nil
}

// parseWireProof reconstructs the internal Schnorr proof from the wire
// fields.
func parseWireProof(commitBytes []byte, w *WireSchnorrProof, nonce []byte) (*commitment.SchnorrProof, error) {
	tBytes, err := hex.DecodeString(w.T)
	if err != nil || len(tBytes) != curve.G1CompressedSize {
		return nil, fmt.Errorf("issuance: bad proof point T: %w", curve.ErrInvalidPoint)
	}
	chBytes, err := hex.DecodeString(w.Challenge)
	if err != nil || len(chBytes) != curve.ScalarSize {
		return nil, fmt.Errorf("issuance: bad proof challenge: %w", curve.ErrInvalidScalar)
	}
	ch, err := curve.ScalarFromBytes(chBytes)
	if err != nil {
		return nil, fmt.Errorf("issuance: bad proof challenge: %w", err)
	}
	responses := make([]bls12381_fr.Element, len(w.Responses))
	for i, s := range w.Responses {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("issuance: response %d is not a decimal integer", i)
		}
		responses[i].SetBigInt(v)
	}
	return &commitment.SchnorrProof{
		C:         commitBytes,
		T:         tBytes,
		Challenge: ch,
		Responses: responses,
		Nonce:     nonce,
	}, nil
}
