// credential.go - W3C credential shape and the canonical message vector.
//
// BBS+ signs the vector, not the JSON document; both sides must derive a
// bit-identical vector from the credential or verification fails. The
// vector order is: @context, id, type, issuer, validFrom, validUntil when
// present, subject id when present, then the remaining subject fields in
// sorted key order as "key:value". A commitment-bound credential prepends
// the 48-byte commitment as message 0.

package issuance

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Credential is the signed W3C verifiable credential.
type Credential struct {
	Context    []string               `json:"@context"`
	ID         string                 `json:"id"`
	Type       []string               `json:"type"`
	Issuer     string                 `json:"issuer"`
	ValidFrom  string                 `json:"validFrom"`
	ValidUntil string                 `json:"validUntil,omitempty"`
	Subject    map[string]interface{} `json:"credentialSubject"`
}

// DefaultContext is the W3C credentials context for newly issued
// credentials.
var DefaultContext = []string{"https://www.w3.org/ns/credentials/v2"}

// MessageVector derives the canonical message vector and its labels. When
// commitment is non-nil it becomes message 0 with label "commitment".
func MessageVector(vc *Credential, commitment []byte) ([][]byte, []string, error) {
	var messages [][]byte
	var labels []string

	if commitment != nil {
		messages = append(messages, commitment)
		labels = append(labels, "commitment")
	}

	push := func(label string, value []byte) {
		messages = append(messages, value)
		labels = append(labels, label)
	}
	pushJSON := func(label string, value interface{}) error {
		b, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("issuance: canonicalizing %s: %w", label, err)
		}
		push(label, b)
		return nil
	}

	if err := pushJSON("@context", vc.Context); err != nil {
		return nil, nil, err
	}
	push("id", []byte(vc.ID))
	if err := pushJSON("type", vc.Type); err != nil {
		return nil, nil, err
	}
	if err := pushJSON("issuer", vc.Issuer); err != nil {
		return nil, nil, err
	}
	push("validFrom", []byte(vc.ValidFrom))
	if vc.ValidUntil != "" {
		push("validUntil", []byte(vc.ValidUntil))
	}

	if id, ok := vc.Subject["id"].(string); ok {
		push("subject.id", []byte(id))
	}

	keys := make([]string, 0, len(vc.Subject))
	for k := range vc.Subject {
		if k == "id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rendered, err := renderValue(vc.Subject[k])
		if err != nil {
			return nil, nil, fmt.Errorf("issuance: canonicalizing subject.%s: %w", k, err)
		}
		push("subject."+k, []byte(k+":"+rendered))
	}
	return messages, labels, nil
}

// renderValue keeps strings verbatim and JSON-encodes everything else.
func renderValue(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
