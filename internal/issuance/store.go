// store.go - Holder-side credential records.
//
// A record keeps everything the hybrid prover needs later: the signed
// credential, its message labels, the commitment bytes, and the
// commitment hash plus blinding factor fixed at issuance time so the
// SNARK and the BBS+ disclosure always agree.

package issuance

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrRecordNotFound reports an unknown credential id.
var ErrRecordNotFound = errors.New("issuance: credential record not found")

// Record is one stored credential.
type Record struct {
	HolderID        string      `json:"holderId"`
	Credential      *Credential `json:"credential"`
	Signature       []byte      `json:"signature"`
	MessageLabels   []string    `json:"messageLabels"`
	Commitment      []byte      `json:"commitment"`
	CommitmentHash  string      `json:"commitmentHash"`
	BlindingFactor  string      `json:"blindingFactor"`
	IssuerPublicKey []byte      `json:"issuerPublicKey"`
	IssuedAt        time.Time   `json:"issuedAt"`
}

// Store is a JSON-file-backed credential wallet.
type Store struct {
	mu      sync.RWMutex
	path    string
	records map[string]*Record
}

// NewStore opens a store at path, loading existing records if the file
// exists.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, records: make(map[string]*Record)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("issuance: reading store: %w", err)
	}
	var records map[string]*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("issuance: parsing store: %w", err)
	}
	s.records = records
	return nil
}

// save writes the full record map; callers hold the write lock.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("issuance: marshaling store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("issuance: writing store: %w", err)
	}
	return nil
}

// Add persists a record keyed by the credential id.
func (s *Store) Add(rec *Record) error {
	if rec.Credential == nil || rec.Credential.ID == "" {
		return errors.New("issuance: record has no credential id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Credential.ID] = rec
	return s.save()
}

// Get returns the record for a credential id.
func (s *Store) Get(credentialID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[credentialID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

// List returns the records for one holder.
func (s *Store) List(holderID string) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, rec := range s.records {
		if rec.HolderID == holderID {
			out = append(out, rec)
		}
	}
	return out
}
