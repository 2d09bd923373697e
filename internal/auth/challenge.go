// challenge.go - Session challenge issuance and lifecycle.
//
// Challenges are process-local: issued with a TTL, swept periodically,
// and consumed at most once on successful verification.

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/zunaedsazzad/halp-core/internal/circuit"
	"github.com/zunaedsazzad/halp-core/internal/curve"
)

const (
	// DefaultTTL is the challenge lifetime.
	DefaultTTL = 5 * time.Minute

	// DefaultSweepInterval is how often expired challenges are evicted.
	DefaultSweepInterval = 60 * time.Second
)

// Challenge is one issued session challenge.
type Challenge struct {
	ID           string `json:"challengeId"`
	Value        string `json:"challenge"`
	Domain       string `json:"domain"`
	RegistryRoot string `json:"registryRoot"`
	CircuitID    string `json:"circuitId"`
	ExpiresAt    int64  `json:"expiresAt"` // ms epoch
}

// ChallengeStore issues and tracks challenges. rootFn supplies the
// current registry root hex for embedding into new challenges.
type ChallengeStore struct {
	mu     sync.Mutex
	byID   map[string]*Challenge
	ttl    time.Duration
	rootFn func() string

	done chan struct{}
	once sync.Once
}

// NewChallengeStore starts the store and its background sweeper.
func NewChallengeStore(ttl, sweepInterval time.Duration, rootFn func() string) *ChallengeStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	s := &ChallengeStore{
		byID:   make(map[string]*Challenge),
		ttl:    ttl,
		rootFn: rootFn,
		done:   make(chan struct{}),
	}
	go s.sweep(sweepInterval)
	return s
}

// Issue creates a fresh challenge for a domain.
func (s *ChallengeStore) Issue(domain string) (*Challenge, error) {
	now := time.Now()

	var suffix [4]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return nil, errf(KindInternal, "sampling challenge id: %v", err)
	}
	value, err := curve.RandomFrBLS()
	if err != nil {
		return nil, errf(KindInternal, "sampling challenge value: %v", err)
	}

	ch := &Challenge{
		ID:           "ch_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + hex.EncodeToString(suffix[:]),
		Value:        hex.EncodeToString(curve.ScalarToBytes(&value)),
		Domain:       domain,
		RegistryRoot: s.rootFn(),
		CircuitID:    circuit.CircuitID,
		ExpiresAt:    now.Add(s.ttl).UnixMilli(),
	}

	s.mu.Lock()
	s.byID[ch.ID] = ch
	s.mu.Unlock()
	return ch, nil
}

// Get looks up a challenge by id.
func (s *ChallengeStore) Get(id string) (*Challenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.byID[id]
	return ch, ok
}

// Consume evicts a used challenge; eviction is what makes consumption
// single-use. Idempotent.
func (s *ChallengeStore) Consume(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// Len reports the number of live challenges.
func (s *ChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Close stops the sweeper.
func (s *ChallengeStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *ChallengeStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now().UnixMilli()
			s.mu.Lock()
			for id, ch := range s.byID {
				if now >= ch.ExpiresAt {
					delete(s.byID, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
