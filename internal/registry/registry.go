// registry.go - Concurrency-safe nullifier registry.
//
// Wraps the indexed Merkle tree with write-once nullifier records and a
// ring of recent roots for the verifier's freshness window. Inserts take
// the exclusive lock across predecessor search, append and recompute;
// readers see a snapshot consistent with the published root.

package registry

import (
	"sync"
	"time"

	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// NullifierRecord is the write-once registration entry for a spent
// nullifier.
type NullifierRecord struct {
	Nullifier string    `json:"nullifier"`
	Domain    string    `json:"domain"`
	Pseudonym string    `json:"pseudonym"`
	Timestamp time.Time `json:"timestamp"`
	TreeIndex int       `json:"treeIndex"`
}

// Registry owns the spent-nullifier set.
type Registry struct {
	mu      sync.RWMutex
	tree    *tree
	records map[string]*NullifierRecord

	recent     []fr.Element
	recentSize int

	updatedAt time.Time
}

// New creates a registry with the standard tree height and a recent-roots
// window of recentWindow entries (minimum 1: the current root).
func New(recentWindow int) *Registry {
	if recentWindow < 1 {
		recentWindow = 1
	}
	r := &Registry{
		tree:       newTree(TreeHeight),
		records:    make(map[string]*NullifierRecord),
		recentSize: recentWindow,
		updatedAt:  time.Now().UTC(),
	}
	r.recent = []fr.Element{r.tree.root()}
	return r
}

// Height returns the tree height.
func (r *Registry) Height() int { return TreeHeight }

// Root returns the current tree root.
func (r *Registry) Root() fr.Element {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.root()
}

// LeafCount returns the number of registered nullifiers (the head leaf
// excluded).
func (r *Registry) LeafCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tree.leaves) - 1
}

// UpdatedAt returns the time of the last successful insert.
func (r *Registry) UpdatedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updatedAt
}

// Has reports whether the nullifier has been registered.
func (r *Registry) Has(v fr.Element) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.has(&v)
}

// Record returns the registration entry for a nullifier, if any.
func (r *Registry) Record(v fr.Element) (*NullifierRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[key(&v)]
	return rec, ok
}

// Insert registers a nullifier and returns its tree index and the new
// root. Fails with ErrAlreadyPresent on reuse; the record is write-once.
func (r *Registry) Insert(v fr.Element, domain, pseudonym string, at time.Time) (int, fr.Element, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.tree.insert(v)
	if err != nil {
		return 0, fr.Element{}, err
	}
	newRoot := r.tree.root()

	r.records[key(&v)] = &NullifierRecord{
		Nullifier: v.Text(16),
		Domain:    domain,
		Pseudonym: pseudonym,
		Timestamp: at,
		TreeIndex: idx,
	}
	r.recent = append(r.recent, newRoot)
	if len(r.recent) > r.recentSize {
		r.recent = r.recent[len(r.recent)-r.recentSize:]
	}
	r.updatedAt = at
	return idx, newRoot, nil
}

// NonMembershipProof builds a proof that v is absent from the current
// tree. Fails with ErrIsPresent when v is registered.
func (r *Registry) NonMembershipProof(v fr.Element) (*NonMembershipProof, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.nonMembership(v)
}

// RecentRoots returns the roots inside the freshness window, oldest first.
func (r *Registry) RecentRoots() []fr.Element {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]fr.Element, len(r.recent))
	copy(out, r.recent)
	return out
}

// RootIsRecent reports whether the claimed root is inside the configured
// freshness window. With a window of 1 only the current root is accepted.
func (r *Registry) RootIsRecent(root fr.Element) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.recent {
		if r.recent[i].Equal(&root) {
			return true
		}
	}
	return false
}
