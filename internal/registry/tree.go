// tree.go - Indexed Merkle tree over spent nullifiers.
//
// Leaves form a sorted linked list: each leaf points at the next-larger
// value (nextValue 0 marks the tail), so the predecessor leaf of any
// absent value is a short non-membership witness. Leaf hash is
// Poseidon3(value, nextValue, nextIdx); inner nodes are Poseidon2 with
// precomputed empty-subtree hashes padding the unpopulated right side.

package registry

import (
	"errors"

	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/zunaedsazzad/halp-core/internal/poseidon"
)

// TreeHeight fixes the Merkle depth: 2^20 leaf slots.
const TreeHeight = 20

var (
	// ErrAlreadyPresent is returned by Insert for a duplicate value.
	ErrAlreadyPresent = errors.New("registry: nullifier already present")

	// ErrIsPresent is returned by NonMembershipProof when the value is in
	// the tree.
	ErrIsPresent = errors.New("registry: value is present")

	// ErrZeroValue rejects inserting the reserved head value.
	ErrZeroValue = errors.New("registry: zero is reserved for the head leaf")
)

// Leaf is one entry of the sorted linked list.
type Leaf struct {
	Value     fr.Element
	NextValue fr.Element
	NextIdx   uint32
}

// Hash returns Poseidon3(value, nextValue, nextIdx).
func (l *Leaf) Hash() fr.Element {
	var idx fr.Element
	idx.SetUint64(uint64(l.NextIdx))
	return poseidon.Hash3(l.Value, l.NextValue, idx)
}

// NonMembershipProof witnesses that a value is absent: the low-nullifier
// leaf bracketing it plus its Merkle path to the root.
type NonMembershipProof struct {
	LeafIndex    int
	LowValue     fr.Element
	LowNextValue fr.Element
	LowNextIdx   uint32
	Siblings     []fr.Element
	PathIndices  []int
	Root         fr.Element
}

// tree is the raw indexed Merkle tree. Not goroutine-safe; Registry
// serializes access.
type tree struct {
	height  int
	leaves  []Leaf
	indexOf map[string]int
	empty   []fr.Element // empty-subtree hash per level

	levels [][]fr.Element
	dirty  bool
}

func newTree(height int) *tree {
	t := &tree{
		height:  height,
		indexOf: make(map[string]int),
		empty:   emptyHashes(height),
		dirty:   true,
	}
	// Distinguished head leaf representing the empty list.
	t.leaves = append(t.leaves, Leaf{})
	t.build()
	return t
}

// emptyHashes precomputes E[0..height] with E[0] the empty leaf hash and
// E[l+1] = Poseidon2(E[l], E[l]).
func emptyHashes(height int) []fr.Element {
	out := make([]fr.Element, height+1)
	var zero fr.Element
	out[0] = poseidon.Hash3(zero, zero, zero)
	for l := 0; l < height; l++ {
		out[l+1] = poseidon.Hash2(out[l], out[l])
	}
	return out
}

func key(v *fr.Element) string {
	return v.Text(16)
}

func (t *tree) has(v *fr.Element) bool {
	_, ok := t.indexOf[key(v)]
	return ok
}

// lowLeafIndex finds the predecessor leaf: the largest value' < v with
// nextValue 0 or nextValue > v. Unique by the sorted-list invariant;
// linear scan is fine at registry scale.
func (t *tree) lowLeafIndex(v *fr.Element) int {
	for i := range t.leaves {
		l := &t.leaves[i]
		if l.Value.Cmp(v) >= 0 {
			continue
		}
		if l.NextValue.IsZero() || l.NextValue.Cmp(v) > 0 {
			return i
		}
	}
	// The head leaf always qualifies for values above every entry.
	return 0
}

// insert links v into the sorted list and returns its leaf index.
func (t *tree) insert(v fr.Element) (int, error) {
	if v.IsZero() {
		return 0, ErrZeroValue
	}
	if t.has(&v) {
		return 0, ErrAlreadyPresent
	}
	if len(t.leaves) >= 1<<t.height {
		return 0, errors.New("registry: tree is full")
	}

	p := t.lowLeafIndex(&v)
	pred := &t.leaves[p]

	newIdx := len(t.leaves)
	t.leaves = append(t.leaves, Leaf{
		Value:     v,
		NextValue: pred.NextValue,
		NextIdx:   pred.NextIdx,
	})
	pred = &t.leaves[p] // re-take: append may have moved the backing array
	pred.NextValue = v
	pred.NextIdx = uint32(newIdx)

	t.indexOf[key(&v)] = newIdx
	t.dirty = true
	// Rebuild before returning: every mutation happens under the
	// registry's write lock, so readers holding only the read lock must
	// never find a dirty tree.
	t.build()
	return newIdx, nil
}

// build recomputes the sparse level arrays. Mutating paths call it
// before releasing the write lock; on read paths it is a no-op.
func (t *tree) build() {
	if !t.dirty && t.levels != nil {
		return
	}
	levels := make([][]fr.Element, t.height+1)
	levels[0] = make([]fr.Element, len(t.leaves))
	for i := range t.leaves {
		levels[0][i] = t.leaves[i].Hash()
	}
	for l := 0; l < t.height; l++ {
		cur := levels[l]
		next := make([]fr.Element, (len(cur)+1)/2)
		for i := range next {
			left := t.nodeAt(cur, 2*i, l)
			right := t.nodeAt(cur, 2*i+1, l)
			next[i] = poseidon.Hash2(left, right)
		}
		levels[l+1] = next
	}
	t.levels = levels
	t.dirty = false
}

func (t *tree) nodeAt(level []fr.Element, i, l int) fr.Element {
	if i < len(level) {
		return level[i]
	}
	return t.empty[l]
}

func (t *tree) root() fr.Element {
	t.build()
	return t.levels[t.height][0]
}

// pathFor collects siblings and direction bits for the leaf at idx.
func (t *tree) pathFor(idx int) (siblings []fr.Element, pathIndices []int) {
	t.build()
	siblings = make([]fr.Element, t.height)
	pathIndices = make([]int, t.height)
	pos := idx
	for l := 0; l < t.height; l++ {
		sib := pos ^ 1
		siblings[l] = t.nodeAt(t.levels[l], sib, l)
		pathIndices[l] = pos & 1
		pos >>= 1
	}
	return siblings, pathIndices
}

// nonMembership builds a proof that v is absent.
func (t *tree) nonMembership(v fr.Element) (*NonMembershipProof, error) {
	if t.has(&v) {
		return nil, ErrIsPresent
	}
	p := t.lowLeafIndex(&v)
	low := t.leaves[p]
	siblings, pathIndices := t.pathFor(p)
	return &NonMembershipProof{
		LeafIndex:    p,
		LowValue:     low.Value,
		LowNextValue: low.NextValue,
		LowNextIdx:   low.NextIdx,
		Siblings:     siblings,
		PathIndices:  pathIndices,
		Root:         t.root(),
	}, nil
}

// VerifyNonMembership rehashes the low leaf up the supplied path and
// checks the range bracket and the root. Pure function of its inputs.
func VerifyNonMembership(v fr.Element, proof *NonMembershipProof) bool {
	if proof == nil || len(proof.Siblings) != len(proof.PathIndices) {
		return false
	}
	// Bracket: lowValue < v and (nextValue == 0 or v < nextValue).
	if proof.LowValue.Cmp(&v) >= 0 {
		return false
	}
	if !proof.LowNextValue.IsZero() && proof.LowNextValue.Cmp(&v) <= 0 {
		return false
	}

	low := Leaf{Value: proof.LowValue, NextValue: proof.LowNextValue, NextIdx: proof.LowNextIdx}
	cur := low.Hash()
	for i, sib := range proof.Siblings {
		switch proof.PathIndices[i] {
		case 0:
			cur = poseidon.Hash2(cur, sib)
		case 1:
			cur = poseidon.Hash2(sib, cur)
		default:
			return false
		}
	}
	return cur.Equal(&proof.Root)
}

// EmptyTreeProof synthesizes the non-membership proof a client falls back
// to when the registry is unreachable: the head leaf of an empty tree of
// the given height. Verification against a non-empty registry root fails,
// which is the intended outcome.
func EmptyTreeProof(height int) *NonMembershipProof {
	empty := emptyHashes(height)
	siblings := make([]fr.Element, height)
	pathIndices := make([]int, height)
	var zero fr.Element
	root := poseidon.Hash3(zero, zero, zero)
	for l := 0; l < height; l++ {
		siblings[l] = empty[l]
		root = poseidon.Hash2(root, empty[l])
	}
	return &NonMembershipProof{
		Siblings:    siblings,
		PathIndices: pathIndices,
		Root:        root,
	}
}
