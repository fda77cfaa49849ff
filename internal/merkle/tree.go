package merkle

import (
	"errors"
	"fmt"
)

// ErrNoLeaves indicates a tree build was attempted with zero leaves.
var ErrNoLeaves = errors.New("merkle tree requires at least one leaf")

// Tree is the fully materialized commitment tree a campaign owner builds
// off-system before publishing the root. Levels run leaves-first.
type Tree struct {
	levels [][]Digest
}

// BuildTree constructs the canonical tree over the given leaf digests.
//
// Each level is derived by combining adjacent pairs in value-sorted order;
// a trailing unpaired node is combined with itself.
func BuildTree(leaves []Digest) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}

	levels := make([][]Digest, 0, 8)
	level := make([]Digest, len(leaves))
	copy(level, leaves)
	levels = append(levels, level)

	for len(level) > 1 {
		next := make([]Digest, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left // self-pairing for a trailing odd node
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, combine(left, right))
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}, nil
}

// Root returns the committed root digest.
func (t *Tree) Root() Digest {
	return t.levels[len(t.levels)-1][0]
}

// LeafCount returns the number of leaves the tree was built over.
func (t *Tree) LeafCount() int {
	return len(t.levels[0])
}

// Proof returns the ordered sibling digests for the leaf at index.
//
// For a self-paired node the emitted sibling is the node's own digest,
// which the sorted-pair combine rule resolves identically to the build.
func (t *Tree) Proof(index int) ([]Digest, error) {
	if index < 0 || index >= t.LeafCount() {
		return nil, fmt.Errorf("leaf index %d out of range [0, %d)", index, t.LeafCount())
	}

	proof := make([]Digest, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index
		}
		proof = append(proof, level[sibling])
		index /= 2
	}
	return proof, nil
}
