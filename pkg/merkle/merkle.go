// Package merkle implements the sorted-pair keccak256 Merkle scheme used to
// prove giver/recipient assignments against a published root.
package merkle

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// MaxProofDepth bounds the number of siblings accepted in a proof.
// 2^32 leaves is far beyond the participant cap.
const MaxProofDepth = 32

var ErrEmptyTree = errors.New("merkle: no leaves")

func keccak(parts ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// LeafHash returns keccak256(giver ‖ recipient ‖ nonce), matching the packed
// (address, address, uint256) encoding.
func LeafHash(giver, recipient common.Address, nonce [32]byte) common.Hash {
	return keccak(giver.Bytes(), recipient.Bytes(), nonce[:])
}

// HashPair hashes two nodes in ascending byte order, so the result does not
// depend on which side of the tree a sibling sits.
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return keccak(a[:], b[:])
}

// Verify folds leaf with every sibling of proof in order and reports whether
// the result equals root.
func Verify(proof []common.Hash, root, leaf common.Hash) bool {
	if root == (common.Hash{}) || len(proof) > MaxProofDepth {
		return false
	}
	computed := leaf
	for _, sibling := range proof {
		computed = HashPair(computed, sibling)
	}
	return computed == root
}

// Tree is a fully materialised Merkle tree. levels[0] holds the leaves.
type Tree struct {
	levels [][]common.Hash
}

// BuildTree constructs a tree over leaves in the given order. A node without
// a sibling is promoted unchanged to the next level.
func BuildTree(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)
	t := &Tree{levels: [][]common.Hash{level}}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, HashPair(level[i], level[i+1]))
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t, nil
}

// Root returns the tree root.
func (t *Tree) Root() common.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof returns the sibling path for the leaf at index i.
func (t *Tree) Proof(i int) ([]common.Hash, error) {
	if i < 0 || i >= len(t.levels[0]) {
		return nil, errors.New("merkle: leaf index out of range")
	}
	var proof []common.Hash
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := i ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		i /= 2
	}
	return proof, nil
}
