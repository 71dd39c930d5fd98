package service

import (
	"gift-exchange-escrow/pkg/merkle"

	"github.com/ethereum/go-ethereum/common"
)

// MerkleProofVerifier implements ports.ProofVerifier over sorted-pair keccak trees.
type MerkleProofVerifier struct{}

// NewMerkleProofVerifier creates a stateless MerkleProofVerifier.
func NewMerkleProofVerifier() *MerkleProofVerifier {
	return &MerkleProofVerifier{}
}

// VerifyAssignment checks that (giver, recipient, nonce) is a leaf under root.
func (v *MerkleProofVerifier) VerifyAssignment(root common.Hash, giver, recipient common.Address, nonce [32]byte, proof []common.Hash) bool {
	return merkle.Verify(proof, root, merkle.LeafHash(giver, recipient, nonce))
}
