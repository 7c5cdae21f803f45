package proof

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// MerkleRoot computes the root over the supplied leaf hashes, combining
// pairs with keccak256(left || right). A single leaf is its own root; an odd
// node at the end of a level is promoted unchanged.
func MerkleRoot(leaves [][32]byte) [32]byte {
	if len(leaves) == 0 {
		return [32]byte{}
	}
	level := make([][32]byte, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			var combined [32]byte
			copy(combined[:], ethcrypto.Keccak256(level[i][:], level[i+1][:]))
			next = append(next, combined)
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0]
}

// LeafHash hashes raw proof bytes into a 32-byte Merkle leaf.
func LeafHash(data []byte) [32]byte {
	var leaf [32]byte
	copy(leaf[:], ethcrypto.Keccak256(data))
	return leaf
}
