package trie

import (
	"golang.org/x/crypto/blake2b"

	"execution-engine/pkg/serialization"
)

// Hash returns a node's content address: blake2b(canonical_bytes(node))
// (spec.md §3).
func Hash(n Node) [32]byte {
	return blake2b.Sum256(n.ToBytes())
}

// EmptyRoot is the hash of the empty trie: blake2b(empty_pointer_block_bytes),
// the raw 256-entry pointer block bytes with no outer Node tag (spec.md §3).
func EmptyRoot() [32]byte {
	w := serialization.NewWriter()
	writePointerBlock(w, EmptyPointerBlock())
	return blake2b.Sum256(w.Bytes())
}
