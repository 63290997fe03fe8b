package trie

import "errors"

// ErrNodeNotFound is returned when a hash has no corresponding node in the
// store; it generally indicates either a bug in the write algorithm or a
// caller-supplied root that was never produced by a commit.
var ErrNodeNotFound = errors.New("trie: node not found")

// NodeStore is the minimal hash-addressed byte store the trie algorithms
// need. pkg/trie/store's Transaction types satisfy this interface
// structurally; pkg/trie does not import pkg/trie/store, avoiding an
// import cycle between the node algebra and its backing transactions
// (spec.md §4.4's Environment/Transaction contract).
type NodeStore interface {
	Get(hash [32]byte) ([]byte, bool, error)
	Put(hash [32]byte, data []byte) error
}

func getNode(s NodeStore, h [32]byte) (Node, error) {
	raw, ok, err := s.Get(h)
	if err != nil {
		return Node{}, err
	}
	if !ok {
		return Node{}, ErrNodeNotFound
	}
	return NodeFromBytes(raw)
}

func putNode(s NodeStore, n Node) (Pointer, [32]byte, error) {
	h := Hash(n)
	if err := s.Put(h, n.ToBytes()); err != nil {
		return Pointer{}, h, err
	}
	kind := PointerNode
	if n.Kind == KindLeaf {
		kind = PointerLeaf
	}
	return Pointer{Kind: kind, Hash: h}, h, nil
}
