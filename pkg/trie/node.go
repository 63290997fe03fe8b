// Package trie implements the radix-256 Merkle-Patricia trie of spec.md
// §3 and §4.4: Leaf/Extension/Branch node types, their canonical byte
// encoding and blake2b content hashing, and the pure read/write algorithms
// over an abstract hash-addressed node store.
package trie

import (
	"execution-engine/pkg/key"
	"execution-engine/pkg/serialization"
	"execution-engine/pkg/value"
)

// NodeKind tags the closed Node union.
type NodeKind byte

const (
	KindLeaf NodeKind = iota
	KindExtension
	KindBranch
)

// PointerKind tags which node shape a Pointer addresses.
type PointerKind byte

const (
	PointerLeaf PointerKind = iota
	PointerNode
)

// Pointer is a content-addressed reference to a child node: spec.md §3's
// Pointer ∈ {LeafPointer(hash), NodePointer(hash)}.
type Pointer struct {
	Kind PointerKind
	Hash [32]byte
}

// LeafPointer constructs a pointer to a Leaf node.
func LeafPointer(h [32]byte) Pointer { return Pointer{Kind: PointerLeaf, Hash: h} }

// NodePointer constructs a pointer to a Branch or Extension node.
func NodePointer(h [32]byte) Pointer { return Pointer{Kind: PointerNode, Hash: h} }

// PointerBlock is spec.md §3's `[Option<Pointer>; 256]`: a nil entry is
// Option::None.
type PointerBlock [256]*Pointer

// EmptyPointerBlock returns a fresh, all-empty block.
func EmptyPointerBlock() PointerBlock { return PointerBlock{} }

// Leaf stores one (Key, Value) pair at a trie's terminal position.
type Leaf struct {
	Key   key.Key
	Value value.Value
}

// Extension compresses a run of shared key bytes ("affix") above a single
// child pointer.
type Extension struct {
	Affix   []byte
	Pointer Pointer
}

// Branch is spec.md §3's `Node{pointer_block}`: a 256-way fan-out node.
type Branch struct {
	Block PointerBlock
}

// Node is the closed tagged union of the three node shapes. Exactly one of
// Leaf/Ext/Branch is meaningful, selected by Kind.
type Node struct {
	Kind NodeKind
	Leaf Leaf
	Ext  Extension
	Br   Branch
}

// NewLeaf wraps a Leaf as a Node.
func NewLeaf(k key.Key, v value.Value) Node {
	return Node{Kind: KindLeaf, Leaf: Leaf{Key: k, Value: v}}
}

// NewExtension wraps an Extension as a Node.
func NewExtension(affix []byte, ptr Pointer) Node {
	return Node{Kind: KindExtension, Ext: Extension{Affix: append([]byte(nil), affix...), Pointer: ptr}}
}

// NewBranch wraps a Branch as a Node.
func NewBranch(block PointerBlock) Node {
	return Node{Kind: KindBranch, Br: Branch{Block: block}}
}

// --- serialization ------------------------------------------------------

func writePointer(w *serialization.Writer, p Pointer) {
	w.Byte(byte(p.Kind))
	w.Fixed(p.Hash[:])
}

func readPointer(r *serialization.Reader) (Pointer, error) {
	kb, err := r.Byte()
	if err != nil {
		return Pointer{}, err
	}
	h, err := r.Fixed(32)
	if err != nil {
		return Pointer{}, err
	}
	var hash [32]byte
	copy(hash[:], h)
	return Pointer{Kind: PointerKind(kb), Hash: hash}, nil
}

// writePointerBlock appends the canonical bytes of block: 256 entries, each
// a presence byte followed by the pointer fields when present. This is also
// used, on its own (not wrapped in a Node tag), to compute the empty-trie
// hash per spec.md §3.
func writePointerBlock(w *serialization.Writer, block PointerBlock) {
	for i := 0; i < 256; i++ {
		p := block[i]
		if p == nil {
			w.Byte(0)
			continue
		}
		w.Byte(1)
		writePointer(w, *p)
	}
}

func readPointerBlock(r *serialization.Reader) (PointerBlock, error) {
	var block PointerBlock
	for i := 0; i < 256; i++ {
		present, err := r.Byte()
		if err != nil {
			return block, err
		}
		if present == 0 {
			continue
		}
		p, err := readPointer(r)
		if err != nil {
			return block, err
		}
		block[i] = &p
	}
	return block, nil
}

// ToBytes renders n's canonical encoding, used both for content hashing
// and for on-disk node storage.
func (n Node) ToBytes() []byte {
	w := serialization.NewWriter()
	n.WriteTo(w)
	return w.Bytes()
}

// WriteTo appends n's canonical encoding to w.
func (n Node) WriteTo(w *serialization.Writer) {
	w.Byte(byte(n.Kind))
	switch n.Kind {
	case KindLeaf:
		key.WriteTo(w, n.Leaf.Key)
		value.WriteTo(w, n.Leaf.Value)
	case KindExtension:
		w.BytesField(n.Ext.Affix)
		writePointer(w, n.Ext.Pointer)
	case KindBranch:
		writePointerBlock(w, n.Br.Block)
	}
}

// NodeFromBytes decodes a Node previously produced by ToBytes.
func NodeFromBytes(buf []byte) (Node, error) {
	r := serialization.NewReader(buf)
	return ReadNode(r)
}

// ReadNode decodes a Node from r.
func ReadNode(r *serialization.Reader) (Node, error) {
	tag, err := r.Byte()
	if err != nil {
		return Node{}, err
	}
	switch NodeKind(tag) {
	case KindLeaf:
		k, err := key.ReadFrom(r)
		if err != nil {
			return Node{}, err
		}
		v, err := value.ReadFrom(r)
		if err != nil {
			return Node{}, err
		}
		return NewLeaf(k, v), nil
	case KindExtension:
		affix, err := r.Bytes()
		if err != nil {
			return Node{}, err
		}
		ptr, err := readPointer(r)
		if err != nil {
			return Node{}, err
		}
		return NewExtension(affix, ptr), nil
	case KindBranch:
		block, err := readPointerBlock(r)
		if err != nil {
			return Node{}, err
		}
		return NewBranch(block), nil
	default:
		return Node{}, serialization.ErrFormatting
	}
}
