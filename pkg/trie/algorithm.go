package trie

import (
	"execution-engine/pkg/key"
	"execution-engine/pkg/value"
)

// Read starting from root, traversing by consuming one byte of k's
// normalized serialization per Branch level (navigation is rights-
// insensitive, matching Key.Equal/Key.Less, spec.md §3), matching
// Extension affixes, and terminating successfully only at a Leaf whose
// stored key equals the full query key (spec.md §4.4, "Algorithm —
// read"). ok is false both when a Branch slot is empty and when a Leaf's
// key mismatches: both mean "not present", not an error.
func Read(s NodeStore, root [32]byte, k key.Key) (v value.Value, ok bool, err error) {
	if root == EmptyRoot() {
		return value.Value{}, false, nil
	}

	keyBytes := k.Normalize().ToBytes()
	ptr := NodePointer(root)
	pos := 0

	for {
		n, err := getNode(s, ptr.Hash)
		if err != nil {
			return value.Value{}, false, err
		}
		switch n.Kind {
		case KindLeaf:
			if n.Leaf.Key.Equal(k) {
				return n.Leaf.Value, true, nil
			}
			return value.Value{}, false, nil

		case KindExtension:
			affix := n.Ext.Affix
			if pos+len(affix) > len(keyBytes) {
				return value.Value{}, false, nil
			}
			for i, b := range affix {
				if keyBytes[pos+i] != b {
					return value.Value{}, false, nil
				}
			}
			pos += len(affix)
			ptr = n.Ext.Pointer

		case KindBranch:
			if pos >= len(keyBytes) {
				return value.Value{}, false, nil
			}
			idx := keyBytes[pos]
			child := n.Br.Block[idx]
			if child == nil {
				return value.Value{}, false, nil
			}
			pos++
			ptr = *child

		default:
			return value.Value{}, false, ErrNodeNotFound
		}
	}
}

// Write performs a standard radix-256 Patricia insert-or-update of (k, v)
// under root, returning the new root (spec.md §4.4, "Algorithm — write").
// The operation is purely functional: every new or modified node is
// written under its content hash, and nodes unrelated to k's path are left
// untouched and still reachable from the old root.
func Write(s NodeStore, root [32]byte, k key.Key, v value.Value) ([32]byte, error) {
	keyBytes := k.Normalize().ToBytes()

	var startPtr *Pointer
	if root != EmptyRoot() {
		p := NodePointer(root)
		startPtr = &p
	}

	newPtr, err := writeAt(s, startPtr, keyBytes, 0, k, v)
	if err != nil {
		return [32]byte{}, err
	}
	return newPtr.Hash, nil
}

// writeAt inserts/updates (k, v) into the subtree addressed by ptr,
// starting comparison at keyBytes[pos:], returning a pointer to the new
// (possibly newly created) subtree root. ptr == nil denotes an empty
// subtree (used when branching creates a fresh slot).
func writeAt(s NodeStore, ptr *Pointer, keyBytes []byte, pos int, k key.Key, v value.Value) (Pointer, error) {
	if ptr == nil {
		p, _, err := putNode(s, NewLeaf(k, v))
		return p, err
	}

	n, err := getNode(s, ptr.Hash)
	if err != nil {
		return Pointer{}, err
	}

	switch n.Kind {
	case KindLeaf:
		if n.Leaf.Key.Equal(k) {
			p, _, err := putNode(s, NewLeaf(k, v))
			return p, err
		}
		otherBytes := n.Leaf.Key.Normalize().ToBytes()
		return splitLeaf(s, *ptr, otherBytes, keyBytes, pos, k, v)

	case KindExtension:
		affix := n.Ext.Affix
		matchLen := commonPrefixLen(keyBytes[pos:], affix)
		if matchLen == len(affix) {
			childPtr := n.Ext.Pointer
			newChild, err := writeAt(s, &childPtr, keyBytes, pos+len(affix), k, v)
			if err != nil {
				return Pointer{}, err
			}
			p, _, err := putNode(s, NewExtension(affix, newChild))
			return p, err
		}
		return splitExtension(s, n.Ext, matchLen, keyBytes, pos, k, v)

	case KindBranch:
		if pos >= len(keyBytes) {
			return Pointer{}, ErrNodeNotFound
		}
		idx := keyBytes[pos]
		child := n.Br.Block[idx]
		newChild, err := writeAt(s, child, keyBytes, pos+1, k, v)
		if err != nil {
			return Pointer{}, err
		}
		block := n.Br.Block
		block[idx] = &newChild
		p, _, err := putNode(s, NewBranch(block))
		return p, err

	default:
		return Pointer{}, ErrNodeNotFound
	}
}

// splitLeaf replaces a mismatching Leaf with a branch (optionally wrapped
// in a common-prefix Extension) holding the existing leaf and the new leaf
// as two children (spec.md §4.4: "replace a Leaf with a node when two
// leaves' keys share a prefix").
func splitLeaf(s NodeStore, existing Pointer, otherBytes, keyBytes []byte, pos int, k key.Key, v value.Value) (Pointer, error) {
	common := commonPrefixLen(keyBytes[pos:], otherBytes[pos:])

	newLeafPtr, _, err := putNode(s, NewLeaf(k, v))
	if err != nil {
		return Pointer{}, err
	}

	block := EmptyPointerBlock()
	block[keyBytes[pos+common]] = &newLeafPtr
	block[otherBytes[pos+common]] = &existing

	branchPtr, _, err := putNode(s, NewBranch(block))
	if err != nil {
		return Pointer{}, err
	}
	if common == 0 {
		return branchPtr, nil
	}
	extPtr, _, err := putNode(s, NewExtension(keyBytes[pos:pos+common], branchPtr))
	return extPtr, err
}

// splitExtension splits an Extension whose affix diverges from the new
// key's bytes at matchLen, emitting (optionally) a shortened common-prefix
// extension over a new branch holding the extension's old continuation and
// the new leaf (spec.md §4.4: "split an Extension when its affix diverges
// from the new key").
func splitExtension(s NodeStore, ext Extension, matchLen int, keyBytes []byte, pos int, k key.Key, v value.Value) (Pointer, error) {
	affix := ext.Affix

	var existingChild Pointer
	remainder := affix[matchLen+1:]
	if len(remainder) > 0 {
		p, _, err := putNode(s, NewExtension(remainder, ext.Pointer))
		if err != nil {
			return Pointer{}, err
		}
		existingChild = p
	} else {
		existingChild = ext.Pointer
	}

	newLeafPtr, _, err := putNode(s, NewLeaf(k, v))
	if err != nil {
		return Pointer{}, err
	}

	block := EmptyPointerBlock()
	block[affix[matchLen]] = &existingChild
	block[keyBytes[pos+matchLen]] = &newLeafPtr

	branchPtr, _, err := putNode(s, NewBranch(block))
	if err != nil {
		return Pointer{}, err
	}
	if matchLen == 0 {
		return branchPtr, nil
	}
	extPtr, _, err := putNode(s, NewExtension(affix[:matchLen], branchPtr))
	return extPtr, err
}

// commonPrefixLen returns the length of the shared prefix of a and b.
func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
