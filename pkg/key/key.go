// Package key implements the tagged state-cell addresses of spec.md §3:
// Account, Hash, URef and contract-private Local keys, plus the
// AccessRights capability mask a URef carries.
package key

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"execution-engine/pkg/serialization"
)

// Kind tags the closed Key union. There is no open inheritance here: every
// switch over Kind in this repository is expected to be exhaustive.
type Kind byte

const (
	KindAccount Kind = iota
	KindHash
	KindURef
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindAccount:
		return "Account"
	case KindHash:
		return "Hash"
	case KindURef:
		return "URef"
	case KindLocal:
		return "Local"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// Key is a tagged address of a state cell (spec.md §3). It is a closed
// struct rather than an interface: every field not relevant to Kind is left
// zero, and every operation on Key switches exhaustively over Kind.
type Key struct {
	Kind Kind

	// Addr is the 32-byte address for Account, Hash and URef keys, and the
	// derived key_hash for Local keys.
	Addr [32]byte

	// Rights is meaningful only for Kind == KindURef. HasRights
	// distinguishes an absent capability set (a bare address reference)
	// from Rights == None.
	Rights    AccessRights
	HasRights bool

	// Seed is meaningful only for Kind == KindLocal: the contract's
	// private keyspace root.
	Seed [32]byte
}

// Account constructs an Account key from a 32-byte principal address.
func Account(addr [32]byte) Key { return Key{Kind: KindAccount, Addr: addr} }

// Hash constructs a content-addressed contract key.
func Hash(addr [32]byte) Key { return Key{Kind: KindHash, Addr: addr} }

// URef constructs an unforgeable reference with the given access rights.
func URef(addr [32]byte, rights AccessRights) Key {
	return Key{Kind: KindURef, Addr: addr, Rights: rights, HasRights: true}
}

// URefNoRights constructs a URef with no carried access rights (a bare
// address reference, e.g. as stored inside a serialized composite value
// before the reader's capability set is consulted).
func URefNoRights(addr [32]byte) Key {
	return Key{Kind: KindURef, Addr: addr}
}

// Local constructs a contract-private key: key_hash = blake2b(seed || userBytes).
func Local(seed [32]byte, userBytes []byte) Key {
	h, _ := blake2b.New256(nil)
	h.Write(seed[:])
	h.Write(userBytes)
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return Key{Kind: KindLocal, Seed: seed, Addr: sum}
}

// Normalize drops access rights from a URef; it is the identity on every
// other variant. Equality and ordering of keys are defined on normalized
// keys (spec.md §3).
func (k Key) Normalize() Key {
	if k.Kind == KindURef {
		return Key{Kind: KindURef, Addr: k.Addr}
	}
	return k
}

// Equal reports whether two keys are the same state-cell address after
// normalization (rights-insensitive).
func (k Key) Equal(other Key) bool {
	a, b := k.Normalize(), other.Normalize()
	if a.Kind != b.Kind || a.Addr != b.Addr {
		return false
	}
	if a.Kind == KindLocal {
		return a.Seed == b.Seed
	}
	return true
}

// Less defines a total order over normalized keys, used wherever the spec
// requires deterministic, sorted iteration (spec.md §4.3, §4.4, §5).
func (k Key) Less(other Key) bool {
	a, b := k.Normalize(), other.Normalize()
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.Kind == KindLocal && a.Seed != b.Seed {
		return bytes.Compare(a.Seed[:], b.Seed[:]) < 0
	}
	return bytes.Compare(a.Addr[:], b.Addr[:]) < 0
}

// --- serialization -----------------------------------------------------
//
// Open Question (a) (spec.md §9): this implementation picks the
// option-tagged URef wire form (tag byte, 32 address bytes, a rights-present
// flag byte, and a rights byte only when present) over the fixed 37-byte
// packed alternative. Both encodings round-trip the same Key values; this
// one avoids wasting a byte on Account/Hash/Local keys that never carry
// rights.

const (
	flagNoRights   byte = 0
	flagWithRights byte = 1
)

// WriteTo appends the canonical encoding of k to w: 1 tag byte, then
// variant-specific fields. Used directly by composite encoders (pkg/value,
// pkg/transform) so a Key need not be re-sliced out of a larger buffer.
func WriteTo(w *serialization.Writer, k Key) {
	w.Byte(byte(k.Kind))
	switch k.Kind {
	case KindAccount, KindHash:
		w.Fixed(k.Addr[:])
	case KindURef:
		w.Fixed(k.Addr[:])
		if k.HasRights {
			w.Byte(flagWithRights).Byte(byte(k.Rights))
		} else {
			w.Byte(flagNoRights)
		}
	case KindLocal:
		w.Fixed(k.Seed[:])
		w.Fixed(k.Addr[:])
	}
}

// ReadFrom decodes a Key from r.
func ReadFrom(r *serialization.Reader) (Key, error) {
	tag, err := r.Byte()
	if err != nil {
		return Key{}, err
	}
	switch Kind(tag) {
	case KindAccount, KindHash:
		addr, err := r.Fixed(32)
		if err != nil {
			return Key{}, err
		}
		var a [32]byte
		copy(a[:], addr)
		return Key{Kind: Kind(tag), Addr: a}, nil
	case KindURef:
		addr, err := r.Fixed(32)
		if err != nil {
			return Key{}, err
		}
		flag, err := r.Byte()
		if err != nil {
			return Key{}, err
		}
		var a [32]byte
		copy(a[:], addr)
		k := Key{Kind: KindURef, Addr: a}
		switch flag {
		case flagNoRights:
		case flagWithRights:
			rb, err := r.Byte()
			if err != nil {
				return Key{}, err
			}
			k.Rights = AccessRights(rb)
			k.HasRights = true
		default:
			return Key{}, serialization.ErrFormatting
		}
		return k, nil
	case KindLocal:
		seed, err := r.Fixed(32)
		if err != nil {
			return Key{}, err
		}
		addr, err := r.Fixed(32)
		if err != nil {
			return Key{}, err
		}
		var s, a [32]byte
		copy(s[:], seed)
		copy(a[:], addr)
		return Key{Kind: KindLocal, Seed: s, Addr: a}, nil
	default:
		return Key{}, serialization.ErrFormatting
	}
}

// ToBytes renders the canonical encoding of k on its own.
func (k Key) ToBytes() []byte {
	w := serialization.NewWriter()
	WriteTo(w, k)
	return w.Bytes()
}

// FromBytes decodes a Key from the front of buf, returning the number of
// bytes consumed.
func FromBytes(buf []byte) (Key, int, error) {
	r := serialization.NewReader(buf)
	k, err := ReadFrom(r)
	if err != nil {
		return Key{}, 0, err
	}
	return k, r.Pos(), nil
}

func (k Key) String() string {
	switch k.Kind {
	case KindURef:
		return fmt.Sprintf("URef(%x, %s)", k.Addr, k.Rights)
	case KindLocal:
		return fmt.Sprintf("Local(seed=%x, hash=%x)", k.Seed, k.Addr)
	default:
		return fmt.Sprintf("%s(%x)", k.Kind, k.Addr)
	}
}
