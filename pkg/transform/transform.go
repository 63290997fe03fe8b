// Package transform implements the per-key operation algebra recorded in an
// ExecutionEffect (spec.md §3, §4.1): Identity, Write, AddInt32, AddUInt512,
// AddKeys, and the sticky Failure(TypeMismatch) state, with a composition
// operator and an apply function over pkg/value.Value.
package transform

import (
	"errors"
	"math/big"

	"execution-engine/pkg/key"
	"execution-engine/pkg/value"
)

// ErrTypeMismatch is returned by Apply, and recorded as a sticky Failure
// transform by Compose, whenever an operation is applied to a value of the
// wrong shape (spec.md §3, §4.1).
var ErrTypeMismatch = errors.New("type mismatch")

// Kind tags the closed Transform union.
type Kind byte

const (
	KindIdentity Kind = iota
	KindWrite
	KindAddInt32
	KindAddUInt512
	KindAddKeys
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindIdentity:
		return "Identity"
	case KindWrite:
		return "Write"
	case KindAddInt32:
		return "AddInt32"
	case KindAddUInt512:
		return "AddUInt512"
	case KindAddKeys:
		return "AddKeys"
	case KindFailure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// Transform is one entry of the algebra recorded per key.
type Transform struct {
	Kind Kind

	WriteVal value.Value
	AddI32   int32
	AddU512  *big.Int
	AddKeys  map[string]key.Key

	// FailureMsg carries the human-readable reason a Failure transform was
	// recorded, for diagnostics; the sticky error itself is always
	// ErrTypeMismatch.
	FailureMsg string
}

// Identity is the two-sided identity element of Compose and a no-op under
// Apply.
func Identity() Transform { return Transform{Kind: KindIdentity} }

// Write overwrites the cell with v, independent of any prior value.
func Write(v value.Value) Transform { return Transform{Kind: KindWrite, WriteVal: v} }

// AddInt32 saturating-adds i to an Int32 cell.
func AddInt32(i int32) Transform { return Transform{Kind: KindAddInt32, AddI32: i} }

// AddUInt512 saturating-adds u to a UInt512 cell, or to an Account's nonce.
func AddUInt512(u *big.Int) Transform {
	return Transform{Kind: KindAddUInt512, AddU512: new(big.Int).Set(u)}
}

// AddKeysOp extends an Account's or Contract's named-key map with m.
func AddKeysOp(m map[string]key.Key) Transform {
	cp := make(map[string]key.Key, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Transform{Kind: KindAddKeys, AddKeys: cp}
}

// Failure records a sticky TypeMismatch for a key: once recorded, every
// further composition with it stays Failure, and committing it aborts the
// commit (spec.md §4.4).
func Failure(msg string) Transform { return Transform{Kind: KindFailure, FailureMsg: msg} }

// saturatingAddInt32 adds a and b, clamping to math.MaxInt32 (and
// math.MinInt32 on the negative side) instead of wrapping. Wraps are
// forbidden by spec.md §3.
func saturatingAddInt32(a, b int32) int32 {
	sum := int64(a) + int64(b)
	const max = int64(1<<31 - 1)
	const min = int64(-1 << 31)
	if sum > max {
		return int32(max)
	}
	if sum < min {
		return int32(min)
	}
	return int32(sum)
}

// saturatingAddUInt512 adds a and b, clamping to 2^512-1.
func saturatingAddUInt512(a, b *big.Int) *big.Int {
	sum := new(big.Int).Add(a, b)
	max := value.MaxUInt512()
	if sum.Cmp(max) > 0 {
		return max
	}
	return sum
}

// mergeAddKeys merges b into a, with b's entries shadowing a's on conflict
// (spec.md §4.1: "later entries shadow earlier ones").
func mergeAddKeys(a, b map[string]key.Key) map[string]key.Key {
	out := make(map[string]key.Key, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Compose returns the net effect of applying "older" first and then
// "newer" on top of it: for all values x where neither side fails,
// Apply(x, Compose(older, newer)) == Apply(Apply(x, older), newer)
// (spec.md §8, property 5). Compose is associative (property 3) and treats
// Identity as a two-sided identity (property 4). Both laws hold only while
// no AddInt32 sum clips at an int32 bound: deltas of mixed sign give a
// different result once an intermediate sum saturates (e.g. x = MaxInt32,
// AddInt32(1) then AddInt32(-1) gives MaxInt32-1 stepwise, MaxInt32 composed).
func Compose(older, newer Transform) Transform {
	if older.Kind == KindIdentity {
		return newer
	}
	if newer.Kind == KindIdentity {
		return older
	}
	if older.Kind == KindFailure {
		return older
	}
	if newer.Kind == KindFailure {
		return newer
	}

	// A later Write always wins outright: it is an absolute overwrite that
	// does not depend on whatever was staged before it.
	if newer.Kind == KindWrite {
		return newer
	}

	switch older.Kind {
	case KindWrite:
		// An Add* folded onto a pending Write resolves immediately against
		// the write's frozen value, since the combined transform no longer
		// depends on whatever the trie held before the write.
		result, err := Apply(&older.WriteVal, newer)
		if err != nil {
			return Failure(err.Error())
		}
		return Write(*result)

	case KindAddInt32:
		switch newer.Kind {
		case KindAddInt32:
			return AddInt32(saturatingAddInt32(older.AddI32, newer.AddI32))
		default:
			return Failure("AddInt32 composed with " + newer.Kind.String())
		}

	case KindAddUInt512:
		switch newer.Kind {
		case KindAddUInt512:
			// Deltas sum directly; saturation against the underlying value
			// happens once, at Apply time.
			return AddUInt512(new(big.Int).Add(older.AddU512, newer.AddU512))
		default:
			return Failure("AddUInt512 composed with " + newer.Kind.String())
		}

	case KindAddKeys:
		switch newer.Kind {
		case KindAddKeys:
			return AddKeysOp(mergeAddKeys(older.AddKeys, newer.AddKeys))
		default:
			return Failure("AddKeys composed with " + newer.Kind.String())
		}

	default:
		return Failure("unsupported composition")
	}
}

// Apply computes the effect of t on cur (nil meaning the key is absent).
// It returns ErrTypeMismatch whenever t's shape does not match cur's.
func Apply(cur *value.Value, t Transform) (*value.Value, error) {
	switch t.Kind {
	case KindIdentity:
		return cur, nil

	case KindWrite:
		v := t.WriteVal
		return &v, nil

	case KindAddInt32:
		if cur == nil || cur.Kind != value.KindInt32 {
			return nil, ErrTypeMismatch
		}
		out := value.Int32(saturatingAddInt32(cur.I32, t.AddI32))
		return &out, nil

	case KindAddUInt512:
		if cur == nil {
			return nil, ErrTypeMismatch
		}
		switch cur.Kind {
		case value.KindUInt512:
			out := value.UInt512(saturatingAddUInt512(cur.U512, t.AddU512))
			return &out, nil
		case value.KindAccount:
			acc := cur.Acc.Clone()
			nonce := new(big.Int).Add(new(big.Int).SetUint64(acc.Nonce), t.AddU512)
			maxU64 := new(big.Int).SetUint64(^uint64(0))
			if nonce.Cmp(maxU64) > 0 {
				acc.Nonce = ^uint64(0)
			} else {
				acc.Nonce = nonce.Uint64()
			}
			out := value.NewAccount(acc)
			return &out, nil
		default:
			return nil, ErrTypeMismatch
		}

	case KindAddKeys:
		if cur == nil {
			return nil, ErrTypeMismatch
		}
		switch cur.Kind {
		case value.KindAccount:
			acc := cur.Acc.Clone()
			for k, v := range t.AddKeys {
				acc.NamedKeys[k] = v
			}
			out := value.NewAccount(acc)
			return &out, nil
		case value.KindContract:
			c := cur.Contract.Clone()
			for k, v := range t.AddKeys {
				c.NamedKeys[k] = v
			}
			out := value.NewContract(c)
			return &out, nil
		default:
			return nil, ErrTypeMismatch
		}

	case KindFailure:
		return nil, ErrTypeMismatch

	default:
		return nil, ErrTypeMismatch
	}
}

// Op is the observable access class recorded against a key during a
// deploy (spec.md §3's ExecutionEffect).
type Op byte

const (
	OpNoOp Op = iota
	OpRead
	OpAdd
	OpWrite
)

func (o Op) String() string {
	switch o {
	case OpNoOp:
		return "NoOp"
	case OpRead:
		return "Read"
	case OpAdd:
		return "Add"
	case OpWrite:
		return "Write"
	default:
		return "Unknown"
	}
}

// JoinOp returns the stronger of the two classifications, where
// Write > Add > Read > NoOp. Used so that, e.g., a key that was read and
// later written is classified as Write, never downgraded back to Read.
func JoinOp(a, b Op) Op {
	if a > b {
		return a
	}
	return b
}
