// Package value implements the Value sum type of spec.md §3: the typed
// contents of a state cell, plus the Account and Contract composite shapes.
package value

import (
	"fmt"
	"math/big"

	"execution-engine/pkg/key"
	"execution-engine/pkg/serialization"
)

// Kind tags the closed Value union.
type Kind byte

const (
	KindInt32 Kind = iota
	KindUInt512
	KindString
	KindByteArray
	KindListInt32
	KindListString
	KindNamedKey
	KindAccount
	KindContract
	KindKey
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "Int32"
	case KindUInt512:
		return "UInt512"
	case KindString:
		return "String"
	case KindByteArray:
		return "ByteArray"
	case KindListInt32:
		return "ListInt32"
	case KindListString:
		return "ListString"
	case KindNamedKey:
		return "NamedKey"
	case KindAccount:
		return "Account"
	case KindContract:
		return "Contract"
	case KindKey:
		return "Key"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// ActionThresholds gates how many associated-key weight must sign a deploy
// to perform key-management operations vs. ordinary deployment (spec.md's
// §DOMAIN STACK supplement, grounded on the CasperLabs authorized-keys
// contract).
type ActionThresholds struct {
	KeyManagement uint8
	Deployment    uint8
}

// Account is the composite state of a principal: its public key, deploy
// nonce, main purse, named-key map, multi-signature associated keys and
// their action thresholds.
type Account struct {
	PublicKey        []byte
	Nonce             uint64
	PurseID           key.Key
	NamedKeys         map[string]key.Key
	AssociatedKeys    map[[32]byte]uint8
	ActionThresholds  ActionThresholds
}

// Clone returns a deep copy, used when TrackingCopy stages a mutated
// Account value without aliasing the cached original.
func (a *Account) Clone() *Account {
	out := &Account{
		PublicKey:        append([]byte(nil), a.PublicKey...),
		Nonce:            a.Nonce,
		PurseID:          a.PurseID,
		ActionThresholds: a.ActionThresholds,
	}
	out.NamedKeys = make(map[string]key.Key, len(a.NamedKeys))
	for k, v := range a.NamedKeys {
		out.NamedKeys[k] = v
	}
	out.AssociatedKeys = make(map[[32]byte]uint8, len(a.AssociatedKeys))
	for k, v := range a.AssociatedKeys {
		out.AssociatedKeys[k] = v
	}
	return out
}

// Contract is the composite state of a deployed Wasm module: its bytecode,
// named-key map and the protocol version it was compiled against.
type Contract struct {
	Bytes           []byte
	NamedKeys       map[string]key.Key
	ProtocolVersion uint32
}

// Clone returns a deep copy.
func (c *Contract) Clone() *Contract {
	out := &Contract{
		Bytes:           append([]byte(nil), c.Bytes...),
		ProtocolVersion: c.ProtocolVersion,
	}
	out.NamedKeys = make(map[string]key.Key, len(c.NamedKeys))
	for k, v := range c.NamedKeys {
		out.NamedKeys[k] = v
	}
	return out
}

// Value is the closed tagged union of spec.md §3. Exactly one field group
// is meaningful for a given Kind; every exhaustive switch over Kind in this
// repository enumerates all ten variants.
type Value struct {
	Kind Kind

	I32        int32
	U512       *big.Int
	Str        string
	Bytes      []byte
	ListI32    []int32
	ListStr    []string
	NamedKey   string
	NamedValue key.Key
	Acc        *Account
	Contract   *Contract
	KeyVal     key.Key
}

func Int32(v int32) Value { return Value{Kind: KindInt32, I32: v} }

// UInt512 wraps v, which must be non-negative and fit in 512 bits; callers
// constructing values from trusted arithmetic (pkg/transform's Apply) are expected
// to uphold this themselves.
func UInt512(v *big.Int) Value { return Value{Kind: KindUInt512, U512: new(big.Int).Set(v)} }

func String(v string) Value { return Value{Kind: KindString, Str: v} }

func ByteArray(v []byte) Value { return Value{Kind: KindByteArray, Bytes: append([]byte(nil), v...)} }

func ListInt32(v []int32) Value { return Value{Kind: KindListInt32, ListI32: append([]int32(nil), v...)} }

func ListString(v []string) Value {
	return Value{Kind: KindListString, ListStr: append([]string(nil), v...)}
}

func NamedKey(name string, k key.Key) Value {
	return Value{Kind: KindNamedKey, NamedKey: name, NamedValue: k}
}

func NewAccount(a *Account) Value { return Value{Kind: KindAccount, Acc: a} }

func NewContract(c *Contract) Value { return Value{Kind: KindContract, Contract: c} }

func NewKey(k key.Key) Value { return Value{Kind: KindKey, KeyVal: k} }

// maxUInt512 is 2^512 - 1, the saturation ceiling for AddUInt512.
var maxUInt512 = func() *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), 512)
	return m.Sub(m, big.NewInt(1))
}()

// MaxUInt512 returns 2^512 - 1.
func MaxUInt512() *big.Int { return new(big.Int).Set(maxUInt512) }
