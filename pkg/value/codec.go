package value

import (
	"math/big"
	"sort"

	"execution-engine/pkg/key"
	"execution-engine/pkg/serialization"
)

// ToBytes renders the canonical encoding: 1 tag byte, then variant-specific
// fields, per spec.md §4.1's serialization contract.
func (v Value) ToBytes() []byte {
	w := serialization.NewWriter()
	WriteTo(w, v)
	return w.Bytes()
}

// WriteTo appends v's canonical encoding to w.
func WriteTo(w *serialization.Writer, v Value) {
	w.Byte(byte(v.Kind))
	switch v.Kind {
	case KindInt32:
		w.I32(v.I32)
	case KindUInt512:
		writeUInt512(w, v.U512)
	case KindString:
		w.String(v.Str)
	case KindByteArray:
		w.BytesField(v.Bytes)
	case KindListInt32:
		serialization.WriteU32Collection(w, v.ListI32, func(w *serialization.Writer, x int32) { w.I32(x) })
	case KindListString:
		serialization.WriteU32Collection(w, v.ListStr, func(w *serialization.Writer, s string) { w.String(s) })
	case KindNamedKey:
		w.String(v.NamedKey)
		key.WriteTo(w, v.NamedValue)
	case KindAccount:
		writeAccount(w, v.Acc)
	case KindContract:
		writeContract(w, v.Contract)
	case KindKey:
		key.WriteTo(w, v.KeyVal)
	}
}

// FromBytes decodes a Value from the front of buf, returning the number of
// bytes consumed.
func FromBytes(buf []byte) (Value, int, error) {
	r := serialization.NewReader(buf)
	v, err := ReadFrom(r)
	if err != nil {
		return Value{}, 0, err
	}
	return v, r.Pos(), nil
}

// ReadFrom decodes a Value from r.
func ReadFrom(r *serialization.Reader) (Value, error) {
	tag, err := r.Byte()
	if err != nil {
		return Value{}, err
	}
	switch Kind(tag) {
	case KindInt32:
		i, err := r.I32()
		if err != nil {
			return Value{}, err
		}
		return Int32(i), nil
	case KindUInt512:
		u, err := readUInt512(r)
		if err != nil {
			return Value{}, err
		}
		return UInt512(u), nil
	case KindString:
		s, err := r.String()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case KindByteArray:
		b, err := r.Bytes()
		if err != nil {
			return Value{}, err
		}
		return ByteArray(b), nil
	case KindListInt32:
		items, err := serialization.ReadU32Collection(r, func(r *serialization.Reader) (int32, error) { return r.I32() })
		if err != nil {
			return Value{}, err
		}
		return ListInt32(items), nil
	case KindListString:
		items, err := serialization.ReadU32Collection(r, func(r *serialization.Reader) (string, error) { return r.String() })
		if err != nil {
			return Value{}, err
		}
		return ListString(items), nil
	case KindNamedKey:
		name, err := r.String()
		if err != nil {
			return Value{}, err
		}
		k, err := key.ReadFrom(r)
		if err != nil {
			return Value{}, err
		}
		return NamedKey(name, k), nil
	case KindAccount:
		acc, err := readAccount(r)
		if err != nil {
			return Value{}, err
		}
		return NewAccount(acc), nil
	case KindContract:
		c, err := readContract(r)
		if err != nil {
			return Value{}, err
		}
		return NewContract(c), nil
	case KindKey:
		k, err := key.ReadFrom(r)
		if err != nil {
			return Value{}, err
		}
		return NewKey(k), nil
	default:
		return Value{}, serialization.ErrFormatting
	}
}

// writeUInt512 encodes u as a leading length byte followed by its
// little-endian, leading-zero-stripped magnitude (spec.md §3).
func writeUInt512(w *serialization.Writer, u *big.Int) {
	be := u.Bytes() // big-endian, no leading zero bytes (big.Int.Bytes() already strips them)
	le := make([]byte, len(be))
	for i, b := range be {
		le[len(be)-1-i] = b
	}
	w.Byte(byte(len(le)))
	w.Fixed(le)
}

func readUInt512(r *serialization.Reader) (*big.Int, error) {
	n, err := r.Byte()
	if err != nil {
		return nil, err
	}
	le, err := r.Fixed(int(n))
	if err != nil {
		return nil, err
	}
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	return new(big.Int).SetBytes(be), nil
}

func writeNamedKeys(w *serialization.Writer, m map[string]key.Key) {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	w.U32(uint32(len(names)))
	for _, n := range names {
		w.String(n)
		key.WriteTo(w, m[n])
	}
}

func readNamedKeys(r *serialization.Reader) (map[string]key.Key, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make(map[string]key.Key, n)
	for i := uint32(0); i < n; i++ {
		name, err := r.String()
		if err != nil {
			return nil, err
		}
		k, err := key.ReadFrom(r)
		if err != nil {
			return nil, err
		}
		out[name] = k
	}
	return out, nil
}

func writeAccount(w *serialization.Writer, a *Account) {
	w.BytesField(a.PublicKey)
	w.U64(a.Nonce)
	key.WriteTo(w, a.PurseID)
	writeNamedKeys(w, a.NamedKeys)

	addrs := make([][32]byte, 0, len(a.AssociatedKeys))
	for addr := range a.AssociatedKeys {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytesLess(addrs[i], addrs[j]) })
	w.U32(uint32(len(addrs)))
	for _, addr := range addrs {
		w.Fixed(addr[:])
		w.Byte(a.AssociatedKeys[addr])
	}
	w.Byte(a.ActionThresholds.KeyManagement)
	w.Byte(a.ActionThresholds.Deployment)
}

func readAccount(r *serialization.Reader) (*Account, error) {
	pk, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	nonce, err := r.U64()
	if err != nil {
		return nil, err
	}
	purse, err := key.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	named, err := readNamedKeys(r)
	if err != nil {
		return nil, err
	}
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	assoc := make(map[[32]byte]uint8, n)
	for i := uint32(0); i < n; i++ {
		addrB, err := r.Fixed(32)
		if err != nil {
			return nil, err
		}
		weight, err := r.Byte()
		if err != nil {
			return nil, err
		}
		var addr [32]byte
		copy(addr[:], addrB)
		assoc[addr] = weight
	}
	km, err := r.Byte()
	if err != nil {
		return nil, err
	}
	dep, err := r.Byte()
	if err != nil {
		return nil, err
	}
	return &Account{
		PublicKey:        pk,
		Nonce:            nonce,
		PurseID:          purse,
		NamedKeys:        named,
		AssociatedKeys:   assoc,
		ActionThresholds: ActionThresholds{KeyManagement: km, Deployment: dep},
	}, nil
}

func writeContract(w *serialization.Writer, c *Contract) {
	w.BytesField(c.Bytes)
	writeNamedKeys(w, c.NamedKeys)
	w.U32(c.ProtocolVersion)
}

func readContract(r *serialization.Reader) (*Contract, error) {
	code, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	named, err := readNamedKeys(r)
	if err != nil {
		return nil, err
	}
	pv, err := r.U32()
	if err != nil {
		return nil, err
	}
	return &Contract{Bytes: code, NamedKeys: named, ProtocolVersion: pv}, nil
}

// bytesLess orders two addresses lexicographically; named-key maps and
// associated-key sets are serialized in this order so that serialization is
// deterministic regardless of map iteration order (spec.md §5 requires
// sorted iteration wherever order is externally visible).
func bytesLess(a, b [32]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
