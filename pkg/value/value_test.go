package value

import (
	"math/big"
	"testing"

	"execution-engine/pkg/key"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	buf := v.ToBytes()
	got, n, err := FromBytes(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d of %d bytes", n, len(buf))
	}
	return got
}

func TestScalarRoundTrip(t *testing.T) {
	var addr [32]byte
	addr[3] = 7

	cases := []Value{
		Int32(-12345),
		UInt512(big.NewInt(0)),
		UInt512(MaxUInt512()),
		UInt512(big.NewInt(424242)),
		String("hello, contract"),
		ByteArray([]byte{1, 2, 3, 4}),
		ListInt32([]int32{1, -2, 3}),
		ListString([]string{"a", "bb", "ccc"}),
		NamedKey("counter", key.URef(addr, key.ReadAddWrite)),
		NewKey(key.Account(addr)),
	}
	for _, c := range cases {
		got := roundTrip(t, c)
		if !valuesEqual(t, c, got) {
			t.Errorf("round trip mismatch for %s: got %+v, want %+v", c.Kind, got, c)
		}
	}
}

func TestAccountRoundTrip(t *testing.T) {
	var purseAddr, assocAddr [32]byte
	purseAddr[0] = 1
	assocAddr[0] = 2
	acc := &Account{
		PublicKey: []byte{0xAA, 0xBB},
		Nonce:     7,
		PurseID:   key.URef(purseAddr, key.ReadAddWrite),
		NamedKeys: map[string]key.Key{"main_purse": key.URef(purseAddr, key.ReadAddWrite)},
		AssociatedKeys: map[[32]byte]uint8{
			assocAddr: 1,
		},
		ActionThresholds: ActionThresholds{KeyManagement: 2, Deployment: 1},
	}
	got := roundTrip(t, NewAccount(acc))
	if got.Kind != KindAccount {
		t.Fatalf("kind = %v", got.Kind)
	}
	if got.Acc.Nonce != 7 || got.Acc.ActionThresholds.KeyManagement != 2 {
		t.Fatalf("account mismatch: %+v", got.Acc)
	}
	if !got.Acc.PurseID.Equal(acc.PurseID) {
		t.Fatalf("purse mismatch")
	}
}

func TestContractRoundTrip(t *testing.T) {
	var addr [32]byte
	addr[5] = 9
	c := &Contract{
		Bytes:           []byte{0x00, 0x61, 0x73, 0x6d},
		NamedKeys:       map[string]key.Key{"counter_ext": key.Hash(addr)},
		ProtocolVersion: 1,
	}
	got := roundTrip(t, NewContract(c))
	if got.Contract.ProtocolVersion != 1 || len(got.Contract.Bytes) != 4 {
		t.Fatalf("contract mismatch: %+v", got.Contract)
	}
}

func TestUInt512SaturationCeiling(t *testing.T) {
	max := MaxUInt512()
	got := roundTrip(t, UInt512(max))
	if got.U512.Cmp(max) != 0 {
		t.Fatalf("max round trip mismatch: got %s want %s", got.U512, max)
	}
}

func valuesEqual(t *testing.T, a, b Value) bool {
	t.Helper()
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindInt32:
		return a.I32 == b.I32
	case KindUInt512:
		return a.U512.Cmp(b.U512) == 0
	case KindString:
		return a.Str == b.Str
	case KindByteArray:
		return string(a.Bytes) == string(b.Bytes)
	case KindListInt32:
		if len(a.ListI32) != len(b.ListI32) {
			return false
		}
		for i := range a.ListI32 {
			if a.ListI32[i] != b.ListI32[i] {
				return false
			}
		}
		return true
	case KindListString:
		if len(a.ListStr) != len(b.ListStr) {
			return false
		}
		for i := range a.ListStr {
			if a.ListStr[i] != b.ListStr[i] {
				return false
			}
		}
		return true
	case KindNamedKey:
		return a.NamedKey == b.NamedKey && a.NamedValue.Equal(b.NamedValue)
	case KindKey:
		return a.KeyVal.Equal(b.KeyVal)
	default:
		return true
	}
}
