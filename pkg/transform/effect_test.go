package transform

import (
	"testing"

	"execution-engine/pkg/key"
	"execution-engine/pkg/value"
)

func TestExecutionEffectRecordComposesAndJoins(t *testing.T) {
	var addr [32]byte
	addr[2] = 9
	k := key.URef(addr, key.ReadAddWrite)

	e := NewExecutionEffect()
	e.Record(k, OpRead, Identity())
	e.Record(k, OpWrite, Write(value.Int32(1)))
	e.Record(k, OpAdd, AddInt32(4))

	norm := k.Normalize()
	got, ok := e.Transforms[norm]
	if !ok {
		t.Fatalf("no transform recorded")
	}
	if got.Kind != KindWrite || got.WriteVal.I32 != 5 {
		t.Fatalf("transform = %+v, want Write(5)", got)
	}
	if e.Ops[norm] != OpWrite {
		t.Fatalf("op = %v, want Write (strongest observed)", e.Ops[norm])
	}
}

func TestExecutionEffectKeysSorted(t *testing.T) {
	var a1, a2, a3 [32]byte
	a1[0], a2[0], a3[0] = 3, 1, 2

	e := NewExecutionEffect()
	for _, a := range [][32]byte{a1, a2, a3} {
		e.Record(key.Account(a), OpWrite, Write(value.Int32(0)))
	}
	keys := e.Keys()
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if !keys[i-1].Less(keys[i]) {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
}
