package trackingcopy

import (
	"testing"

	"execution-engine/pkg/key"
	"execution-engine/pkg/transform"
	"execution-engine/pkg/value"
)

type fakeReader struct {
	data map[key.Key]value.Value
}

func newFakeReader() *fakeReader { return &fakeReader{data: make(map[key.Key]value.Value)} }

func (f *fakeReader) Read(k key.Key) (*value.Value, bool, error) {
	v, ok := f.data[k.Normalize()]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func addr(b byte) [32]byte {
	var a [32]byte
	a[0] = b
	return a
}

func TestReadAbsentReturnsNil(t *testing.T) {
	tc := New(newFakeReader(), nil)
	v, err := tc.Read(key.Account(addr(1)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil for absent key, got %+v", v)
	}
}

func TestReadIsIdempotent(t *testing.T) {
	r := newFakeReader()
	k := key.Account(addr(1))
	r.data[k] = value.Int32(5)
	tc := New(r, nil)

	v1, _ := tc.Read(k)
	r.data[k] = value.Int32(999) // mutate backing store after first read
	v2, _ := tc.Read(k)

	if v1.I32 != v2.I32 {
		t.Fatalf("read not idempotent within a deploy: %d != %d", v1.I32, v2.I32)
	}
}

func TestWriteThenReadObservesWrite(t *testing.T) {
	tc := New(newFakeReader(), nil)
	k := key.Account(addr(2))
	tc.Write(k, value.Int32(7))

	v, err := tc.Read(k)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v == nil || v.I32 != 7 {
		t.Fatalf("read-after-write mismatch: %+v", v)
	}
}

func TestAddAccumulatesOnAbsentIsTypeMismatch(t *testing.T) {
	tc := New(newFakeReader(), nil)
	k := key.Account(addr(3))
	if err := tc.Add(k, transform.AddInt32(1)); err == nil {
		t.Fatalf("expected error adding to an absent key")
	}
}

func TestAddAfterWriteAccumulates(t *testing.T) {
	tc := New(newFakeReader(), nil)
	k := key.Account(addr(4))
	tc.Write(k, value.Int32(10))
	if err := tc.Add(k, transform.AddInt32(5)); err != nil {
		t.Fatalf("add: %v", err)
	}
	v, _ := tc.Read(k)
	if v.I32 != 15 {
		t.Fatalf("got %d want 15", v.I32)
	}

	eff := tc.Effect()
	norm := k.Normalize()
	got, ok := eff.Transforms[norm]
	if !ok {
		t.Fatalf("no transform recorded")
	}
	if got.Kind != transform.KindWrite || got.WriteVal.I32 != 15 {
		t.Fatalf("effect transform = %+v, want Write(15)", got)
	}
}

func TestQueryFollowsNamedKeys(t *testing.T) {
	r := newFakeReader()
	accAddr := key.Account(addr(9))
	uref := key.URef(addr(10), key.ReadAddWrite)

	r.data[accAddr] = value.NewAccount(&value.Account{
		NamedKeys:      map[string]key.Key{"counter": uref},
		AssociatedKeys: map[[32]byte]uint8{},
	})
	r.data[uref] = value.Int32(42)

	tc := New(r, nil)
	res, err := tc.Query(accAddr, []string{"counter"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !res.Found || res.Value.I32 != 42 {
		t.Fatalf("query result = %+v", res)
	}
}

func TestQueryMissingSegmentReportsPathReached(t *testing.T) {
	r := newFakeReader()
	accAddr := key.Account(addr(9))
	r.data[accAddr] = value.NewAccount(&value.Account{
		NamedKeys:      map[string]key.Key{},
		AssociatedKeys: map[[32]byte]uint8{},
	})

	tc := New(r, nil)
	res, err := tc.Query(accAddr, []string{"missing"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Found {
		t.Fatalf("expected not found")
	}
	if res.PathReached != "" {
		t.Fatalf("path reached = %q, want empty (failed at first segment)", res.PathReached)
	}
}
