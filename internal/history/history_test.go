package history

import (
	"testing"

	"execution-engine/pkg/key"
	"execution-engine/pkg/transform"
	"execution-engine/pkg/trie/store"
	"execution-engine/pkg/value"
)

func addr(b byte) [32]byte {
	var a [32]byte
	a[0] = b
	return a
}

func newGlobalState() *GlobalState {
	return New(store.NewMemEnvironment(), nil)
}

func TestCheckoutEmptyRootSucceeds(t *testing.T) {
	g := newGlobalState()
	tc, err := g.Checkout(g.EmptyRoot())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if tc == nil {
		t.Fatalf("expected a tracking copy for the empty root")
	}
}

func TestCheckoutUnknownRootReturnsNil(t *testing.T) {
	g := newGlobalState()
	var bogus [32]byte
	bogus[0] = 0xFF
	tc, err := g.Checkout(bogus)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if tc != nil {
		t.Fatalf("expected nil tracking copy for unknown root")
	}
}

func TestCommitWriteThenCheckoutObservesIt(t *testing.T) {
	g := newGlobalState()
	root := g.EmptyRoot()

	tc, err := g.Checkout(root)
	if err != nil || tc == nil {
		t.Fatalf("checkout: tc=%v err=%v", tc, err)
	}
	k := key.Account(addr(1))
	tc.Write(k, value.Int32(10))

	res, err := g.Commit(root, tc.Effect())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.Kind != CommitSuccess {
		t.Fatalf("commit result = %+v", res)
	}

	tc2, err := g.Checkout(res.NewRoot)
	if err != nil || tc2 == nil {
		t.Fatalf("checkout new root: tc=%v err=%v", tc2, err)
	}
	got, err := tc2.Read(k)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got == nil || got.I32 != 10 {
		t.Fatalf("got %+v, want Int32(10)", got)
	}
}

func TestCommitUnknownRootIsRootNotFound(t *testing.T) {
	g := newGlobalState()
	var bogus [32]byte
	bogus[0] = 0xAB

	eff := transform.NewExecutionEffect()
	res, err := g.Commit(bogus, eff)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.Kind != CommitRootNotFound {
		t.Fatalf("result = %+v, want RootNotFound", res)
	}
}

func TestCommitTypeMismatchDoesNotAdvanceRoot(t *testing.T) {
	g := newGlobalState()
	root := g.EmptyRoot()

	eff := transform.NewExecutionEffect()
	k := key.Account(addr(2))
	eff.Record(k, transform.OpAdd, transform.AddInt32(1)) // no prior value: TypeMismatch

	res, err := g.Commit(root, eff)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.Kind != CommitTypeMismatch {
		t.Fatalf("result = %+v, want TypeMismatch", res)
	}

	// the prestate root must still check out cleanly, proving nothing
	// was written.
	tc, err := g.Checkout(root)
	if err != nil || tc == nil {
		t.Fatalf("original root no longer valid: tc=%v err=%v", tc, err)
	}
}

func TestCommitDeterministicRegardlessOfEffectIterationOrder(t *testing.T) {
	g := newGlobalState()
	root := g.EmptyRoot()

	build := func(order []byte) [32]byte {
		eff := transform.NewExecutionEffect()
		for _, b := range order {
			eff.Record(key.Account(addr(b)), transform.OpWrite, transform.Write(value.Int32(int32(b))))
		}
		res, err := g.Commit(root, eff)
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		if res.Kind != CommitSuccess {
			t.Fatalf("commit result = %+v", res)
		}
		return res.NewRoot
	}

	r1 := build([]byte{1, 2, 3, 4, 5})
	r2 := build([]byte{5, 4, 3, 2, 1})
	if r1 != r2 {
		t.Fatalf("commit not deterministic: %x vs %x", r1, r2)
	}
}

func TestSequentialDeploysObservePriorCommits(t *testing.T) {
	g := newGlobalState()
	root := g.EmptyRoot()
	k := key.Account(addr(7))

	tc1, err := g.Checkout(root)
	if err != nil || tc1 == nil {
		t.Fatalf("checkout 1: tc=%v err=%v", tc1, err)
	}
	tc1.Write(k, value.Int32(1))
	res1, err := g.Commit(root, tc1.Effect())
	if err != nil || res1.Kind != CommitSuccess {
		t.Fatalf("commit 1: res=%+v err=%v", res1, err)
	}

	tc2, err := g.Checkout(res1.NewRoot)
	if err != nil || tc2 == nil {
		t.Fatalf("checkout 2: tc=%v err=%v", tc2, err)
	}
	if err := tc2.Add(k, transform.AddInt32(4)); err != nil {
		t.Fatalf("add: %v", err)
	}
	res2, err := g.Commit(res1.NewRoot, tc2.Effect())
	if err != nil || res2.Kind != CommitSuccess {
		t.Fatalf("commit 2: res=%+v err=%v", res2, err)
	}

	tc3, _ := g.Checkout(res2.NewRoot)
	got, err := tc3.Read(k)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got == nil || got.I32 != 5 {
		t.Fatalf("got %+v, want Int32(5)", got)
	}
}
