package runtime

import (
	"errors"
	"strings"
	"testing"

	"github.com/wasmerio/wasmer-go/wasmer"

	"execution-engine/internal/trackingcopy"
	"execution-engine/pkg/key"
)

func addr(b byte) [32]byte {
	var a [32]byte
	a[0] = b
	return a
}

func TestGasMeterConsumeSaturatesAtLimit(t *testing.T) {
	g := NewGasMeter(100)
	if err := g.Consume(60); err != nil {
		t.Fatalf("consume 60: %v", err)
	}
	if err := g.Consume(60); err != ErrGasLimit {
		t.Fatalf("expected ErrGasLimit, got %v", err)
	}
	if g.Used() != 60 {
		t.Fatalf("used = %d, want 60 (overrun must not partially charge)", g.Used())
	}
	if err := g.Consume(40); err != nil {
		t.Fatalf("consume remaining 40: %v", err)
	}
	if g.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", g.Remaining())
	}
}

func TestDeriveURefAddressDeterministicAndDistinct(t *testing.T) {
	caller := []byte{1, 2, 3}
	a1 := deriveURefAddress(caller, 5, 0)
	a2 := deriveURefAddress(caller, 5, 0)
	if a1 != a2 {
		t.Fatalf("derivation is not a pure function of its inputs")
	}
	a3 := deriveURefAddress(caller, 5, 1)
	if a1 == a3 {
		t.Fatalf("distinct frame counters must not collide")
	}
	a4 := deriveURefAddress(caller, 6, 0)
	if a1 == a4 {
		t.Fatalf("distinct deploy nonces must not collide")
	}
}

func TestFrameCheckURefRejectsForgedReference(t *testing.T) {
	f := &Frame{knownURefs: make(map[[32]byte]uRefEntry)}
	err := f.CheckURef(addr(1), key.Read)
	if err == nil {
		t.Fatalf("expected forged-reference error for an unknown address")
	}
	var forged *ErrForgedReference
	if !errors.As(err, &forged) {
		t.Fatalf("wrong error type: %v", err)
	}
}

func TestFrameCheckURefRejectsRightsWidening(t *testing.T) {
	f := &Frame{knownURefs: make(map[[32]byte]uRefEntry)}
	f.GrantURef(addr(2), key.Read)
	if err := f.CheckURef(addr(2), key.Read); err != nil {
		t.Fatalf("granted right should check out: %v", err)
	}
	if err := f.CheckURef(addr(2), key.Write); err == nil {
		t.Fatalf("expected access-rights error widening READ to WRITE")
	}
}

func wat2wasm(t *testing.T, wat string) []byte {
	t.Helper()
	bytes, err := wasmer.Wat2Wasm(wat)
	if err != nil {
		t.Fatalf("wat2wasm: %v", err)
	}
	return bytes
}

func newTestFrame() *Frame {
	tc := trackingcopy.New(nil, nil)
	return NewRootFrame(tc, NewGasMeter(1_000_000), []byte{0xAA}, 1700000000, 1, key.Account(addr(9)), nil, addr(0xFF))
}

func TestExecuteChargesGasThroughHostCall(t *testing.T) {
	wasm := wat2wasm(t, `
		(module
			(import "env" "gas" (func $gas (param i32) (result i32)))
			(memory (export "memory") 1)
			(func (export "call")
				i32.const 10
				call $gas
				drop))
	`)

	rt := New(nil)
	frame := newTestFrame()
	res, err := rt.Execute(wasm, frame)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.GasUsed != 10 {
		t.Fatalf("gas used = %d, want 10", res.GasUsed)
	}
}

func TestExecuteOutOfGasTraps(t *testing.T) {
	wasm := wat2wasm(t, `
		(module
			(import "env" "gas" (func $gas (param i32) (result i32)))
			(memory (export "memory") 1)
			(func (export "call")
				i32.const 999999999
				call $gas
				drop))
	`)

	rt := New(nil)
	frame := newTestFrame()
	frame.Gas = NewGasMeter(10)
	res, err := rt.Execute(wasm, frame)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure on out-of-gas")
	}
}

func TestExecuteRevertSurfacesCode(t *testing.T) {
	wasm := wat2wasm(t, `
		(module
			(import "env" "revert" (func $revert (param i32)))
			(memory (export "memory") 1)
			(func (export "call")
				i32.const 7
				call $revert))
	`)

	rt := New(nil)
	frame := newTestFrame()
	res, err := rt.Execute(wasm, frame)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success {
		t.Fatalf("expected revert to fail the deploy")
	}
	if !strings.Contains(res.Error, "code=7") {
		t.Fatalf("error = %q, want it to mention code=7", res.Error)
	}
}

func TestExecuteMissingEntryPointErrors(t *testing.T) {
	wasm := wat2wasm(t, `(module (memory (export "memory") 1))`)

	rt := New(nil)
	frame := newTestFrame()
	if _, err := rt.Execute(wasm, frame); err == nil {
		t.Fatalf("expected an error for a module with no call export")
	}
}
