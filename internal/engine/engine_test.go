package engine

import (
	"math/big"
	"testing"

	"github.com/wasmerio/wasmer-go/wasmer"

	"execution-engine/internal/genesis"
	"execution-engine/internal/history"
	"execution-engine/pkg/key"
	"execution-engine/pkg/trie/store"
)

func addr(b byte) [32]byte {
	var a [32]byte
	a[0] = b
	return a
}

func wat2wasm(t *testing.T, wat string) []byte {
	t.Helper()
	bytes, err := wasmer.Wat2Wasm(wat)
	if err != nil {
		t.Fatalf("wat2wasm: %v", err)
	}
	return bytes
}

const minimalModule = `(module (memory (export "memory") 1) (func (export "call")))`

func gasBurningModule(t *testing.T, units int) []byte {
	return wat2wasm(t, `
		(module
			(import "env" "gas" (func $gas (param i32) (result i32)))
			(memory (export "memory") 1)
			(func (export "call")
				i32.const `+itoa(units)+`
				call $gas
				drop))
	`)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func newGenesisEngine(t *testing.T) (*Engine, [32]byte) {
	t.Helper()
	gs := history.New(store.NewMemEnvironment(), nil)
	eng := New(gs, addr(0xFE), nil)

	cfg := genesis.Config{
		GenesisAccountAddr: addr(1),
		InitialTokens:      big.NewInt(1_000_000),
		MintCode:           wat2wasm(t, minimalModule),
		PosCode:            wat2wasm(t, minimalModule),
		ProtocolVersion:    1,
	}
	root, err := eng.Genesis(cfg)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return eng, root
}

func TestExecRunsASuccessfulDeployAndAdvancesTheRoot(t *testing.T) {
	eng, root := newGenesisEngine(t)

	d := Deploy{
		Address:     addr(1),
		SessionCode: gasBurningModule(t, 10),
		GasLimit:    1_000,
		Nonce:       1,
		Timestamp:   1700000000,
		Approvals:   [][32]byte{addr(1)},
	}

	result, err := eng.Exec(root, []Deploy{d})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if result.Kind != ExecSuccess {
		t.Fatalf("expected ExecSuccess, got %v", result.Kind)
	}
	if len(result.Results) != 1 {
		t.Fatalf("expected 1 deploy result, got %d", len(result.Results))
	}
	dr := result.Results[0]
	if dr.Kind != DeploySuccess {
		t.Fatalf("expected DeploySuccess, got kind=%v message=%q", dr.Kind, dr.Message)
	}
	if dr.Cost != 10 {
		t.Fatalf("cost = %d, want 10", dr.Cost)
	}
	if result.NewRoot == root {
		t.Fatalf("successful deploy must advance the root")
	}
}

func TestExecChainsSuccessiveDeploysOntoEachOthersState(t *testing.T) {
	eng, root := newGenesisEngine(t)

	deploys := []Deploy{
		{Address: addr(1), SessionCode: gasBurningModule(t, 5), GasLimit: 1_000, Nonce: 1, Approvals: [][32]byte{addr(1)}},
		{Address: addr(1), SessionCode: gasBurningModule(t, 7), GasLimit: 1_000, Nonce: 2, Approvals: [][32]byte{addr(1)}},
	}

	result, err := eng.Exec(root, deploys)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if result.Kind != ExecSuccess {
		t.Fatalf("expected ExecSuccess, got %v", result.Kind)
	}
	for i, dr := range result.Results {
		if dr.Kind != DeploySuccess {
			t.Fatalf("deploy %d: expected success, got %q", i, dr.Message)
		}
	}
	if result.Results[0].Cost != 5 || result.Results[1].Cost != 7 {
		t.Fatalf("unexpected costs: %+v", result.Results)
	}
}

func TestExecMissingParentShortCircuitsBeforeRunningAnyDeploy(t *testing.T) {
	eng, _ := newGenesisEngine(t)

	var unknownRoot [32]byte
	unknownRoot[0] = 0xDE
	unknownRoot[1] = 0xAD

	d := Deploy{Address: addr(1), SessionCode: gasBurningModule(t, 1), GasLimit: 1_000, Approvals: [][32]byte{addr(1)}}
	result, err := eng.Exec(unknownRoot, []Deploy{d})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if result.Kind != ExecMissingParent {
		t.Fatalf("expected ExecMissingParent, got %v", result.Kind)
	}
	if result.MissingRoot != unknownRoot {
		t.Fatalf("missing root = %x, want %x", result.MissingRoot, unknownRoot)
	}
}

func TestExecDeployWithInsufficientApprovalsFailsWithoutAdvancingRoot(t *testing.T) {
	eng, root := newGenesisEngine(t)

	d := Deploy{
		Address:     addr(1),
		SessionCode: gasBurningModule(t, 1),
		GasLimit:    1_000,
		Approvals:   nil,
	}

	result, err := eng.Exec(root, []Deploy{d})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if result.Kind != ExecSuccess {
		t.Fatalf("expected ExecSuccess envelope with a failed deploy result, got %v", result.Kind)
	}
	dr := result.Results[0]
	if dr.Kind != DeployError || dr.ErrorKind != "InvalidAccess" {
		t.Fatalf("expected InvalidAccess deploy error, got kind=%v errorKind=%q", dr.Kind, dr.ErrorKind)
	}
	if result.NewRoot != root {
		t.Fatalf("a failed deploy must not advance the root")
	}
}

func TestExecDeployWithDisallowedImportFailsPreprocessing(t *testing.T) {
	eng, root := newGenesisEngine(t)

	badCode := wat2wasm(t, `
		(module
			(import "env" "not_a_real_host_fn" (func $bad))
			(memory (export "memory") 1)
			(func (export "call") call $bad))
	`)

	d := Deploy{Address: addr(1), SessionCode: badCode, GasLimit: 1_000, Approvals: [][32]byte{addr(1)}}
	result, err := eng.Exec(root, []Deploy{d})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	dr := result.Results[0]
	if dr.Kind != DeployError || dr.ErrorKind != "Preprocessing" {
		t.Fatalf("expected Preprocessing deploy error, got kind=%v errorKind=%q", dr.Kind, dr.ErrorKind)
	}
	if dr.Cost != 0 {
		t.Fatalf("preprocessing failure must cost zero gas, got %d", dr.Cost)
	}
}

func TestExecDeployRevertDiscardsEffectsButChargesGas(t *testing.T) {
	eng, root := newGenesisEngine(t)

	revertCode := wat2wasm(t, `
		(module
			(import "env" "gas" (func $gas (param i32) (result i32)))
			(import "env" "revert" (func $revert (param i32)))
			(memory (export "memory") 1)
			(func (export "call")
				i32.const 3
				call $gas
				drop
				i32.const 42
				call $revert))
	`)

	d := Deploy{Address: addr(1), SessionCode: revertCode, GasLimit: 1_000, Approvals: [][32]byte{addr(1)}}
	result, err := eng.Exec(root, []Deploy{d})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	dr := result.Results[0]
	if dr.Kind != DeployError || dr.ErrorKind != "Revert" {
		t.Fatalf("expected Revert deploy error, got kind=%v errorKind=%q", dr.Kind, dr.ErrorKind)
	}
	if dr.Cost != 3 {
		t.Fatalf("cost = %d, want 3 (gas burned before revert)", dr.Cost)
	}
	if result.NewRoot != root {
		t.Fatalf("a reverted deploy must not advance the root")
	}
}

func TestQueryResolvesGenesisAccountThroughNamedKeys(t *testing.T) {
	eng, root := newGenesisEngine(t)

	res, err := eng.Query(root, key.Account(addr(1)), []string{"mint"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !res.Found {
		t.Fatalf("expected the genesis account's mint named key to resolve")
	}
}

func TestValidateAcceptsMinimalModuleAndRejectsDisallowedImport(t *testing.T) {
	eng, _ := newGenesisEngine(t)

	if err := eng.Validate(nil, wat2wasm(t, minimalModule)); err != nil {
		t.Fatalf("expected a minimal module to validate, got %v", err)
	}

	bad := wat2wasm(t, `(module (import "env" "not_a_real_host_fn" (func $bad)))`)
	if err := eng.Validate(nil, bad); err == nil {
		t.Fatalf("expected validation to reject a disallowed import")
	}
}
