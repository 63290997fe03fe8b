package genesis

import (
	"math/big"
	"testing"

	"execution-engine/internal/history"
	"execution-engine/pkg/key"
	"execution-engine/pkg/trie/store"
	"execution-engine/pkg/value"
)

func addr(b byte) [32]byte {
	var a [32]byte
	a[0] = b
	return a
}

func TestRunSeedsGenesisAccountAndSystemContracts(t *testing.T) {
	gs := history.New(store.NewMemEnvironment(), nil)
	cfg := Config{
		GenesisAccountAddr: addr(1),
		InitialTokens:      big.NewInt(1_000_000),
		Validators: []Validator{
			{PublicKey: addr(2), Stake: big.NewInt(500)},
		},
		ProtocolVersion: 1,
	}

	root, err := Run(gs, cfg)
	if err != nil {
		t.Fatalf("genesis run: %v", err)
	}
	if root == gs.EmptyRoot() {
		t.Fatalf("post-genesis root must differ from the empty root")
	}

	tc, err := gs.Checkout(root)
	if err != nil || tc == nil {
		t.Fatalf("checkout post-genesis root: tc=%v err=%v", tc, err)
	}

	accVal, err := tc.Read(key.Account(cfg.GenesisAccountAddr))
	if err != nil {
		t.Fatalf("read genesis account: %v", err)
	}
	if accVal == nil {
		t.Fatalf("genesis account not found at post-genesis root")
	}
	mintKey, ok := accVal.Acc.NamedKeys["mint"]
	if !ok {
		t.Fatalf("genesis account missing mint named key")
	}

	mintIndirection, err := tc.Read(mintKey)
	if err != nil || mintIndirection == nil {
		t.Fatalf("read mint indirection: val=%v err=%v", mintIndirection, err)
	}
	if mintIndirection.Kind != value.KindKey {
		t.Fatalf("expected the public mint uref to hold a Key indirection, got kind %v", mintIndirection.Kind)
	}

	mintContractVal, err := tc.Read(mintIndirection.KeyVal)
	if err != nil || mintContractVal == nil || mintContractVal.Contract == nil {
		t.Fatalf("read mint contract: val=%v err=%v", mintContractVal, err)
	}
	if mintContractVal.Contract.ProtocolVersion != 1 {
		t.Fatalf("mint contract protocol version = %d, want 1", mintContractVal.Contract.ProtocolVersion)
	}
}

func TestRunIsDeterministicForTheSameConfig(t *testing.T) {
	cfg := Config{GenesisAccountAddr: addr(7), InitialTokens: big.NewInt(42), ProtocolVersion: 1}

	r1, err := Run(history.New(store.NewMemEnvironment(), nil), cfg)
	if err != nil {
		t.Fatalf("run 1: %v", err)
	}
	r2, err := Run(history.New(store.NewMemEnvironment(), nil), cfg)
	if err != nil {
		t.Fatalf("run 2: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("genesis is not deterministic: %x vs %x", r1, r2)
	}
}
