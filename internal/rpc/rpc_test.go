package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"testing"

	"execution-engine/internal/engine"
	"execution-engine/internal/genesis"
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

func newTestServer(t *testing.T) (*Server, [32]byte) {
	t.Helper()
	gs := history.New(store.NewMemEnvironment(), nil)
	eng := engine.New(gs, addr(0xFE), nil)

	cfg := genesis.Config{
		GenesisAccountAddr: addr(1),
		InitialTokens:      big.NewInt(1_000_000),
		ProtocolVersion:    1,
	}
	root, err := eng.Genesis(cfg)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return NewServer(eng, nil), root
}

func postJSON(t *testing.T, s *Server, path string, body any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	s.Router(1000, 1000).ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestQueryResolvesGenesisAccountNamedKey(t *testing.T) {
	s, root := newTestServer(t)

	baseKey := hex.EncodeToString(key.Account(addr(1)).ToBytes())
	out := postJSON(t, s, "/query", queryRequest{
		StateHash: hex.EncodeToString(root[:]),
		BaseKey:   baseKey,
		Path:      []string{"mint"},
	})

	if success, _ := out["success"].(bool); !success {
		t.Fatalf("expected success, got %v", out)
	}
}

func TestQueryUnknownRootFails(t *testing.T) {
	s, _ := newTestServer(t)

	var bogus [32]byte
	bogus[0] = 0xAA
	baseKey := hex.EncodeToString(key.Account(addr(1)).ToBytes())
	out := postJSON(t, s, "/query", queryRequest{
		StateHash: hex.EncodeToString(bogus[:]),
		BaseKey:   baseKey,
	})

	if _, ok := out["failure"]; !ok {
		t.Fatalf("expected a failure for an unknown root, got %v", out)
	}
}

func TestValidateAcceptsEmptySessionModule(t *testing.T) {
	s, _ := newTestServer(t)

	// A well-formed empty module: magic + version, no sections.
	emptyWasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out := postJSON(t, s, "/validate", validateRequest{
		SessionCode: hex.EncodeToString(emptyWasm),
	})

	if success, _ := out["success"].(bool); !success {
		t.Fatalf("expected validate success for an empty module, got %v", out)
	}
}

func TestCommitAppliesAWriteTransform(t *testing.T) {
	s, root := newTestServer(t)

	k := key.URef(addr(9), key.ReadWrite)
	writeVal := hex.EncodeToString(value.Int32(7).ToBytes())

	out := postJSON(t, s, "/commit", commitRequest{
		PrestateHash: hex.EncodeToString(root[:]),
		Effects: []transformEntryWire{
			{Key: hex.EncodeToString(k.ToBytes()), Kind: "Write", WriteVal: writeVal},
		},
	})

	if kind, _ := out["kind"].(string); kind != "Success" {
		t.Fatalf("expected commit Success, got %v", out)
	}
	if _, ok := out["post_state_hash"]; !ok {
		t.Fatalf("expected a post_state_hash in %v", out)
	}
}

func TestExecMissingParentShortCircuits(t *testing.T) {
	s, _ := newTestServer(t)

	var bogus [32]byte
	bogus[0] = 0xBB
	out := postJSON(t, s, "/exec", execRequest{
		ParentStateHash: hex.EncodeToString(bogus[:]),
		Deploys:         nil,
	})

	if kind, _ := out["kind"].(string); kind != "MissingParent" {
		t.Fatalf("expected MissingParent, got %v", out)
	}
}
