// Package genesis seeds the mint and proof-of-stake system contracts that
// spec.md's Out-of-scope list treats as "ordinary contracts that the
// genesis procedure seeds" (spec.md §1). Grounded on
// original_source/execution-engine/engine/src/engine_state/genesis.rs's
// create_mint_effects/create_pos_effects, adapted to this engine's
// TrackingCopy/GlobalState plumbing in place of the original's
// HashMap<Key, Value> effect-building.
package genesis

import (
	"fmt"
	"math/big"

	"execution-engine/internal/history"
	"execution-engine/internal/trackingcopy"
	"execution-engine/pkg/key"
	"execution-engine/pkg/value"
)

// posPurseName mirrors the original's POS_PURSE constant.
const posPurseName = "pos_purse"

// Validator is one genesis-bonded validator's public key and initial
// stake, recorded into the proof-of-stake contract's named keys.
type Validator struct {
	PublicKey [32]byte
	Stake     *big.Int
}

// Config parameterizes Genesis: the account that owns the system
// contracts, its initial token balance, the mint and proof-of-stake
// contract bytecode (already preprocessed, or empty for a bare stub), the
// validator set, and the protocol version stamped onto both contracts.
type Config struct {
	GenesisAccountAddr [32]byte
	InitialTokens      *big.Int
	MintCode           []byte
	PosCode            []byte
	Validators         []Validator
	ProtocolVersion    uint32
}

// prng is the blessed genesis URef allocator: addresses are
// blake2b(seed || counter), the construction internal/runtime's
// deriveURefAddress uses for per-deploy URef addresses minus its
// deploy-nonce field, seeded here by
// (genesis_account_addr, 0) per spec.md §9's resolved Open Question (c)
// rather than by a caller/deploy-nonce pair (genesis has neither).
type prng struct {
	seed    [32]byte
	counter uint32
}

func newPRNG(seed [32]byte) *prng { return &prng{seed: seed} }

func (p *prng) next() [32]byte {
	addr := blessedURefAddress(p.seed, p.counter)
	p.counter++
	return addr
}

// Run executes the genesis procedure against gs, starting from the empty
// trie root, and returns the post-genesis state root.
func Run(gs *history.GlobalState, cfg Config) ([32]byte, error) {
	root := gs.EmptyRoot()
	tc, err := gs.Checkout(root)
	if err != nil {
		return [32]byte{}, err
	}
	if tc == nil {
		return [32]byte{}, fmt.Errorf("genesis: empty root did not check out")
	}

	rng := newPRNG(cfg.GenesisAccountAddr)

	mintURef, err := seedMint(tc, rng, cfg)
	if err != nil {
		return [32]byte{}, fmt.Errorf("genesis: mint: %w", err)
	}
	posURef, err := seedPOS(tc, rng, cfg)
	if err != nil {
		return [32]byte{}, fmt.Errorf("genesis: pos: %w", err)
	}

	purseIDURef := key.URef(rng.next(), key.ReadAddWrite)
	account := &value.Account{
		PublicKey: append([]byte(nil), cfg.GenesisAccountAddr[:]...),
		Nonce:     0,
		PurseID:   purseIDURef,
		NamedKeys: map[string]key.Key{
			"mint": mintURef,
			"pos":  posURef,
		},
		AssociatedKeys: map[[32]byte]uint8{
			cfg.GenesisAccountAddr: 1,
		},
		ActionThresholds: value.ActionThresholds{KeyManagement: 1, Deployment: 1},
	}
	tc.Write(key.Account(cfg.GenesisAccountAddr), value.NewAccount(account))
	tc.Write(purseIDURef, value.UInt512(big.NewInt(0)))

	res, err := gs.Commit(root, tc.Effect())
	if err != nil {
		return [32]byte{}, err
	}
	if res.Kind != history.CommitSuccess {
		return [32]byte{}, fmt.Errorf("genesis: commit failed: kind=%v key=%s message=%s", res.Kind, res.Key, res.Message)
	}
	return res.NewRoot, nil
}

// seedMint stores the mint contract under a freshly minted URef and
// returns a public URef pointing to it (original_source's
// create_mint_effects: "Create (public_uref, mint_contract_uref)").
func seedMint(tc *trackingcopy.TrackingCopy, rng *prng, cfg Config) (key.Key, error) {
	publicURef := key.URef(rng.next(), key.ReadAddWrite)
	mintContractURef := key.URef(rng.next(), key.ReadAddWrite)

	tc.Write(publicURef, value.NewKey(mintContractURef))

	purseIDURef := key.URef(rng.next(), key.ReadAddWrite)
	balanceURef := key.URef(rng.next(), key.ReadAddWrite)

	purseLocalKey := key.Local(mintContractURef.Addr, purseIDURef.Addr[:])
	tc.Write(purseLocalKey, value.NewKey(balanceURef))

	initial := cfg.InitialTokens
	if initial == nil {
		initial = big.NewInt(0)
	}
	tc.Write(balanceURef, value.UInt512(initial))

	mintContract := &value.Contract{
		Bytes: append([]byte(nil), cfg.MintCode...),
		NamedKeys: map[string]key.Key{
			"balance":    balanceURef,
			"purse_id":   purseIDURef,
			"mint_uref":  mintContractURef,
		},
		ProtocolVersion: cfg.ProtocolVersion,
	}
	tc.Write(mintContractURef, value.NewContract(mintContract))

	return publicURef, nil
}

// seedPOS stores the proof-of-stake contract, recording each genesis
// validator's stake as a "v_{pubkey}_{stake}" named key, mirroring
// original_source's create_pos_effects.
func seedPOS(tc *trackingcopy.TrackingCopy, rng *prng, cfg Config) (key.Key, error) {
	publicURef := key.URef(rng.next(), key.ReadAddWrite)
	posURef := key.URef(rng.next(), key.ReadAddWrite)
	posPurse := key.URef(rng.next(), key.ReadAddWrite)

	tc.Write(publicURef, value.NewKey(posURef))

	namedKeys := map[string]key.Key{
		posPurseName: posPurse,
		"pos_uref":   posURef,
	}
	for _, v := range cfg.Validators {
		name := fmt.Sprintf("v_%x_%s", v.PublicKey, v.Stake.String())
		namedKeys[name] = key.URefNoRights(v.PublicKey)
	}

	posContract := &value.Contract{
		Bytes:           append([]byte(nil), cfg.PosCode...),
		NamedKeys:       namedKeys,
		ProtocolVersion: cfg.ProtocolVersion,
	}
	tc.Write(posURef, value.NewContract(posContract))
	tc.Write(posPurse, value.UInt512(big.NewInt(0)))

	return publicURef, nil
}
