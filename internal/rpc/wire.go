package rpc

import (
	"encoding/hex"
	"errors"
	"math/big"

	"execution-engine/pkg/key"
	"execution-engine/pkg/value"
)

var (
	errBadUInt512           = errors.New("rpc: malformed uint512 decimal string")
	errUnknownTransformKind = errors.New("rpc: unknown transform kind")
)

// decodeRoot decodes a 32-byte state-hash hex string, spec.md §6's
// bytes32 wire field.
func decodeRoot(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, errors.New("rpc: state hash must be 32 bytes")
	}
	copy(out[:], raw)
	return out, nil
}

// decodeAddr32 decodes a 32-byte address hex string (account/deploy
// addresses).
func decodeAddr32(s string) ([32]byte, error) { return decodeRoot(s) }

// decodeKey decodes a hex-encoded canonical Key serialization (pkg/key's
// ToBytes/FromBytes, spec.md §4.1).
func decodeKey(s string) (key.Key, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key.Key{}, err
	}
	k, _, err := key.FromBytes(raw)
	return k, err
}

// valueFromBytes decodes a canonical Value serialization.
func valueFromBytes(raw []byte) (value.Value, int, error) {
	return value.FromBytes(raw)
}

// parseUInt512 parses a base-10 decimal string into a *big.Int, rejecting
// malformed input (used for AddUInt512 transform entries on the commit
// RPC, which carry their delta as decimal text rather than raw bytes for
// operator readability).
func parseUInt512(s string) (*big.Int, bool) {
	return new(big.Int).SetString(s, 10)
}
