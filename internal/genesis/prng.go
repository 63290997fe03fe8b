package genesis

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// blessedURefAddress computes blake2b(seed || counter), the same
// construction internal/runtime's deriveURefAddress uses for ordinary
// deploys, specialized here to the genesis procedure's single-seed,
// no-caller/no-nonce PRNG (spec.md §9's resolved Open Question (c)).
func blessedURefAddress(seed [32]byte, counter uint32) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(seed[:])
	var counterBuf [4]byte
	binary.LittleEndian.PutUint32(counterBuf[:], counter)
	h.Write(counterBuf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
