package runtime

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// deriveURefAddress computes the deterministic address new_uref allocates
// next: blake2b(caller || deploy_nonce || frame_counter), per spec.md
// §4.3's "allocate a fresh 32-byte address from the frame's deterministic
// PRNG (seeded by (caller, deploy_nonce, frame_counter))". Using the hash
// directly as the address (rather than as a seed to a stream cipher) keeps
// the allocator a pure function of its three inputs, matching the
// engine-wide prohibition on hidden mutable PRNG state (spec.md §4.3
// "Determinism").
func deriveURefAddress(caller []byte, deployNonce uint64, frameCounter uint32) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(caller)
	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], deployNonce)
	h.Write(nonceBuf[:])
	var counterBuf [4]byte
	binary.LittleEndian.PutUint32(counterBuf[:], frameCounter)
	h.Write(counterBuf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
