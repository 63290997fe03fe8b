// Package runtime implements spec.md §4.3: the host function boundary
// between the in-process Wasm interpreter and a deploy's TrackingCopy. It
// wires github.com/wasmerio/wasmer-go/wasmer exactly the way
// core/virtual_machine.go's HeavyVM/registerHost does — one wasmer.Store
// and one "env" ImportObject per module execution (payment code, session
// code and each call_contract callee), a per-frame hostCtx carrying the
// linear memory view, the TrackingCopy, the GasMeter and the call stack.
package runtime

import (
	"execution-engine/internal/trackingcopy"
	"execution-engine/pkg/key"
)

// uRefEntry is one capability this frame may legitimately name: the
// address plus the rights it was endowed with.
type uRefEntry struct {
	rights key.AccessRights
}

// counter is the per-deploy new_uref allocation sequence, shared by every
// frame pushed during one deploy (call_contract pushes a child Frame that
// keeps the same counter so PRNG addresses never repeat within a deploy).
type counter struct {
	n uint32
}

func (c *counter) next() uint32 {
	v := c.n
	c.n++
	return v
}

// Frame is one Wasm call-frame's view of the world (spec.md §4.3): a
// reference to the enclosing TrackingCopy, a gas counter, the caller's
// public key, a block time, call-stack depth, an argument vector, and a
// known_urefs capability set.
type Frame struct {
	TC *trackingcopy.TrackingCopy
	Gas *GasMeter

	Caller    []byte
	BlockTime uint64
	Depth     uint32
	Args      []byte

	DeployNonce uint64
	counter     *counter

	// Owner is the Key (Account for session code, Hash for a stored
	// contract) whose named_keys map put_key/remove_key stage an AddKeys
	// transform against.
	Owner key.Key

	knownURefs map[[32]byte]uRefEntry

	Loader          ContractLoader
	MintContractHash [32]byte

	// buffer holds the bytes parked by the last read/call_contract for a
	// subsequent read_host_buffer (spec.md §4.3's host-buffer mechanics).
	buffer []byte
}

// ContractLoader resolves a stored contract's bytecode and named keys by
// its Hash-kind address, so call_contract can recurse without internal/
// runtime importing the engine facade (avoiding an import cycle).
type ContractLoader interface {
	LoadContract(hash [32]byte) ([]byte, map[string]key.Key, error)
}

// NewRootFrame constructs the outermost frame of a deploy: depth 0, a
// fresh new_uref counter, and an empty known_urefs set. URefs in owner's
// existing named keys are not granted: the frame can name only the URefs
// it mints with new_uref, plus any a caller adds with GrantURef.
func NewRootFrame(tc *trackingcopy.TrackingCopy, gas *GasMeter, caller []byte, blockTime uint64, deployNonce uint64, owner key.Key, loader ContractLoader, mint [32]byte) *Frame {
	return &Frame{
		TC:                tc,
		Gas:               gas,
		Caller:            caller,
		BlockTime:         blockTime,
		Depth:             0,
		DeployNonce:       deployNonce,
		counter:           &counter{},
		Owner:             owner,
		knownURefs:        make(map[[32]byte]uRefEntry),
		Loader:            loader,
		MintContractHash:  mint,
	}
}

// child constructs a callee frame for call_contract: it inherits the
// shared new_uref counter (so addresses never repeat within the deploy)
// but starts with an empty known_urefs set; callContract then grants the
// callee's own rights-bearing named keys. URefs encoded in args are neither
// checked against the caller's capabilities nor granted to the callee.
func (f *Frame) child(args []byte, owner key.Key) *Frame {
	return &Frame{
		TC:                f.TC,
		Gas:               f.Gas,
		Caller:            f.Caller,
		BlockTime:         f.BlockTime,
		Depth:             f.Depth + 1,
		Args:              args,
		DeployNonce:       f.DeployNonce,
		counter:           f.counter,
		Owner:             owner,
		knownURefs:        make(map[[32]byte]uRefEntry),
		Loader:            f.Loader,
		MintContractHash:  f.MintContractHash,
	}
}

// GrantURef records that addr may legitimately be named by this frame
// with at most rights. Called when a URef is minted, and by callContract
// for each rights-bearing URef in the callee's own named_keys.
func (f *Frame) GrantURef(addr [32]byte, rights key.AccessRights) {
	f.knownURefs[addr] = uRefEntry{rights: rights}
}

// CheckURef validates that addr is known to this frame and that the
// stored rights are at least as permissive as requested, per spec.md
// §4.3's forgery defense. Widening rights beyond what was granted is
// rejected.
func (f *Frame) CheckURef(addr [32]byte, requested key.AccessRights) error {
	entry, ok := f.knownURefs[addr]
	if !ok {
		return &ErrForgedReference{Addr: addr}
	}
	if !entry.rights.Contains(requested) {
		return &ErrAccessRights{Addr: addr, Requested: requested.String()}
	}
	return nil
}
