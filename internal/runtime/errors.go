package runtime

import "fmt"

// ErrForgedReference is trapped when Wasm presents a URef address this
// frame never legitimately received (spec.md §4.3's "URef forgery
// defense").
type ErrForgedReference struct {
	Addr [32]byte
}

func (e *ErrForgedReference) Error() string {
	return fmt.Sprintf("forged reference: %x is not in known_urefs", e.Addr)
}

// ErrAccessRights is trapped when a known URef is presented for an
// operation its stored rights do not cover, or when the caller attempts to
// widen rights beyond what was granted.
type ErrAccessRights struct {
	Addr      [32]byte
	Requested string
}

func (e *ErrAccessRights) Error() string {
	return fmt.Sprintf("access rights violation: %x lacks %s", e.Addr, e.Requested)
}

// RevertError carries the caller-supplied code through to the engine when
// a deploy calls revert(code) (spec.md §4.3): "abort the deploy; all
// staged effects discarded; code surfaces to the client."
type RevertError struct {
	Code uint32
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("reverted: code=%d", e.Code)
}
