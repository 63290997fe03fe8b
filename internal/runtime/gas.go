package runtime

import "fmt"

// GasMeter tracks gas usage against a deploy's gas_limit (spec.md §4.3,
// §5: "a deploy is bounded solely by its gas_limit"). Grounded on
// core/virtual_machine.go's GasMeter, generalized from a per-opcode
// schedule to the spec's single per-host-call gas(n) hook.
type GasMeter struct {
	used  uint64
	limit uint64
}

// NewGasMeter constructs a meter with the given limit and zero usage.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Used returns the gas consumed so far.
func (g *GasMeter) Used() uint64 { return g.used }

// Limit returns the configured gas limit.
func (g *GasMeter) Limit() uint64 { return g.limit }

// Remaining returns limit - used.
func (g *GasMeter) Remaining() uint64 { return g.limit - g.used }

// ErrGasLimit is returned by Consume when n would push usage past the
// limit; the caller (registerHost's gas() trampoline) traps the deploy.
var ErrGasLimit = fmt.Errorf("gas limit exceeded")

// Consume charges n gas units, failing without mutating used if doing so
// would exceed limit.
func (g *GasMeter) Consume(n uint64) error {
	if g.used+n > g.limit {
		return ErrGasLimit
	}
	g.used += n
	return nil
}
