package transform

import (
	"sort"

	"execution-engine/pkg/key"
)

// ExecutionEffect is the staged output of a deploy's TrackingCopy: a
// transform per touched key plus the Op classification used for conflict
// detection between concurrently executed deploys (spec.md §3).
type ExecutionEffect struct {
	Ops        map[key.Key]Op
	Transforms map[key.Key]Transform
}

// NewExecutionEffect returns an effect with empty maps.
func NewExecutionEffect() *ExecutionEffect {
	return &ExecutionEffect{
		Ops:        make(map[key.Key]Op),
		Transforms: make(map[key.Key]Transform),
	}
}

// Record folds op and t onto whatever is already staged for k: the
// transform is composed (older-then-newer), and the op classification is
// joined to its strongest observed value.
func (e *ExecutionEffect) Record(k key.Key, op Op, t Transform) {
	norm := k.Normalize()
	if existing, ok := e.Transforms[norm]; ok {
		e.Transforms[norm] = Compose(existing, t)
	} else {
		e.Transforms[norm] = t
	}
	e.Ops[norm] = JoinOp(e.Ops[norm], op)
}

// RecordRead joins a bare Op::Read into the ledger without staging a
// transform: a read that is never followed by a write or add must not
// leave behind a spurious Identity entry in Transforms (spec.md §4.2).
func (e *ExecutionEffect) RecordRead(k key.Key) {
	norm := k.Normalize()
	e.Ops[norm] = JoinOp(e.Ops[norm], OpRead)
}

// Keys returns the touched keys in the deterministic total order defined
// by key.Key.Less, for diagnostics and for commit-time iteration.
func (e *ExecutionEffect) Keys() []key.Key {
	out := make([]key.Key, 0, len(e.Transforms))
	for k := range e.Transforms {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
