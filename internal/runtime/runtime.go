package runtime

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/wasmerio/wasmer-go/wasmer"

	"execution-engine/pkg/key"
)

// defaultEntryPoint is the export every deploy's session/payment module
// must provide, matching the "call" convention of the contract-authoring
// SDK this engine is deliberately silent on (spec.md's Out-of-scope list).
const defaultEntryPoint = "call"

// Result is one module execution's outcome: whether it succeeded, how
// much gas it burned, and (on success) the bytes its entry point left in
// the host buffer at return. Grounded on core/virtual_machine.go's
// Receipt, narrowed to this engine's host function set (no logs/topics).
type Result struct {
	Success    bool
	GasUsed    uint64
	ReturnData []byte
	Error      string
}

// Runtime is the shared, reusable Wasm engine a process instantiates
// once; each Execute call gets its own wasmer.Store and instance so
// concurrent deploys never share Wasm-level state (spec.md §5).
type Runtime struct {
	engine *wasmer.Engine
	log    *logrus.Logger
}

// New constructs a Runtime. A nil logger disables logging.
func New(log *logrus.Logger) *Runtime {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.PanicLevel)
	}
	return &Runtime{engine: wasmer.NewEngine(), log: log}
}

// Engine exposes the shared wasmer.Engine so callers (internal/engine's
// preprocessing step) compile against the same engine Execute will later
// instantiate modules against.
func (rt *Runtime) Engine() *wasmer.Engine { return rt.engine }

// Execute runs code's defaultEntryPoint export under frame, the way
// core/virtual_machine.go's HeavyVM.Execute runs "_start": compile a
// fresh Module, build the "env" imports against a fresh hostCtx,
// instantiate, pull out the "memory" export, and invoke the entry point.
func (rt *Runtime) Execute(code []byte, frame *Frame) (*Result, error) {
	return rt.executeEntry(code, frame, defaultEntryPoint)
}

func (rt *Runtime) executeEntry(code []byte, frame *Frame, entryPoint string) (result *Result, err error) {
	store := wasmer.NewStore(rt.engine)
	mod, err := wasmer.NewModule(store, code)
	if err != nil {
		return nil, fmt.Errorf("runtime: compile module: %w", err)
	}

	h := &hostCtx{frame: frame, rt: rt}
	imports := registerHost(store, h)

	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, fmt.Errorf("runtime: instantiate: %w", err)
	}
	defer instance.Close()

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, errors.New("runtime: wasm memory export missing")
	}
	h.mem = mem

	entry, err := instance.Exports.GetFunction(entryPoint)
	if err != nil {
		return nil, fmt.Errorf("runtime: %s export required: %w", entryPoint, err)
	}

	res := &Result{Success: true}
	if _, callErr := entry(); callErr != nil {
		var revert *RevertError
		switch {
		case errors.As(callErr, &revert):
			res.Success = false
			res.Error = revert.Error()
		default:
			res.Success = false
			res.Error = callErr.Error()
		}
	} else {
		res.ReturnData = frame.buffer
	}
	res.GasUsed = frame.Gas.Used()

	rt.log.WithFields(logrus.Fields{
		"entry_point": entryPoint,
		"depth":       frame.Depth,
		"gas_used":    res.GasUsed,
		"success":     res.Success,
	}).Debug("runtime: executed module")

	return res, nil
}

// callContract resolves hash via the caller frame's ContractLoader,
// pushes a child frame, and recurses (spec.md §4.3: "resolve the
// contract ... push a new call frame ... recurse"). The callee's own
// named_keys are granted to the child frame so a stored contract can
// always name the URefs it already owns.
func (rt *Runtime) callContract(caller *Frame, hash [32]byte, entryPoint string, args []byte) ([]byte, error) {
	if caller.Loader == nil {
		return nil, fmt.Errorf("runtime: call_contract: no contract loader configured")
	}
	code, namedKeys, err := caller.Loader.LoadContract(hash)
	if err != nil {
		return nil, fmt.Errorf("runtime: call_contract: %w", err)
	}

	child := caller.child(args, key.Hash(hash))
	for _, k := range namedKeys {
		if k.Kind == key.KindURef && k.HasRights {
			child.GrantURef(k.Addr, k.Rights)
		}
	}

	res, err := rt.executeEntry(code, child, entryPoint)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, errors.New(res.Error)
	}
	return res.ReturnData, nil
}
