// Package preprocess implements spec.md's Wasm preprocessing pass as a
// concrete, runnable instantiation of the pure function the spec treats
// as an opaque collaborator: `bytes -> Module | PreprocessingError`.
// Parsing is delegated to wasmer-go's own module parser (the same
// compiler internal/runtime instantiates against), and this package adds
// the import/export validation spec.md §6's S6 scenario and §7's
// preprocessing-error taxonomy require on top of it.
package preprocess

import (
	"fmt"
	"sort"

	"github.com/wasmerio/wasmer-go/wasmer"
)

// allowedHostFunctions is the complete "env" import surface
// internal/runtime's registerHost exposes (spec.md §4.3); any module
// importing anything outside this set is rejected before it ever reaches
// the runtime.
var allowedHostFunctions = map[string]bool{
	"gas":                          true,
	"read":                         true,
	"read_host_buffer":             true,
	"write":                        true,
	"add":                          true,
	"new_uref":                     true,
	"put_key":                      true,
	"get_key":                      true,
	"remove_key":                   true,
	"call_contract":                true,
	"transfer_from_purse_to_purse": true,
	"revert":                       true,
	"get_caller":                   true,
	"get_blocktime":                true,
}

// Kind tags PreprocessingError's failure reason (spec.md §7: "invalid
// imports, missing export section, gas-rule violation, stack-limit
// violation").
type Kind byte

const (
	// KindMalformed means wasmer's own parser rejected the bytes
	// outright (not valid Wasm at all).
	KindMalformed Kind = iota
	// KindInvalidImport means the module imports a host function outside
	// allowedHostFunctions.
	KindInvalidImport
	// KindMissingExport means a module internal/runtime is actually
	// about to execute (as opposed to merely validate) lacks memory or
	// call; Preprocess itself does not require this — spec.md §6's S6
	// scenario explicitly accepts a minimal empty module under
	// `validate` — so this kind is produced by RequireExecutable, not
	// Preprocess.
	KindMissingExport
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "Malformed"
	case KindInvalidImport:
		return "InvalidImport"
	case KindMissingExport:
		return "MissingExport"
	default:
		return "Unknown"
	}
}

// PreprocessingError is the typed failure of Preprocess; deploys failing
// preprocessing cost zero gas (spec.md §7).
type PreprocessingError struct {
	Kind    Kind
	Detail  string
}

func (e *PreprocessingError) Error() string {
	return fmt.Sprintf("preprocessing: %s: %s", e.Kind, e.Detail)
}

// Preprocess parses code and validates its import surface (exports are
// checked separately, by RequireExecutable), returning the compiled *wasmer.Module ready for internal/runtime to
// instantiate, or a *PreprocessingError naming the first violation found.
func Preprocess(engine *wasmer.Engine, code []byte) (*wasmer.Module, error) {
	store := wasmer.NewStore(engine)
	mod, err := wasmer.NewModule(store, code)
	if err != nil {
		return nil, &PreprocessingError{Kind: KindMalformed, Detail: err.Error()}
	}

	if bad := firstDisallowedImport(mod); bad != "" {
		return nil, &PreprocessingError{Kind: KindInvalidImport, Detail: bad}
	}

	return mod, nil
}

// ValidateOnly runs Preprocess purely for its pass/fail verdict, backing
// the `validate` RPC (spec.md §6's S6 scenario): a minimal empty module
// is accepted; one importing a host function outside the allowed set is
// rejected by name.
func ValidateOnly(engine *wasmer.Engine, code []byte) error {
	_, err := Preprocess(engine, code)
	return err
}

// RequireExecutable additionally checks that mod exports memory and call,
// the shape internal/runtime.Execute actually needs at deploy time (as
// distinct from the looser check Preprocess/ValidateOnly apply for the
// bare `validate` RPC).
func RequireExecutable(mod *wasmer.Module) error {
	present := make(map[string]bool)
	for _, ex := range mod.Exports() {
		present[ex.Name()] = true
	}
	for _, want := range []string{"memory", "call"} {
		if !present[want] {
			return &PreprocessingError{Kind: KindMissingExport, Detail: want}
		}
	}
	return nil
}

func firstDisallowedImport(mod *wasmer.Module) string {
	imports := mod.Imports()
	names := make([]string, 0, len(imports))
	byName := make(map[string]*wasmer.ImportType, len(imports))
	for _, im := range imports {
		names = append(names, im.Name())
		byName[im.Name()] = im
	}
	sort.Strings(names)
	for _, name := range names {
		im := byName[name]
		if im.Module() != "env" {
			return fmt.Sprintf("%s.%s", im.Module(), im.Name())
		}
		if !allowedHostFunctions[im.Name()] {
			return fmt.Sprintf("env.%s", im.Name())
		}
	}
	return ""
}

