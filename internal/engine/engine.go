// Package engine is the facade spec.md §2 calls out as the top of the
// dependency order: it orchestrates preprocess -> checkout -> runtime
// execution -> effect collection -> commit for a deploy or a block of
// deploys, and backs the query/validate/genesis surfaces besides.
// Grounded on core/contract_management.go's contract dispatch and
// core/ledger.go's top-level orchestration loop.
package engine

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"execution-engine/internal/genesis"
	"execution-engine/internal/history"
	"execution-engine/internal/preprocess"
	"execution-engine/internal/runtime"
	"execution-engine/internal/trackingcopy"
	"execution-engine/pkg/key"
	"execution-engine/pkg/transform"
	"execution-engine/pkg/value"
)

// defaultPaymentGasReserve bounds how much gas standard payment code may
// spend before session code runs, mirroring
// execution-engine/contracts/client/standard-payment/src/lib.rs's fixed
// "pay" entry point cost.
const defaultPaymentGasReserve = 100_000

// Deploy is spec.md §6's wire Deploy record. Approvals lists the
// associated-key addresses that already-verified signatures accompanied
// (deploy signature verification itself is out of scope per spec.md §1).
type Deploy struct {
	Address     [32]byte
	SessionCode []byte
	Args        []byte
	PaymentCode []byte
	GasLimit    uint64
	Nonce       uint64
	Timestamp   uint64
	Approvals   [][32]byte
}

// DeployKind tags DeployResult's closed union (spec.md §6: `Success{effect,
// cost} | Error{kind, message, cost}`).
type DeployKind byte

const (
	DeploySuccess DeployKind = iota
	DeployError
)

// DeployResult is the outcome of executing one deploy.
type DeployResult struct {
	Kind      DeployKind
	Effect    *transform.ExecutionEffect
	Cost      uint64
	ErrorKind string
	Message   string
}

// ExecKind tags ExecResult's closed union (spec.md §6: `Success([DeployResult])
// | MissingParent(root)`).
type ExecKind byte

const (
	ExecSuccess ExecKind = iota
	ExecMissingParent
)

// ExecResult is the outcome of running a block of deploys in sequence.
type ExecResult struct {
	Kind        ExecKind
	Results     []DeployResult
	NewRoot     [32]byte
	MissingRoot [32]byte
}

// Engine is the process-wide facade: a GlobalState, a shared Wasm
// Runtime, and the mint contract's Hash address (for
// transfer_from_purse_to_purse).
type Engine struct {
	GS   *history.GlobalState
	RT   *runtime.Runtime
	Mint [32]byte
	log  *logrus.Logger
}

// New constructs an Engine. A nil logger disables logging.
func New(gs *history.GlobalState, mint [32]byte, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.PanicLevel)
	}
	return &Engine{GS: gs, RT: runtime.New(log), Mint: mint, log: log}
}

// Genesis seeds the mint/proof-of-stake system contracts and returns the
// post-genesis root.
func (e *Engine) Genesis(cfg genesis.Config) ([32]byte, error) {
	return genesis.Run(e.GS, cfg)
}

// Query resolves baseKey then follows path through named_keys maps
// (spec.md §6's `query` RPC), reading at the state identified by root.
func (e *Engine) Query(root [32]byte, baseKey key.Key, path []string) (trackingcopy.QueryResult, error) {
	tc, err := e.GS.Checkout(root)
	if err != nil {
		return trackingcopy.QueryResult{}, err
	}
	if tc == nil {
		return trackingcopy.QueryResult{}, fmt.Errorf("engine: query: root %x not found", root)
	}
	return tc.Query(baseKey, path)
}

// Validate runs spec.md §6's `validate` RPC: both payment and session
// code must pass preprocessing (S6's import-set check), empty code
// (no payment stage) is always valid.
func (e *Engine) Validate(paymentCode, sessionCode []byte) error {
	if len(paymentCode) > 0 {
		if err := preprocess.ValidateOnly(e.RT.Engine(), paymentCode); err != nil {
			return err
		}
	}
	return preprocess.ValidateOnly(e.RT.Engine(), sessionCode)
}

// CommitEffects applies an externally supplied effect set directly
// (spec.md §6's `commit` RPC, as distinct from Exec's execute-then-commit
// path): used when a caller has already computed an ExecutionEffect (e.g.
// replaying a block without re-executing Wasm) and only wants it applied.
func (e *Engine) CommitEffects(root [32]byte, effect *transform.ExecutionEffect) (history.CommitResult, error) {
	return e.GS.Commit(root, effect)
}

// Exec runs deploys in block order against parentRoot: each deploy
// checks out the tracking copy at the current root, executes, and (on
// success) is committed immediately so the next deploy observes it
// (spec.md §5: "deploy i+1 observes the state produced by committing
// deploy i"). A prestate root unknown to the store short-circuits the
// entire batch with ExecMissingParent before any deploy runs (spec.md
// §7/S5).
func (e *Engine) Exec(parentRoot [32]byte, deploys []Deploy) (ExecResult, error) {
	tc, err := e.GS.Checkout(parentRoot)
	if err != nil {
		return ExecResult{}, err
	}
	if tc == nil {
		return ExecResult{Kind: ExecMissingParent, MissingRoot: parentRoot}, nil
	}

	cur := parentRoot
	results := make([]DeployResult, 0, len(deploys))
	for _, d := range deploys {
		res, newRoot, err := e.runAndCommit(cur, d)
		if err != nil {
			return ExecResult{}, err
		}
		cur = newRoot
		results = append(results, res)
	}
	return ExecResult{Kind: ExecSuccess, Results: results, NewRoot: cur}, nil
}

// runAndCommit executes one deploy at root and, on success, commits its
// effect, returning the resulting root (root itself if the deploy failed,
// since a failed deploy's effects are discarded, not committed).
func (e *Engine) runAndCommit(root [32]byte, d Deploy) (DeployResult, [32]byte, error) {
	res, err := e.runDeploy(root, d)
	if err != nil {
		return DeployResult{}, root, err
	}
	if res.Kind != DeploySuccess {
		return res, root, nil
	}

	commitRes, err := e.GS.Commit(root, res.Effect)
	if err != nil {
		return DeployResult{}, root, err
	}
	switch commitRes.Kind {
	case history.CommitSuccess:
		return res, commitRes.NewRoot, nil
	case history.CommitKeyNotFound:
		return DeployResult{}, root, fmt.Errorf("engine: commit: key not found: %s (bug signal)", commitRes.Key)
	default:
		return DeployResult{Kind: DeployError, ErrorKind: "TypeMismatch", Message: commitRes.Message, Cost: res.Cost}, root, nil
	}
}

// runDeploy executes one deploy's payment code (if present) then its
// session code against a single TrackingCopy and shared GasMeter,
// returning a DeployResult without committing anything.
func (e *Engine) runDeploy(root [32]byte, d Deploy) (DeployResult, error) {
	tc, err := e.GS.Checkout(root)
	if err != nil {
		return DeployResult{}, err
	}
	if tc == nil {
		return DeployResult{}, fmt.Errorf("engine: run_deploy: root %x not found", root)
	}

	ownerKey := key.Account(d.Address)
	acc, err := tc.Read(ownerKey)
	if err != nil {
		return DeployResult{}, err
	}
	if acc == nil || acc.Acc == nil {
		return DeployResult{Kind: DeployError, ErrorKind: "InvalidAccess", Message: "deploying account does not exist"}, nil
	}
	if err := checkThreshold(acc.Acc, d.Approvals, ActionDeployment); err != nil {
		return DeployResult{Kind: DeployError, ErrorKind: "InvalidAccess", Message: err.Error()}, nil
	}

	if len(d.PaymentCode) > 0 {
		if pErr := e.requireDeployable(d.PaymentCode); pErr != nil {
			return DeployResult{Kind: DeployError, ErrorKind: "Preprocessing", Message: pErr.Error()}, nil
		}
	}
	if pErr := e.requireDeployable(d.SessionCode); pErr != nil {
		return DeployResult{Kind: DeployError, ErrorKind: "Preprocessing", Message: pErr.Error()}, nil
	}

	gas := runtime.NewGasMeter(d.GasLimit)
	loader := &tcContractLoader{tc: tc}

	if len(d.PaymentCode) > 0 {
		paymentLimit := d.GasLimit
		if paymentLimit > defaultPaymentGasReserve {
			paymentLimit = defaultPaymentGasReserve
		}
		paymentFrame := runtime.NewRootFrame(tc, runtime.NewGasMeter(paymentLimit), acc.Acc.PublicKey, d.Timestamp, d.Nonce, ownerKey, loader, e.Mint)
		res, err := e.RT.Execute(d.PaymentCode, paymentFrame)
		if err != nil {
			return DeployResult{}, err
		}
		if !res.Success {
			return DeployResult{Kind: DeployError, ErrorKind: classifyRuntimeError(res.Error), Message: res.Error, Cost: res.GasUsed}, nil
		}
		// Carry the payment stage's usage into the deploy's overall
		// gas_limit budget so cost reported on the session stage's
		// result is the deploy's total gas consumed (spec.md §6: "cost
		// is gas consumed"), not just the session stage's own usage.
		gas = runtime.NewGasMeter(d.GasLimit)
		_ = gas.Consume(res.GasUsed)
	}

	sessionFrame := runtime.NewRootFrame(tc, gas, acc.Acc.PublicKey, d.Timestamp, d.Nonce, ownerKey, loader, e.Mint)
	sessionFrame.Args = d.Args
	res, err := e.RT.Execute(d.SessionCode, sessionFrame)
	if err != nil {
		return DeployResult{}, err
	}
	if !res.Success {
		return DeployResult{Kind: DeployError, ErrorKind: classifyRuntimeError(res.Error), Message: res.Error, Cost: res.GasUsed}, nil
	}

	// A successful deploy bumps the deploying account's nonce. The account
	// is read back through tc so named keys the session staged are kept.
	cur, err := tc.Read(ownerKey)
	if err != nil {
		return DeployResult{}, err
	}
	if cur != nil && cur.Acc != nil {
		bumped := cur.Acc.Clone()
		bumped.Nonce++
		tc.Write(ownerKey, value.NewAccount(bumped))
	}

	return DeployResult{Kind: DeploySuccess, Effect: tc.Effect(), Cost: res.GasUsed}, nil
}

// requireDeployable runs code through preprocessing (import-set check)
// then requires it to expose the "memory"/"call" exports execution needs
// — the latter check spec.md's S6 deliberately excludes from plain
// `validate` but every actual deploy still needs (a minimal empty module
// validates, but nothing would call it).
func (e *Engine) requireDeployable(code []byte) error {
	mod, err := preprocess.Preprocess(e.RT.Engine(), code)
	if err != nil {
		return err
	}
	return preprocess.RequireExecutable(mod)
}

// classifyRuntimeError maps a runtime.Result's free-form error string
// onto spec.md §7's execution error taxonomy for the response's typed
// ErrorKind field.
func classifyRuntimeError(msg string) string {
	switch {
	case msg == runtime.ErrGasLimit.Error():
		return "GasLimit"
	case len(msg) >= 9 && msg[:9] == "reverted:":
		return "Revert"
	case len(msg) >= 17 && msg[:17] == "forged reference:":
		return "ForgedReference"
	case len(msg) >= 24 && msg[:24] == "access rights violation:":
		return "InvalidAccess"
	default:
		return "Trap"
	}
}
