// Package history implements spec.md §4.4's versioned global state: a
// GlobalState value wrapping a trie store.Environment, exposing
// Checkout (pre-state root -> TrackingCopy) and Commit (prestate root +
// ExecutionEffect -> new root). There is no process-wide mutable state;
// GlobalState is a value a caller may construct more than once per
// process (spec.md §9).
package history

import (
	"sort"

	"github.com/sirupsen/logrus"

	"execution-engine/internal/trackingcopy"
	"execution-engine/pkg/key"
	"execution-engine/pkg/transform"
	"execution-engine/pkg/trie"
	"execution-engine/pkg/trie/store"
	"execution-engine/pkg/value"
)

// GlobalState is the versioned trie store facade.
type GlobalState struct {
	env store.Environment
	log *logrus.Logger
}

// New wraps env as a GlobalState.
func New(env store.Environment, log *logrus.Logger) *GlobalState {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.PanicLevel)
	}
	return &GlobalState{env: env, log: log}
}

// EmptyRoot returns the hash of the empty trie (spec.md §4.4).
func (g *GlobalState) EmptyRoot() [32]byte { return trie.EmptyRoot() }

// rootKnown reports whether root addresses a node this store has ever
// written (or is the distinguished empty root, which is never itself
// stored).
func (g *GlobalState) rootKnown(root [32]byte) (bool, error) {
	if root == trie.EmptyRoot() {
		return true, nil
	}
	txn, err := g.env.CreateReadTxn()
	if err != nil {
		return false, err
	}
	defer txn.Abort()
	_, ok, err := txn.Get(root)
	return ok, err
}

// Checkout returns a fresh TrackingCopy reading through to root, or
// (nil, nil) if root is unknown (spec.md §4.4: "None if root is unknown").
func (g *GlobalState) Checkout(root [32]byte) (*trackingcopy.TrackingCopy, error) {
	known, err := g.rootKnown(root)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, nil
	}
	return trackingcopy.New(&trieReader{env: g.env, root: root}, g.log), nil
}

// trieReader is a trackingcopy.StateReader backed by a fixed trie root;
// each Read opens a short-lived read transaction so the GlobalState
// itself never holds a transaction open between calls.
type trieReader struct {
	env  store.Environment
	root [32]byte
}

func (r *trieReader) Read(k key.Key) (*value.Value, bool, error) {
	txn, err := r.env.CreateReadTxn()
	if err != nil {
		return nil, false, err
	}
	defer txn.Abort()

	v, ok, err := trie.Read(txn, r.root, k)
	if err == trie.ErrNodeNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

// CommitKind tags CommitResult's closed outcome union.
type CommitKind byte

const (
	CommitSuccess CommitKind = iota
	CommitRootNotFound
	CommitKeyNotFound
	CommitTypeMismatch
)

// CommitResult is spec.md §4.4's
// `RootNotFound | KeyNotFound(Key) | TypeMismatch(details) | Success(new_root)`.
type CommitResult struct {
	Kind    CommitKind
	NewRoot [32]byte
	Key     key.Key
	Message string
}

// Commit applies effect's transforms to root in deterministic key order
// (lexicographic on normalized keys, spec.md §4.4), returning the new
// root. A TypeMismatch aborts the whole commit without advancing the root
// (spec.md §7: "does not advance the root").
func (g *GlobalState) Commit(root [32]byte, effect *transform.ExecutionEffect) (CommitResult, error) {
	known, err := g.rootKnown(root)
	if err != nil {
		return CommitResult{}, err
	}
	if !known {
		return CommitResult{Kind: CommitRootNotFound}, nil
	}

	keys := effect.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	txn, err := g.env.CreateReadWriteTxn()
	if err != nil {
		return CommitResult{}, err
	}

	cur := root
	for _, k := range keys {
		t := effect.Transforms[k]
		if t.Kind == transform.KindFailure {
			txn.Abort()
			return CommitResult{Kind: CommitTypeMismatch, Message: t.FailureMsg}, nil
		}

		existing, ok, err := trie.Read(txn, cur, k)
		if err == trie.ErrNodeNotFound {
			txn.Abort()
			return CommitResult{Kind: CommitKeyNotFound, Key: k}, nil
		}
		if err != nil {
			txn.Abort()
			return CommitResult{}, err
		}

		var existingPtr *value.Value
		if ok {
			existingPtr = &existing
		}

		newVal, err := transform.Apply(existingPtr, t)
		if err == transform.ErrTypeMismatch {
			txn.Abort()
			return CommitResult{Kind: CommitTypeMismatch, Message: "type mismatch applying " + t.Kind.String() + " to " + k.String()}, nil
		}
		if err != nil {
			txn.Abort()
			return CommitResult{}, err
		}

		newRoot, err := trie.Write(txn, cur, k, *newVal)
		if err != nil {
			txn.Abort()
			return CommitResult{}, err
		}
		cur = newRoot
	}

	if err := txn.Commit(); err != nil {
		return CommitResult{}, err
	}

	g.log.WithFields(logrus.Fields{"prestate_root": root, "post_state_root": cur, "keys": len(keys)}).Info("history: committed")
	return CommitResult{Kind: CommitSuccess, NewRoot: cur}, nil
}
