// Package store implements spec.md §4.4's Environment/Transaction
// contract: a pluggable, hash-addressed backing store for trie nodes,
// with read transactions that may run concurrently and write transactions
// serialized by the backend. Two backends are provided: memenv (in-memory,
// for tests) and boltenv (on-disk, via go.etcd.io/bbolt).
package store

import "errors"

// ErrReadOnly is returned when Put is called against a read transaction.
var ErrReadOnly = errors.New("store: transaction is read-only")

// ErrClosed is returned when a transaction is used after Commit or Abort.
var ErrClosed = errors.New("store: transaction already closed")

// Environment is the shareable handle to a trie node store. Implementations
// must allow any number of concurrent read transactions; write transactions
// are serialized internally.
type Environment interface {
	CreateReadTxn() (Transaction, error)
	CreateReadWriteTxn() (Transaction, error)
	Close() error
}

// Transaction is a single read or read-write view over the node store.
// It satisfies pkg/trie.NodeStore structurally (Get/Put), so callers can
// pass a Transaction directly to trie.Read/trie.Write without this package
// importing pkg/trie.
type Transaction interface {
	Get(hash [32]byte) ([]byte, bool, error)
	Put(hash [32]byte, data []byte) error
	Commit() error
	Abort() error
}
