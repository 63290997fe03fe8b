package store

import (
	"go.etcd.io/bbolt"
)

// nodesBucket is the single bucket holding all trie nodes, keyed by their
// 32-byte content hash. The store has no auxiliary indices (spec.md §7:
// "a single content-addressed key-value store mapping 32-byte node hashes
// to trie-node bytes").
var nodesBucket = []byte("trie_nodes")

// boltEnvironment is the on-disk production Environment, backed by
// go.etcd.io/bbolt's embedded B+tree — bbolt's own single-writer,
// many-readers MVCC transactions give us spec.md §4.4's concurrency
// contract for free.
type boltEnvironment struct {
	db *bbolt.DB
}

// OpenBoltEnvironment opens (creating if absent) a bbolt-backed
// Environment at path.
func OpenBoltEnvironment(path string) (Environment, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(nodesBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &boltEnvironment{db: db}, nil
}

func (e *boltEnvironment) CreateReadTxn() (Transaction, error) {
	tx, err := e.db.Begin(false)
	if err != nil {
		return nil, err
	}
	return &boltTxn{tx: tx, writable: false}, nil
}

func (e *boltEnvironment) CreateReadWriteTxn() (Transaction, error) {
	tx, err := e.db.Begin(true)
	if err != nil {
		return nil, err
	}
	return &boltTxn{tx: tx, writable: true}, nil
}

func (e *boltEnvironment) Close() error { return e.db.Close() }

type boltTxn struct {
	tx       *bbolt.Tx
	writable bool
	closed   bool
}

func (t *boltTxn) Get(hash [32]byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrClosed
	}
	b := t.tx.Bucket(nodesBucket)
	v := b.Get(hash[:])
	if v == nil {
		return nil, false, nil
	}
	// bbolt's returned slice is only valid for the lifetime of the
	// transaction; copy it out so callers may retain it afterward.
	return append([]byte(nil), v...), true, nil
}

func (t *boltTxn) Put(hash [32]byte, data []byte) error {
	if t.closed {
		return ErrClosed
	}
	if !t.writable {
		return ErrReadOnly
	}
	b := t.tx.Bucket(nodesBucket)
	return b.Put(hash[:], data)
}

func (t *boltTxn) Commit() error {
	if t.closed {
		return ErrClosed
	}
	t.closed = true
	return t.tx.Commit()
}

func (t *boltTxn) Abort() error {
	if t.closed {
		return ErrClosed
	}
	t.closed = true
	return t.tx.Rollback()
}
