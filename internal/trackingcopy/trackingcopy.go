// Package trackingcopy implements the per-deploy staging overlay of
// spec.md §4.2: a read-through cache in front of a StateReader that
// records the ordered read/write set of a single deploy as an
// ExecutionEffect, so the engine can later commit or discard it
// atomically.
package trackingcopy

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"execution-engine/pkg/key"
	"execution-engine/pkg/transform"
	"execution-engine/pkg/value"
)

// StateReader is a read-only view of global state at a fixed root,
// satisfied by internal/history's trie-backed reader.
type StateReader interface {
	Read(k key.Key) (*value.Value, bool, error)
}

// TrackingCopy is a single deploy's staging overlay. It is not safe to
// share across goroutines: spec.md §5 assigns each in-flight deploy its
// own TrackingCopy.
type TrackingCopy struct {
	mu     sync.Mutex
	reader StateReader
	cache  map[key.Key]value.Value
	effect *transform.ExecutionEffect
	log    *logrus.Logger
}

// New returns a TrackingCopy reading through to reader, logging staged
// writes at debug level via log (nil disables logging).
func New(reader StateReader, log *logrus.Logger) *TrackingCopy {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.PanicLevel)
	}
	return &TrackingCopy{
		reader: reader,
		cache:  make(map[key.Key]value.Value),
		effect: transform.NewExecutionEffect(),
		log:    log,
	}
}

// Read returns the cached value for k if present (idempotent re-read:
// spec.md §4.2's guarantee), otherwise fetches it through reader, caches
// it, and records Op::Read. A nil result with a nil error means k is
// absent from the trie.
func (tc *TrackingCopy) Read(k key.Key) (*value.Value, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.readLocked(k)
}

func (tc *TrackingCopy) readLocked(k key.Key) (*value.Value, error) {
	norm := k.Normalize()
	if v, ok := tc.cache[norm]; ok {
		return &v, nil
	}

	v, ok, err := tc.reader.Read(k)
	if err != nil {
		return nil, err
	}
	tc.effect.RecordRead(k)
	if !ok {
		return nil, nil
	}
	tc.cache[norm] = *v
	return v, nil
}

// Write overwrites k unconditionally (spec.md §4.2): `write(k, v)`.
func (tc *TrackingCopy) Write(k key.Key, v value.Value) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	norm := k.Normalize()
	tc.cache[norm] = v
	tc.effect.Record(k, transform.OpWrite, transform.Write(v))
	tc.log.WithField("key", norm.String()).Debug("tracking copy: staged write")
}

// ErrTypeMismatch is returned by Add when delta's shape conflicts with
// the current value at k; the caller must abort the deploy (spec.md §4.2,
// §7: "bubbles up and aborts the deploy").
var ErrTypeMismatch = transform.ErrTypeMismatch

// Add applies delta to whatever is currently at k (cache, or a fresh read
// through the reader), staging the result and recording delta itself (not
// the materialized value) into the effect so it composes correctly with
// any transform already staged for k.
func (tc *TrackingCopy) Add(k key.Key, delta transform.Transform) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	cur, err := tc.readLocked(k)
	if err != nil {
		return err
	}

	result, err := transform.Apply(cur, delta)
	if err != nil {
		tc.effect.Record(k, transform.OpAdd, transform.Failure(err.Error()))
		return fmt.Errorf("tracking copy: add on %s: %w", k, err)
	}

	norm := k.Normalize()
	tc.cache[norm] = *result
	tc.effect.Record(k, transform.OpAdd, delta)
	return nil
}

// QueryResult is the outcome of Query: exactly one of Value or
// PathReached is meaningful, selected by Found.
type QueryResult struct {
	Found       bool
	Value       value.Value
	PathReached string
}

// Query starts from read(baseKey) and follows path through successive
// Account/Contract named_keys maps (spec.md §4.2).
func (tc *TrackingCopy) Query(baseKey key.Key, path []string) (QueryResult, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	cur, err := tc.readLocked(baseKey)
	if err != nil {
		return QueryResult{}, err
	}
	if cur == nil {
		return QueryResult{Found: false, PathReached: ""}, nil
	}

	reached := ""
	for i, seg := range path {
		named, ok := namedKeysOf(*cur)
		if !ok {
			return QueryResult{Found: false, PathReached: reached}, nil
		}
		next, ok := named[seg]
		if !ok {
			return QueryResult{Found: false, PathReached: reached}, nil
		}
		nv, err := tc.readLocked(next)
		if err != nil {
			return QueryResult{}, err
		}
		if i > 0 {
			reached += "/"
		}
		reached += seg
		if nv == nil {
			return QueryResult{Found: false, PathReached: reached}, nil
		}
		cur = nv
	}
	return QueryResult{Found: true, Value: *cur}, nil
}

func namedKeysOf(v value.Value) (map[string]key.Key, bool) {
	switch v.Kind {
	case value.KindAccount:
		return v.Acc.NamedKeys, true
	case value.KindContract:
		return v.Contract.NamedKeys, true
	default:
		return nil, false
	}
}

// Effect returns the ExecutionEffect accumulated so far. The caller must
// not mutate the returned maps; Effect is typically called once, at the
// end of a deploy, to hand the effect to the engine for aggregation.
func (tc *TrackingCopy) Effect() *transform.ExecutionEffect {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.effect
}
