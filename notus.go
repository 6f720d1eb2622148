// Package notus is an embeddable, single-process, persistent
// key-value store built on the Bitcask model: an append-only log of
// segment files backed by an in-memory index of every live key's
// location.
package notus

import (
	"github.com/lx7/notus/core"
)

// Option configures a DB at Open time. The concrete constructors
// (WithFsync, WithFlushInterval, WithLogger, WithMetrics, WithClock)
// live in the core package and are re-exported here so callers never
// need to import it directly.
type Option = core.Option

var (
	WithFsync         = core.WithFsync
	WithFlushInterval = core.WithFlushInterval
	WithLogger        = core.WithLogger
	WithMetrics       = core.WithMetrics
	WithClock         = core.WithClock
)

// Sentinel errors, re-exported from core so callers never need to
// import it directly.
var (
	ErrKeyNotFound       = core.ErrKeyNotFound
	ErrCorrupt           = core.ErrCorrupt
	ErrLockFailed        = core.ErrLockFailed
	ErrConcurrencyPoison = core.ErrConcurrencyPoison
	ErrClosed            = core.ErrClosed
)

// DB is a handle on an open datastore directory.
type DB struct {
	core *core.DB
}

// Open opens (creating if necessary) the datastore rooted at dir.
func Open(dir string, opts ...Option) (*DB, error) {
	c, err := core.Open(dir, opts...)
	if err != nil {
		return nil, err
	}
	return &DB{core: c}, nil
}

// Put inserts or overwrites key's value.
func (db *DB) Put(key, value []byte) error { return db.core.Put(key, value) }

// Get returns key's current value, or ErrKeyNotFound.
func (db *DB) Get(key []byte) ([]byte, error) { return db.core.Get(key) }

// Delete removes key. Deleting a missing key is not an error.
func (db *DB) Delete(key []byte) error { return db.core.Delete(key) }

// Contains reports whether key currently has a live entry.
func (db *DB) Contains(key []byte) bool { return db.core.Contains(key) }

// Clear removes every key in the datastore.
func (db *DB) Clear() error { return db.core.Clear() }

// Keys returns every live key in ascending order.
func (db *DB) Keys() [][]byte { return db.core.Keys() }

// Range returns every live key K bounded by from/to, honoring the
// inclusive/exclusive flags on each side. Either bound may be nil.
func (db *DB) Range(from, to []byte, fromInclusive, toInclusive bool) [][]byte {
	return db.core.Range(from, to, fromInclusive, toInclusive)
}

// Prefix returns every live key starting with p, in ascending order.
func (db *DB) Prefix(p []byte) [][]byte { return db.core.Prefix(p) }

// Flush drains the write buffer onto the active segment.
func (db *DB) Flush() error { return db.core.Flush() }

// Merge compacts every non-active segment, dropping any record the
// keydir no longer points at. There is no automatic background
// compaction: merge only ever runs when called.
func (db *DB) Merge() error { return db.core.Merge() }

// Close stops the background flusher, performs a final flush, and
// releases the datastore's directory lock.
func (db *DB) Close() error { return db.core.Close() }

// Iter returns an iterator over keys, in reverse order if reverse is
// true. Pass the result of Keys, Range or Prefix.
func (db *DB) Iter(keys [][]byte, reverse bool) *core.Iterator {
	return core.NewIterator(db.core, keys, reverse)
}
