package core

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DB is the embeddable Bitcask-style key-value store: an append-only
// set of segment pairs on disk, a write buffer absorbing fresh puts, a
// lexicographically ordered keydir indexing every live key, and a
// background flusher draining the buffer onto the active segment.
type DB struct {
	dir  string
	lock *dirLock

	keydir *Keydir
	buffer *Buffer

	// segMu guards segments and active: read during Get and Merge,
	// written only during Open and Merge (spec.md §5).
	segMu    sync.RWMutex
	segments map[FileID]*Segment
	active   *Segment

	flusher       *flusher
	flushInterval time.Duration
	fsync         bool
	clock         func() uint64
	logger        *zap.Logger
	metrics       MetricsSink

	poisoned atomic.Bool
	closeMu  sync.Mutex
	closed   atomic.Bool
}

// Option configures a DB at Open time.
type Option func(*DB)

// WithFsync requests that the active segment's files be fsynced after
// every flush of the write buffer (background or explicit). Tombstones
// appended by Delete and Clear are not synced on their own. Off by
// default: durability then rests on the write buffer's periodic flush
// plus the OS page cache.
func WithFsync(enabled bool) Option {
	return func(d *DB) { d.fsync = enabled }
}

// WithFlushInterval overrides the background flusher's tick interval.
func WithFlushInterval(interval time.Duration) Option {
	return func(d *DB) { d.flushInterval = interval }
}

// WithLogger supplies a zap logger for background errors. Defaults to
// zap.NewNop() so a DB is silent unless a caller opts in.
func WithLogger(log *zap.Logger) Option {
	return func(d *DB) {
		if log != nil {
			d.logger = log
		}
	}
}

// WithMetrics wires a MetricsSink to observe operation counts and
// latencies. Defaults to a no-op sink.
func WithMetrics(m MetricsSink) Option {
	return func(d *DB) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithClock overrides the record timestamp source. Intended for
// deterministic tests; production callers should leave this unset.
func WithClock(now func() uint64) Option {
	return func(d *DB) {
		if now != nil {
			d.clock = now
		}
	}
}

func defaultClock() uint64 { return uint64(time.Now().UnixNano()) }

// Open opens (creating if necessary) the datastore directory dir,
// acquires its exclusion lock, replays every existing segment into a
// fresh keydir, and starts a new active segment and background
// flusher. The returned DB must eventually be Closed.
func Open(dir string, opts ...Option) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create datastore directory %q: %w", dir, err)
	}

	lock, err := acquireDirLock(dir)
	if err != nil {
		return nil, err
	}

	ds := &DB{
		dir:           dir,
		lock:          lock,
		keydir:        NewKeydir(),
		buffer:        NewBuffer(),
		segments:      make(map[FileID]*Segment),
		flushInterval: defaultFlushInterval,
		clock:         defaultClock,
		logger:        zap.NewNop(),
		metrics:       noopMetrics{},
	}
	for _, opt := range opts {
		opt(ds)
	}

	segments, hasHints, orphanHints, err := discoverSegments(dir)
	if err != nil {
		_ = lock.release()
		return nil, err
	}
	for _, id := range orphanHints {
		ds.logger.Warn("orphaned hint file without a data sibling, ignoring",
			zap.Stringer("file_id", id))
	}

	for i, seg := range segments {
		if err := ds.replaySegment(seg, hasHints[i]); err != nil {
			for _, s := range segments {
				_ = s.Close()
			}
			_ = lock.release()
			return nil, err
		}
		ds.segments[seg.ID()] = seg
	}

	active, err := createNewSegment(dir)
	if err != nil {
		for _, s := range segments {
			_ = s.Close()
		}
		_ = lock.release()
		return nil, err
	}
	ds.active = active
	ds.segments[active.ID()] = active

	ds.flusher = startFlusher(ds, ds.flushInterval, ds.logger)

	return ds, nil
}

// replaySegment rebuilds keydir entries from seg's hint file, or, when
// seg has none, from a direct scan of its data file (spec.md §4.3).
func (ds *DB) replaySegment(seg *Segment, hasHint bool) error {
	if hasHint {
		hs := seg.ScanHints()
		for hs.Scan() {
			rec := hs.Record()
			if rec.Tombstone {
				ds.keydir.Remove(rec.Key)
				continue
			}
			ds.keydir.InsertPersisted(rec.Key, seg.ID(), int64(rec.DataOffset))
		}
		return nil
	}

	ds.logger.Warn("segment missing hint file, recovering from data scan", zap.String("segment", seg.ID().String()))
	dataScan := seg.ScanData(true)
	for dataScan.Scan() {
		rec := dataScan.Record()
		ds.keydir.InsertPersisted(rec.Key, seg.ID(), dataScan.Offset())
	}
	return nil
}

func (ds *DB) lookupSegment(id FileID) *Segment {
	ds.segMu.RLock()
	defer ds.segMu.RUnlock()
	return ds.segments[id]
}

// guarded recovers from a panic inside fn, poisoning the DB so that
// every subsequent call fails fast with ErrConcurrencyPoison instead of
// risking a half-mutated index (spec.md §7).
func (ds *DB) guarded(fn func() error) (err error) {
	if ds.poisoned.Load() {
		return ErrConcurrencyPoison
	}
	defer func() {
		if r := recover(); r != nil {
			ds.poisoned.Store(true)
			err = fmt.Errorf("%w: %v", ErrConcurrencyPoison, r)
		}
	}()
	return fn()
}

// Put inserts or overwrites key's value. The write lands in the write
// buffer immediately and is visible to Get right away; it reaches disk
// on the next flush.
func (ds *DB) Put(key, value []byte) error {
	return ds.guarded(func() error {
		if ds.isClosed() {
			return ErrClosed
		}
		ds.keydir.InsertInBuffer(key)
		ds.buffer.Put(key, value)
		ds.metrics.ObservePut()
		return nil
	})
}

// Get returns key's current value, or ErrKeyNotFound if it has none.
func (ds *DB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := ds.guarded(func() error {
		if ds.isClosed() {
			return ErrClosed
		}

		if v, ok := ds.buffer.Get(key); ok {
			value = v
			return nil
		}

		state, ok := ds.keydir.Get(key)
		if !ok {
			return ErrKeyNotFound
		}
		if state.InBuffer {
			// Marked InBuffer but missing from the buffer when we
			// looked: a concurrent Put (which marks the keydir before
			// filling the buffer) or Delete is in progress. DrainTo
			// always updates the keydir before removing the buffer
			// entry, so a drain never leaves this state behind. Check
			// the buffer once more, then treat it as a point-in-time
			// miss rather than looping.
			if v, ok := ds.buffer.Get(key); ok {
				value = v
				return nil
			}
			return ErrKeyNotFound
		}

		seg := ds.lookupSegment(state.FileID)
		if seg == nil {
			return fmt.Errorf("%w: keydir points at unknown segment %s", ErrCorrupt, state.FileID)
		}
		rec, err := seg.ReadAt(state.Offset)
		if err != nil {
			if errors.Is(err, ErrCorrupt) {
				ds.metrics.ObserveCorruptRead()
			}
			return err
		}
		value = rec.Value
		return nil
	})
	ds.metrics.ObserveGet(err == nil)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Contains reports whether key currently has a live entry, without
// reading its value off disk.
func (ds *DB) Contains(key []byte) bool {
	if _, ok := ds.buffer.Get(key); ok {
		return true
	}
	return ds.keydir.Contains(key)
}

// Delete removes key. Deleting a key with no current entry is not an
// error: a tombstone is appended regardless, matching the original
// datastore's delete semantics.
func (ds *DB) Delete(key []byte) error {
	return ds.guarded(func() error {
		if ds.isClosed() {
			return ErrClosed
		}
		ds.buffer.Delete(key)

		ds.segMu.RLock()
		active := ds.active
		ds.segMu.RUnlock()

		if err := active.AppendTombstone(key, ds.clock()); err != nil {
			return err
		}
		ds.keydir.Remove(key)
		ds.metrics.ObserveDelete()
		return nil
	})
}

// Clear removes every key. It appends a tombstone for each one while
// holding the keydir's write lock for the whole batch, so that a
// concurrent Get can never observe a key as present once Clear has
// started removing it, and a concurrent Put racing with Clear
// deterministically loses or wins in its entirety rather than leaving
// a half-cleared keydir (an explicit resolution of the keydir/buffer
// race noted in the original design: see SPEC_FULL.md §9).
func (ds *DB) Clear() error {
	return ds.guarded(func() error {
		if ds.isClosed() {
			return ErrClosed
		}

		ds.segMu.RLock()
		active := ds.active
		ds.segMu.RUnlock()

		var tombErr error
		ds.keydir.withWriteLock(func() {
			keys := snapshot(ds.keydir.sorted)
			for _, k := range keys {
				if tombErr = active.AppendTombstone(k, ds.clock()); tombErr != nil {
					return
				}
				ds.keydir.removeLocked(k)
			}
		})
		if tombErr != nil {
			return tombErr
		}
		ds.buffer.Clear()
		return nil
	})
}

// Keys returns every live key in ascending order.
func (ds *DB) Keys() [][]byte { return ds.keydir.Keys() }

// Range returns every live key K between from and to, in ascending
// order; fromInclusive/toInclusive choose whether each bound itself is
// included. Either bound may be nil for an unbounded side.
func (ds *DB) Range(from, to []byte, fromInclusive, toInclusive bool) [][]byte {
	return ds.keydir.Range(from, to, fromInclusive, toInclusive)
}

// Prefix returns every live key starting with p, in ascending order.
func (ds *DB) Prefix(p []byte) [][]byte { return ds.keydir.Prefix(p) }

// Flush drains the write buffer onto the active segment. It is safe to
// call concurrently with Put, Get and Delete; it is what the
// background flusher calls on its own schedule, and callers needing a
// synchronous durability point can call it directly.
func (ds *DB) Flush() error {
	return ds.guarded(func() error {
		if ds.isClosed() {
			return ErrClosed
		}
		return ds.flush()
	})
}

// flush is the unguarded body shared by Flush and the background
// flusher. The flusher calls it directly, not through guarded: it logs
// any error and retries on the next tick, and neither checks nor sets
// the poisoned flag.
func (ds *DB) flush() error {
	ds.segMu.RLock()
	active := ds.active
	ds.segMu.RUnlock()

	if err := ds.buffer.DrainTo(active, ds.keydir, ds.clock); err != nil {
		return err
	}
	ds.metrics.ObserveDiskBytes(ds.DiskBytes())
	if ds.fsync {
		return active.Sync()
	}
	return nil
}

// DiskBytes returns the combined size, in bytes, of every segment's
// data and hint files currently on disk (SPEC_FULL.md §4.14).
func (ds *DB) DiskBytes() int64 {
	ds.segMu.RLock()
	defer ds.segMu.RUnlock()

	var total int64
	for _, seg := range ds.segments {
		total += seg.DiskSize()
	}
	return total
}

// Close stops the background flusher, performs a final flush, syncs
// and closes every segment, and releases the directory lock. The final
// flush's error, if any, is returned: Close must not silently lose a
// buffered put.
func (ds *DB) Close() error {
	ds.closeMu.Lock()
	defer ds.closeMu.Unlock()
	if ds.closed.Load() {
		return nil
	}
	ds.closed.Store(true)

	ds.flusher.shutdown()

	flushErr := ds.flush()

	ds.segMu.Lock()
	for _, seg := range ds.segments {
		_ = seg.Sync()
		_ = seg.Close()
	}
	ds.segMu.Unlock()

	lockErr := ds.lock.release()

	if flushErr != nil {
		return flushErr
	}
	return lockErr
}

func (ds *DB) isClosed() bool {
	return ds.closed.Load()
}
