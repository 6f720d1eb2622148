package core

import (
	"sort"
	"strings"
	"sync"
)

// IndexState is the keydir's value type: either the key's latest value
// lives in the write buffer, or it has been persisted to a specific
// offset in a specific segment.
type IndexState struct {
	InBuffer bool
	FileID   FileID
	Offset   int64
}

// Keydir is the in-memory, lexicographically ordered index from key to
// its latest location. All operations are safe for concurrent use; a
// single readers-writer lock guards both the lookup map and the sorted
// key slice used for Keys/Range/Prefix. Keydir's own methods never do
// I/O while holding it; the callers of withWriteLock (DB.Clear and
// merge) append to segment files inside the lock.
type Keydir struct {
	mu      sync.RWMutex
	entries map[string]IndexState
	sorted  []string // ascending, unsigned-byte lexicographic order
}

// NewKeydir returns an empty Keydir.
func NewKeydir() *Keydir {
	return &Keydir{entries: make(map[string]IndexState)}
}

// InsertPersisted records key as persisted at (id, offset), replacing
// whatever state it previously held.
func (kd *Keydir) InsertPersisted(key []byte, id FileID, offset int64) {
	kd.insert(key, IndexState{FileID: id, Offset: offset})
}

// InsertInBuffer records key as currently living only in the write
// buffer, replacing whatever state it previously held.
func (kd *Keydir) InsertInBuffer(key []byte) {
	kd.insert(key, IndexState{InBuffer: true})
}

func (kd *Keydir) insert(key []byte, state IndexState) {
	kd.mu.Lock()
	defer kd.mu.Unlock()
	kd.insertLocked(key, state)
}

// insertLocked assumes kd.mu is already held for writing.
func (kd *Keydir) insertLocked(key []byte, state IndexState) {
	k := string(key)
	if _, exists := kd.entries[k]; !exists {
		i := sort.SearchStrings(kd.sorted, k)
		kd.sorted = append(kd.sorted, "")
		copy(kd.sorted[i+1:], kd.sorted[i:])
		kd.sorted[i] = k
	}
	kd.entries[k] = state
}

// Remove deletes key from the keydir. Removing an absent key is a
// no-op.
func (kd *Keydir) Remove(key []byte) {
	kd.mu.Lock()
	defer kd.mu.Unlock()
	kd.removeLocked(key)
}

func (kd *Keydir) removeLocked(key []byte) {
	k := string(key)
	if _, exists := kd.entries[k]; !exists {
		return
	}
	delete(kd.entries, k)
	i := sort.SearchStrings(kd.sorted, k)
	if i < len(kd.sorted) && kd.sorted[i] == k {
		kd.sorted = append(kd.sorted[:i], kd.sorted[i+1:]...)
	}
}

// Clear removes every entry from the keydir.
func (kd *Keydir) Clear() {
	kd.mu.Lock()
	defer kd.mu.Unlock()
	kd.entries = make(map[string]IndexState)
	kd.sorted = nil
}

// Contains reports whether key currently has any entry (InBuffer or
// Persisted).
func (kd *Keydir) Contains(key []byte) bool {
	kd.mu.RLock()
	defer kd.mu.RUnlock()
	_, ok := kd.entries[string(key)]
	return ok
}

// Get returns key's current state, if any.
func (kd *Keydir) Get(key []byte) (IndexState, bool) {
	kd.mu.RLock()
	defer kd.mu.RUnlock()
	s, ok := kd.entries[string(key)]
	return s, ok
}

// GetPersisted returns key's Persisted location, or ok=false if the
// key is absent or currently InBuffer.
func (kd *Keydir) GetPersisted(key []byte) (state IndexState, ok bool) {
	s, found := kd.Get(key)
	if !found || s.InBuffer {
		return IndexState{}, false
	}
	return s, true
}

// Keys returns every key currently in the keydir, in ascending order,
// as an owned snapshot — iterating it never holds the keydir lock.
func (kd *Keydir) Keys() [][]byte {
	kd.mu.RLock()
	defer kd.mu.RUnlock()
	return snapshot(kd.sorted)
}

// Range returns every key K such that (from is nil or K >= from, with
// K > from required if !fromInclusive) and (to is nil or K <= to, with
// K < to required if !toInclusive), in ascending order. Either bound
// may be nil for an unbounded side.
func (kd *Keydir) Range(from, to []byte, fromInclusive, toInclusive bool) [][]byte {
	kd.mu.RLock()
	defer kd.mu.RUnlock()

	start := 0
	if from != nil {
		f := string(from)
		start = sort.SearchStrings(kd.sorted, f)
		if !fromInclusive {
			for start < len(kd.sorted) && kd.sorted[start] == f {
				start++
			}
		}
	}

	end := len(kd.sorted)
	if to != nil {
		t := string(to)
		end = sort.SearchStrings(kd.sorted, t)
		if toInclusive {
			for end < len(kd.sorted) && kd.sorted[end] == t {
				end++
			}
		}
	}

	if start >= end {
		return nil
	}
	return snapshot(kd.sorted[start:end])
}

// Prefix returns every key starting with p, in ascending order.
func (kd *Keydir) Prefix(p []byte) [][]byte {
	kd.mu.RLock()
	defer kd.mu.RUnlock()

	prefix := string(p)
	start := sort.SearchStrings(kd.sorted, prefix)
	end := start
	for end < len(kd.sorted) && strings.HasPrefix(kd.sorted[end], prefix) {
		end++
	}
	if start >= end {
		return nil
	}
	return snapshot(kd.sorted[start:end])
}

func snapshot(keys []string) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out
}

// withWriteLock runs fn while holding the keydir's write lock, letting
// callers (notably DB.Clear) perform a batch of Keydir mutations
// atomically with respect to concurrent readers and writers.
func (kd *Keydir) withWriteLock(fn func()) {
	kd.mu.Lock()
	defer kd.mu.Unlock()
	fn()
}
