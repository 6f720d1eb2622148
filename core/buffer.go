package core

import "sync"

// Buffer is the in-memory write buffer: an unordered map accumulating
// puts that have not yet been appended to the active segment. Get
// consults it before falling through to the keydir; flush drains it.
type Buffer struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{data: make(map[string][]byte)}
}

// Put inserts or overwrites key's value.
func (b *Buffer) Put(key, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[string(key)] = append([]byte(nil), value...)
}

// Get returns key's buffered value, if any.
func (b *Buffer) Get(key []byte) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[string(key)]
	return v, ok
}

// Delete removes key from the buffer. Deleting an absent key is a
// no-op.
func (b *Buffer) Delete(key []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, string(key))
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = make(map[string][]byte)
}

// Len reports the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// DrainTo moves every buffered entry into seg, updating kd to
// Persisted for each key that makes it to disk successfully before
// removing it from the buffer. now supplies the record timestamp; it
// is a parameter (rather than time.Now directly) so tests can supply a
// deterministic clock.
//
// Each entry is drained atomically with respect to the buffer and
// keydir: the data record is appended and the keydir updated before
// the entry is removed from the buffer, so a concurrent Get always
// sees one consistent view of the key, never a gap. If an append
// fails partway through, the entries already drained remain Persisted
// and the rest remain buffered for the next flush to retry.
func (b *Buffer) DrainTo(seg *Segment, kd *Keydir, now func() uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, value := range b.data {
		ts := now()
		off, err := seg.AppendData(DataRecord{Timestamp: ts, Key: []byte(key), Value: value})
		if err != nil {
			return err
		}
		if err := seg.AppendHint([]byte(key), ts, uint32(len(value)), off); err != nil {
			return err
		}
		kd.InsertPersisted([]byte(key), seg.ID(), off)
		delete(b.data, key)
	}
	return nil
}
