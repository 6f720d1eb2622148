package core

import "errors"

// Iterator walks a snapshot of keys taken at construction time,
// resolving each one's value with a fresh point Get as it is visited.
// A key deleted between the snapshot and the visit is skipped silently
// rather than surfaced as an error, since by the time the caller sees
// it the key is, from the outside, simply gone (spec.md §4.10).
type Iterator struct {
	ds      *DB
	keys    [][]byte
	pos     int
	reverse bool
	key     []byte
	value   []byte
	err     error
}

// NewIterator returns an Iterator over keys, visiting them in reverse
// order if reverse is true. keys is typically the result of a prior
// call to Keys, Range or Prefix.
func NewIterator(ds *DB, keys [][]byte, reverse bool) *Iterator {
	pos := -1
	if reverse {
		pos = len(keys)
	}
	return &Iterator{ds: ds, keys: keys, pos: pos, reverse: reverse}
}

// Next advances to the next surviving key and reports whether one was
// found. It must be called before the first Key/Value.
func (it *Iterator) Next() bool {
	for {
		if it.reverse {
			it.pos--
			if it.pos < 0 {
				return false
			}
		} else {
			it.pos++
			if it.pos >= len(it.keys) {
				return false
			}
		}

		k := it.keys[it.pos]
		v, err := it.ds.Get(k)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				continue
			}
			it.err = err
			return false
		}
		it.key, it.value = k, v
		return true
	}
}

// Key returns the current entry's key.
func (it *Iterator) Key() []byte { return it.key }

// Value returns the current entry's value.
func (it *Iterator) Value() []byte { return it.value }

// Err returns the first non-ErrKeyNotFound error encountered, if any.
func (it *Iterator) Err() error { return it.err }
