package notus

import "encoding/binary"

// tagLenSize is the width of the length prefix in front of every
// namespace tag: a big-endian uint16, per SPEC_FULL.md §4.12.
const tagLenSize = 2

// Namespace scopes every key under a short tag, giving a single
// datastore directory several independent column families without
// separate segment files or keydirs. Keys are stored with a
// length-prefixed tag (a big-endian uint16 byte count, then the tag
// bytes, then the caller's key) so ranges and prefixes stay confined
// to the namespace that produced them.
type Namespace struct {
	db  *DB
	tag []byte
}

// Namespace returns a handle scoping all operations to keys prefixed
// by tag. tag must be 65535 bytes or shorter.
func (db *DB) Namespace(tag string) *Namespace {
	if len(tag) > 0xFFFF {
		panic("notus: namespace tag exceeds 65535 bytes")
	}
	return &Namespace{db: db, tag: []byte(tag)}
}

func (ns *Namespace) encode(key []byte) []byte {
	out := make([]byte, 0, tagLenSize+len(ns.tag)+len(key))
	out = binary.BigEndian.AppendUint16(out, uint16(len(ns.tag)))
	out = append(out, ns.tag...)
	out = append(out, key...)
	return out
}

func (ns *Namespace) prefix() []byte {
	out := make([]byte, 0, tagLenSize+len(ns.tag))
	out = binary.BigEndian.AppendUint16(out, uint16(len(ns.tag)))
	out = append(out, ns.tag...)
	return out
}

func (ns *Namespace) strip(key []byte) []byte {
	return key[tagLenSize+len(ns.tag):]
}

// Put inserts or overwrites key's value within the namespace.
func (ns *Namespace) Put(key, value []byte) error {
	return ns.db.core.Put(ns.encode(key), value)
}

// Get returns key's current value within the namespace.
func (ns *Namespace) Get(key []byte) ([]byte, error) {
	return ns.db.core.Get(ns.encode(key))
}

// Delete removes key within the namespace.
func (ns *Namespace) Delete(key []byte) error {
	return ns.db.core.Delete(ns.encode(key))
}

// Contains reports whether key has a live entry within the namespace.
func (ns *Namespace) Contains(key []byte) bool {
	return ns.db.core.Contains(ns.encode(key))
}

// Keys returns every live key in the namespace, in ascending order,
// with the namespace tag stripped off.
func (ns *Namespace) Keys() [][]byte {
	return ns.stripAll(ns.db.core.Prefix(ns.prefix()))
}

// Prefix returns every live key in the namespace starting with p.
func (ns *Namespace) Prefix(p []byte) [][]byte {
	return ns.stripAll(ns.db.core.Prefix(append(ns.prefix(), p...)))
}

func (ns *Namespace) stripAll(keys [][]byte) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = ns.strip(k)
	}
	return out
}
