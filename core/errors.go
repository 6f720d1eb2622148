package core

import "errors"

// Sentinel errors returned by the datastore. Callers should compare with
// errors.Is rather than matching on message text.
var (
	// ErrKeyNotFound is returned by Get when the key has no live entry.
	ErrKeyNotFound = errors.New("notus: key not found")

	// ErrCorrupt is returned when a data record's CRC does not match its
	// payload, or a hint points at a data offset past end-of-file.
	ErrCorrupt = errors.New("notus: corrupt record")

	// ErrLockFailed is returned by Open when another process already holds
	// the directory's exclusion lock.
	ErrLockFailed = errors.New("notus: directory lock held by another process")

	// ErrConcurrencyPoison is returned once a concurrency primitive has been
	// left poisoned by a panicking goroutine. The datastore must be
	// considered unusable past this point.
	ErrConcurrencyPoison = errors.New("notus: concurrency primitive poisoned")

	// ErrDecodeFailure is returned by DecodeDataRecord when a data record
	// is cut short after its first byte. Segment.ReadAt reports a short
	// positioned read as ErrCorrupt instead, and hint scans treat a short
	// read as end-of-stream rather than an error.
	ErrDecodeFailure = errors.New("notus: record decode failure")

	// ErrClosed is returned by any operation attempted after Close.
	ErrClosed = errors.New("notus: datastore closed")
)
