package core

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Merge compacts every immutable (non-active) segment into a single
// fresh segment, dropping any record the keydir no longer points at
// (because it was overwritten or deleted after that segment was
// written). It never touches the active segment, and it is the only
// way segments are ever compacted or removed — notus performs no
// automatic background compaction (SPEC_FULL.md §9).
//
// A record survives the merge only if, at the moment Merge inspects
// it, the keydir still points at that exact (segment, offset) pair;
// the check-and-rewrite is done atomically under the keydir's write
// lock for that one key, so a Put or Delete racing with Merge always
// wins cleanly rather than merge silently resurrecting a stale value.
func (ds *DB) Merge() error {
	return ds.guarded(func() error {
		if ds.isClosed() {
			return ErrClosed
		}
		return ds.merge()
	})
}

func (ds *DB) merge() error {
	start := time.Now()

	ds.segMu.RLock()
	toMerge := make([]*Segment, 0, len(ds.segments))
	for id, seg := range ds.segments {
		if id == ds.active.ID() {
			continue
		}
		toMerge = append(toMerge, seg)
	}
	ds.segMu.RUnlock()

	if len(toMerge) == 0 {
		return nil
	}

	merged, err := createNewSegment(ds.dir)
	if err != nil {
		return fmt.Errorf("merge: create output segment: %w", err)
	}

	// Register the output segment immediately so that a concurrent Get
	// resolving a keydir entry this merge just rewrote can find it via
	// lookupSegment right away, rather than racing the final swap.
	ds.segMu.Lock()
	ds.segments[merged.ID()] = merged
	ds.segMu.Unlock()

	var reclaimed int64
	for _, seg := range toMerge {
		n, err := ds.mergeSegment(seg, merged)
		if err != nil {
			return fmt.Errorf("merge: copy segment %s: %w", seg.ID(), err)
		}
		reclaimed += n
	}

	ds.segMu.Lock()
	for _, seg := range toMerge {
		delete(ds.segments, seg.ID())
	}
	ds.segMu.Unlock()

	for _, seg := range toMerge {
		_ = seg.Close()
		if err := seg.Remove(); err != nil {
			ds.logger.Warn("merge: failed to remove old segment", zap.Error(err))
		}
	}

	ds.metrics.ObserveMerge(time.Since(start), reclaimed)
	return nil
}

// mergeSegment copies every still-live record out of seg and into
// merged, rewriting the keydir per key as it goes. It returns the
// number of bytes that belonged to records which were NOT copied
// (dead weight this merge reclaimed).
//
// It walks seg's hints, not its data file (spec.md §4.7): for each
// hint whose key the keydir still resolves to this exact (segment,
// offset), the full DataRecord is fetched with ReadAt, which verifies
// the CRC. A hint pointing at a corrupt or truncated record therefore
// surfaces ErrCorrupt and aborts the merge, rather than the record
// being silently dropped or silently copied unchecked.
func (ds *DB) mergeSegment(seg, merged *Segment) (reclaimed int64, err error) {
	hints := seg.ScanHints()
	if hints == nil {
		// No hint file survived for this segment (spec.md §4.3's
		// recovered-from-data-scan case). There is no offset/size index
		// to consult, so fall back to the same CRC-checked data walk
		// replaySegment uses for this situation.
		return ds.mergeSegmentFromData(seg, merged)
	}

	for hints.Scan() {
		hint := hints.Record()
		if hint.Tombstone {
			continue
		}
		recLen := int64(dataHeaderLen) + int64(len(hint.Key)) + int64(hint.ValueSize)

		live := false
		var copyErr error
		ds.keydir.withWriteLock(func() {
			state, ok := ds.keydir.entries[string(hint.Key)]
			if !ok || state.InBuffer || state.FileID != seg.ID() || state.Offset != int64(hint.DataOffset) {
				return
			}

			rec, readErr := seg.ReadAt(int64(hint.DataOffset))
			if readErr != nil {
				copyErr = readErr
				return
			}

			newOff, appendErr := merged.AppendData(rec)
			if appendErr != nil {
				copyErr = appendErr
				return
			}
			if hintErr := merged.AppendHint(rec.Key, rec.Timestamp, uint32(len(rec.Value)), newOff); hintErr != nil {
				copyErr = hintErr
				return
			}
			ds.keydir.insertLocked(rec.Key, IndexState{FileID: merged.ID(), Offset: newOff})
			live = true
		})
		if copyErr != nil {
			return reclaimed, fmt.Errorf("merge segment %s: key %q: %w", seg.ID(), hint.Key, copyErr)
		}
		if !live {
			reclaimed += recLen
		}
	}
	return reclaimed, nil
}

// mergeSegmentFromData is mergeSegment's fallback for a segment whose
// hint file is missing. It scans the data file directly, matching the
// same CRC-checked, truncate-on-torn-tail behavior replaySegment uses
// when recovering such a segment.
func (ds *DB) mergeSegmentFromData(seg, merged *Segment) (reclaimed int64, err error) {
	scan := seg.ScanData(true)
	for scan.Scan() {
		rec := scan.Record()
		recLen := int64(dataHeaderLen) + int64(len(rec.Key)) + int64(len(rec.Value))

		live := false
		var copyErr error
		ds.keydir.withWriteLock(func() {
			state, ok := ds.keydir.entries[string(rec.Key)]
			if !ok || state.InBuffer || state.FileID != seg.ID() || state.Offset != scan.Offset() {
				return
			}

			newOff, appendErr := merged.AppendData(rec)
			if appendErr != nil {
				copyErr = appendErr
				return
			}
			if hintErr := merged.AppendHint(rec.Key, rec.Timestamp, uint32(len(rec.Value)), newOff); hintErr != nil {
				copyErr = hintErr
				return
			}
			ds.keydir.insertLocked(rec.Key, IndexState{FileID: merged.ID(), Offset: newOff})
			live = true
		})
		if copyErr != nil {
			return reclaimed, copyErr
		}
		if !live {
			reclaimed += recLen
		}
	}
	return reclaimed, nil
}
