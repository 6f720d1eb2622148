package core

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	dataExt = ".data"
	hintExt = ".hint"
)

// FileID names a segment pair. It is rendered as the decimal digits of
// the wall-clock nanosecond timestamp at the moment the pair was
// created, and is monotonically increasing across the lifetime of a
// datastore directory.
type FileID int64

func (id FileID) String() string { return strconv.FormatInt(int64(id), 10) }

func dataPath(dir string, id FileID) string {
	return filepath.Join(dir, id.String()+dataExt)
}

func hintPath(dir string, id FileID) string {
	return filepath.Join(dir, id.String()+hintExt)
}

// Segment is one .data/.hint file pair sharing a FileID. The active
// segment is the only Segment any datastore ever appends to; every
// other Segment known to a datastore is immutable.
type Segment struct {
	id   FileID
	dir  string
	data *os.File
	hint *os.File

	// appendMu serializes appends from goroutines within this process.
	// The flockFd calls inside AppendData and appendHintRecord take an
	// OS-level exclusive lock on both file descriptors for the duration
	// of the append, guarding against another process somehow writing to
	// the same files — belt and braces, since the directory lock already
	// keeps other processes out entirely.
	appendMu sync.Mutex
	size     int64 // next append offset into the data file
	hintSize int64 // current length of the hint file
}

// createSegment creates a brand new, empty segment pair. It uses
// O_CREATE|O_EXCL on both files so that two concurrent calls racing on
// the same FileID cannot silently clobber one another; the loser gets
// an error and is expected to retry with a fresh FileID.
func createSegment(dir string, id FileID) (*Segment, error) {
	df, err := os.OpenFile(dataPath(dir, id), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create data file for segment %s: %w", id, err)
	}

	hf, err := os.OpenFile(hintPath(dir, id), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		_ = df.Close()
		_ = os.Remove(dataPath(dir, id))
		return nil, fmt.Errorf("create hint file for segment %s: %w", id, err)
	}

	return &Segment{id: id, dir: dir, data: df, hint: hf}, nil
}

// openSegment opens an existing data file for an immutable or
// to-be-replayed segment. hasHint reports whether a sibling .hint file
// exists; a data file without a hint sibling is still a valid segment,
// recovered by scanning the data file directly (spec.md §4.3).
func openSegment(dir string, id FileID) (seg *Segment, hasHint bool, err error) {
	df, err := os.OpenFile(dataPath(dir, id), os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open data file for segment %s: %w", id, err)
	}

	info, err := df.Stat()
	if err != nil {
		_ = df.Close()
		return nil, false, fmt.Errorf("stat data file for segment %s: %w", id, err)
	}

	hf, err := os.OpenFile(hintPath(dir, id), os.O_RDWR, 0o644)
	if err != nil {
		if !os.IsNotExist(err) {
			_ = df.Close()
			return nil, false, fmt.Errorf("open hint file for segment %s: %w", id, err)
		}
		return &Segment{id: id, dir: dir, data: df, size: info.Size()}, false, nil
	}

	hintInfo, err := hf.Stat()
	if err != nil {
		_ = df.Close()
		_ = hf.Close()
		return nil, false, fmt.Errorf("stat hint file for segment %s: %w", id, err)
	}

	return &Segment{id: id, dir: dir, data: df, hint: hf, size: info.Size(), hintSize: hintInfo.Size()}, true, nil
}

// ID returns the segment's FileID.
func (s *Segment) ID() FileID { return s.id }

// Size returns the current length of the data file.
func (s *Segment) Size() int64 { return s.size }

// DiskSize returns the combined length of the segment's data and hint
// files, for reporting total on-disk footprint (SPEC_FULL.md §4.14).
func (s *Segment) DiskSize() int64 { return s.size + s.hintSize }

// AppendData appends rec to the data file and returns the offset at
// which the record begins.
func (s *Segment) AppendData(rec DataRecord) (int64, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	buf := EncodeDataRecord(rec)

	if err := flockFd(s.data, true); err != nil {
		return 0, fmt.Errorf("lock data file for segment %s: %w", s.id, err)
	}
	defer flockFd(s.data, false)

	off := s.size
	n, err := s.data.WriteAt(buf, off)
	if err != nil {
		return 0, fmt.Errorf("append data to segment %s: %w", s.id, err)
	}
	s.size += int64(n)

	return off, nil
}

// AppendHint appends a live-entry hint record pointing at dataOffset.
func (s *Segment) AppendHint(key []byte, timestamp uint64, valueSize uint32, dataOffset int64) error {
	return s.appendHintRecord(HintRecord{
		Timestamp:  timestamp,
		DataOffset: uint64(dataOffset),
		Key:        key,
	}, valueSize)
}

// AppendTombstone appends a tombstone hint record for key. No data
// record is written for a delete (spec.md §4.8).
func (s *Segment) AppendTombstone(key []byte, timestamp uint64) error {
	return s.appendHintRecord(HintRecord{
		Timestamp: timestamp,
		Tombstone: true,
		Key:       key,
	}, 0)
}

func (s *Segment) appendHintRecord(rec HintRecord, valueSize uint32) error {
	if s.hint == nil {
		return fmt.Errorf("segment %s has no hint file", s.id)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	if err := flockFd(s.hint, true); err != nil {
		return fmt.Errorf("lock hint file for segment %s: %w", s.id, err)
	}
	defer flockFd(s.hint, false)

	buf := EncodeHintRecord(rec, valueSize)
	if _, err := s.hint.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek hint file for segment %s: %w", s.id, err)
	}
	n, err := s.hint.Write(buf)
	if err != nil {
		return fmt.Errorf("append hint to segment %s: %w", s.id, err)
	}
	s.hintSize += int64(n)

	return nil
}

// ReadAt decodes the DataRecord at offset and verifies its checksum.
// It never mutates the append position. A hint that decoded cleanly
// but points at an offset past end-of-file — or into a record whose
// header claims more key/value bytes than the file actually holds —
// is exactly as much Corrupt as a bad checksum (spec.md §7), so both
// kinds of short read are reported as ErrCorrupt rather than the bare
// io.EOF os.File.ReadAt returns for them.
func (s *Segment) ReadAt(offset int64) (DataRecord, error) {
	var hdr [dataHeaderLen]byte
	if _, err := s.data.ReadAt(hdr[:], offset); err != nil {
		if errors.Is(err, io.EOF) {
			return DataRecord{}, fmt.Errorf("%w: segment %s offset %d past end of file", ErrCorrupt, s.id, offset)
		}
		return DataRecord{}, fmt.Errorf("read data header at %d in segment %s: %w", offset, s.id, err)
	}

	rec, keySize, valSize := decodeDataHeader(hdr)

	payload := make([]byte, int(keySize)+int(valSize))
	if _, err := s.data.ReadAt(payload, offset+dataHeaderLen); err != nil {
		if errors.Is(err, io.EOF) {
			return DataRecord{}, fmt.Errorf("%w: segment %s offset %d: record payload runs past end of file", ErrCorrupt, s.id, offset)
		}
		return DataRecord{}, fmt.Errorf("read data payload at %d in segment %s: %w", offset, s.id, err)
	}
	rec.Key = payload[:keySize]
	rec.Value = payload[keySize:]

	if !CheckDataCRC(rec) {
		return DataRecord{}, fmt.Errorf("%w: segment %s offset %d", ErrCorrupt, s.id, offset)
	}

	return rec, nil
}

// HintScanner streams HintRecords from a segment's .hint file in
// append order, stopping cleanly at EOF. A partially written trailing
// record is treated as end-of-stream, not an error.
type HintScanner struct {
	r      *bufio.Reader
	record HintRecord
	err    error
}

// ScanHints returns a scanner over the segment's hint file, or nil if
// the segment has no hint file (caller should fall back to ScanData).
func (s *Segment) ScanHints() *HintScanner {
	if s.hint == nil {
		return nil
	}
	sr := io.NewSectionReader(s.hint, 0, 1<<62)
	return &HintScanner{r: bufio.NewReader(sr)}
}

// Scan advances to the next hint record, returning false at a clean
// end-of-stream or a torn record; the two cases are not told apart
// (Err stays nil).
func (hs *HintScanner) Scan() bool {
	rec, err := DecodeHintRecord(hs.r)
	if err != nil {
		return false
	}
	hs.record = rec
	return true
}

// Record returns the most recently scanned HintRecord.
func (hs *HintScanner) Record() HintRecord { return hs.record }

// Err is always nil today: a torn trailing hint record is treated as
// end-of-stream rather than surfaced as an error (spec.md §4.2).
func (hs *HintScanner) Err() error { return hs.err }

// DataScanner streams DataRecords from a segment's .data file along
// with their offsets. It is used by the missing-hint recovery path in
// hint replay and by merge's fallback for a segment without a hint
// file; both enable the CRC check, so a corrupted tail ends the scan
// rather than being propagated.
type DataScanner struct {
	r       *bufio.Reader
	end     int64
	record  DataRecord
	offset  int64
	checkCRC bool
	err     error
}

// ScanData returns a scanner over the segment's data file.
func (s *Segment) ScanData(checkCRC bool) *DataScanner {
	sr := io.NewSectionReader(s.data, 0, 1<<62)
	return &DataScanner{r: bufio.NewReader(sr), checkCRC: checkCRC}
}

// Scan advances to the next data record. It stops (returning false)
// cleanly at EOF and also stops, without error, on the first torn or
// corrupt trailing record — such a record can only be the product of
// a crash mid-append, since a record that was ever fully flushed and
// acknowledged would have passed its CRC check when written.
func (ds *DataScanner) Scan() bool {
	off := ds.end
	rec, err := DecodeDataRecord(ds.r)
	if err != nil {
		return false
	}
	if ds.checkCRC && !CheckDataCRC(rec) {
		return false
	}
	ds.record = rec
	ds.offset = off
	ds.end = off + dataHeaderLen + int64(len(rec.Key)) + int64(len(rec.Value))
	return true
}

// Record returns the most recently scanned DataRecord.
func (ds *DataScanner) Record() DataRecord { return ds.record }

// Offset returns the offset the most recently scanned record began at.
func (ds *DataScanner) Offset() int64 { return ds.offset }

// End returns the offset immediately past the most recently scanned
// record; once Scan has returned false on a torn tail, that is where
// the torn bytes begin.
func (ds *DataScanner) End() int64 { return ds.end }

// Sync fsyncs both files in the pair.
func (s *Segment) Sync() error {
	if err := s.data.Sync(); err != nil {
		return fmt.Errorf("sync data file for segment %s: %w", s.id, err)
	}
	if s.hint != nil {
		if err := s.hint.Sync(); err != nil {
			return fmt.Errorf("sync hint file for segment %s: %w", s.id, err)
		}
	}
	return nil
}

// Close closes both file handles in the pair.
func (s *Segment) Close() error {
	var firstErr error
	if err := s.data.Close(); err != nil {
		firstErr = err
	}
	if s.hint != nil {
		if err := s.hint.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Remove deletes both files in the pair from disk. The caller must
// have already Closed the segment.
func (s *Segment) Remove() error {
	err1 := os.Remove(dataPath(s.dir, s.id))
	err2 := os.Remove(hintPath(s.dir, s.id))
	if err1 != nil {
		return err1
	}
	return err2
}

func decodeDataHeader(hdr [dataHeaderLen]byte) (rec DataRecord, keySize, valSize uint32) {
	rec.CRC = binary.BigEndian.Uint32(hdr[0:4])
	rec.Timestamp = binary.BigEndian.Uint64(hdr[4:12])
	keySize = binary.BigEndian.Uint32(hdr[12:16])
	valSize = binary.BigEndian.Uint32(hdr[16:20])
	return rec, keySize, valSize
}

// flockFd takes (exclusive=true) or releases (exclusive=false) an
// advisory OS-level lock on f's file descriptor, guarding a single
// append against another process that somehow opened the same file —
// a defense in depth the directory lock already makes practically
// unreachable within one host.
func flockFd(f *os.File, exclusive bool) error {
	op := unix.LOCK_UN
	if exclusive {
		op = unix.LOCK_EX
	}
	return unix.Flock(int(f.Fd()), op)
}
