package core

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeDataRecordRoundTrip(t *testing.T) {
	rec := DataRecord{Timestamp: 1234567890, Key: []byte("hello"), Value: []byte("world")}
	buf := EncodeDataRecord(rec)

	got, err := DecodeDataRecord(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("DecodeDataRecord: %v", err)
	}

	if !CheckDataCRC(got) {
		t.Fatal("decoded record failed CRC check")
	}
	if diff := cmp.Diff(rec.Key, got.Key); diff != "" {
		t.Errorf("key mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(rec.Value, got.Value); diff != "" {
		t.Errorf("value mismatch (-want +got):\n%s", diff)
	}
	if got.Timestamp != rec.Timestamp {
		t.Errorf("timestamp = %d, want %d", got.Timestamp, rec.Timestamp)
	}
}

func TestDataRecordCorruptPayloadFailsCRC(t *testing.T) {
	buf := EncodeDataRecord(DataRecord{Timestamp: 1, Key: []byte("k"), Value: []byte("v")})
	buf[len(buf)-1] ^= 0xFF // flip a bit in the value

	rec, err := DecodeDataRecord(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("DecodeDataRecord: %v", err)
	}
	if CheckDataCRC(rec) {
		t.Fatal("expected CRC mismatch after corrupting payload")
	}
}

func TestDecodeDataRecordCleanEOF(t *testing.T) {
	_, err := DecodeDataRecord(bytes.NewReader(nil))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestDecodeDataRecordTornHeaderIsDecodeFailure(t *testing.T) {
	buf := EncodeDataRecord(DataRecord{Timestamp: 1, Key: []byte("k"), Value: []byte("v")})
	torn := buf[:dataHeaderLen-1]

	_, err := DecodeDataRecord(bytes.NewReader(torn))
	if !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("got %v, want ErrDecodeFailure", err)
	}
}

func TestEncodeDecodeHintRecordRoundTrip(t *testing.T) {
	rec := HintRecord{Timestamp: 42, DataOffset: 1000, Key: []byte("abc")}
	buf := EncodeHintRecord(rec, 7)

	got, err := DecodeHintRecord(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("DecodeHintRecord: %v", err)
	}
	if got.Tombstone {
		t.Error("expected non-tombstone")
	}
	if got.DataOffset != rec.DataOffset {
		t.Errorf("DataOffset = %d, want %d", got.DataOffset, rec.DataOffset)
	}
	if got.ValueSize != 7 {
		t.Errorf("ValueSize = %d, want 7", got.ValueSize)
	}
	if !bytes.Equal(got.Key, rec.Key) {
		t.Errorf("Key = %q, want %q", got.Key, rec.Key)
	}
}

func TestEncodeHintRecordTombstoneWritesZeroValueSize(t *testing.T) {
	rec := HintRecord{Timestamp: 1, DataOffset: 999, Tombstone: true, Key: []byte("k")}
	buf := EncodeHintRecord(rec, 123)

	got, err := DecodeHintRecord(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("DecodeHintRecord: %v", err)
	}
	if !got.Tombstone {
		t.Fatal("expected tombstone flag to survive round trip")
	}
	if got.ValueSize != 0 {
		t.Errorf("ValueSize = %d, want 0 for a tombstone", got.ValueSize)
	}
}

func TestDecodeHintRecordTornTailIsEOF(t *testing.T) {
	buf := EncodeHintRecord(HintRecord{Timestamp: 1, Key: []byte("longkey")}, 3)
	torn := buf[:len(buf)-2]

	_, err := DecodeHintRecord(bytes.NewReader(torn))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want io.EOF", err)
	}
}
