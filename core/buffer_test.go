package core

import "testing"

func TestBufferPutGetDelete(t *testing.T) {
	b := NewBuffer()
	b.Put([]byte("k"), []byte("v1"))

	v, ok := b.Get([]byte("k"))
	if !ok || string(v) != "v1" {
		t.Fatalf("Get = %q, %v; want v1, true", v, ok)
	}

	b.Delete([]byte("k"))
	if _, ok := b.Get([]byte("k")); ok {
		t.Fatal("expected key to be gone after Delete")
	}
}

func TestBufferPutCopiesValue(t *testing.T) {
	b := NewBuffer()
	value := []byte("original")
	b.Put([]byte("k"), value)
	value[0] = 'X'

	got, _ := b.Get([]byte("k"))
	if string(got) != "original" {
		t.Fatalf("buffered value was mutated via caller's slice: got %q", got)
	}
}

func TestBufferDrainToPersistsAndClears(t *testing.T) {
	dir := t.TempDir()
	seg, err := createSegment(dir, FileID(1))
	if err != nil {
		t.Fatalf("createSegment: %v", err)
	}
	defer seg.Close()

	kd := NewKeydir()
	b := NewBuffer()
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))
	kd.InsertInBuffer([]byte("a"))
	kd.InsertInBuffer([]byte("b"))

	clock := uint64(100)
	if err := b.DrainTo(seg, kd, func() uint64 { return clock }); err != nil {
		t.Fatalf("DrainTo: %v", err)
	}

	if b.Len() != 0 {
		t.Fatalf("buffer should be empty after drain, got %d entries", b.Len())
	}

	for _, k := range []string{"a", "b"} {
		state, ok := kd.Get([]byte(k))
		if !ok || state.InBuffer {
			t.Fatalf("key %q should be Persisted after drain, got %+v ok=%v", k, state, ok)
		}
		rec, err := seg.ReadAt(state.Offset)
		if err != nil {
			t.Fatalf("ReadAt for %q: %v", k, err)
		}
		if string(rec.Key) != k {
			t.Errorf("record key = %q, want %q", rec.Key, k)
		}
	}
}
