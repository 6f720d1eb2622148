package core

import (
	"os"
	"testing"
)

// openTestDB opens a fresh DB rooted at a fresh t.TempDir(), closing it
// automatically on test cleanup.
func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	ds, err := Open(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := ds.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return ds
}

// corruptByteAt flips a single bit of path at offset, simulating bitrot
// in an otherwise structurally intact on-disk record.
func corruptByteAt(path string, offset int64) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	var b [1]byte
	if _, err := f.ReadAt(b[:], offset); err != nil {
		return err
	}
	b[0] ^= 0xFF
	_, err = f.WriteAt(b[:], offset)
	return err
}
