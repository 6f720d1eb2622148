package core

import (
	"errors"
	"testing"
)

func TestAcquireDirLockRejectsSecondHolder(t *testing.T) {
	dir := t.TempDir()

	l1, err := acquireDirLock(dir)
	if err != nil {
		t.Fatalf("first acquireDirLock: %v", err)
	}
	defer l1.release()

	_, err = acquireDirLock(dir)
	if !errors.Is(err, ErrLockFailed) {
		t.Fatalf("got %v, want ErrLockFailed", err)
	}
}

func TestAcquireDirLockSucceedsAfterRelease(t *testing.T) {
	dir := t.TempDir()

	l1, err := acquireDirLock(dir)
	if err != nil {
		t.Fatalf("first acquireDirLock: %v", err)
	}
	if err := l1.release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	l2, err := acquireDirLock(dir)
	if err != nil {
		t.Fatalf("second acquireDirLock after release: %v", err)
	}
	defer l2.release()
}
