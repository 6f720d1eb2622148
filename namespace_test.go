package notus

import "testing"

func TestNamespaceIsolatesKeys(t *testing.T) {
	db := openTestDB(t)

	users := db.Namespace("users")
	orders := db.Namespace("orders")

	if err := users.Put([]byte("1"), []byte("alice")); err != nil {
		t.Fatalf("users.Put: %v", err)
	}
	if err := orders.Put([]byte("1"), []byte("order-1")); err != nil {
		t.Fatalf("orders.Put: %v", err)
	}

	got, err := users.Get([]byte("1"))
	if err != nil {
		t.Fatalf("users.Get: %v", err)
	}
	if string(got) != "alice" {
		t.Fatalf("users.Get = %q, want %q", got, "alice")
	}

	got, err = orders.Get([]byte("1"))
	if err != nil {
		t.Fatalf("orders.Get: %v", err)
	}
	if string(got) != "order-1" {
		t.Fatalf("orders.Get = %q, want %q", got, "order-1")
	}
}

func TestNamespaceKeysStripsPrefix(t *testing.T) {
	db := openTestDB(t)
	users := db.Namespace("users")

	_ = users.Put([]byte("1"), []byte("a"))
	_ = users.Put([]byte("2"), []byte("b"))

	keys := users.Keys()
	if len(keys) != 2 {
		t.Fatalf("Keys() returned %d entries, want 2", len(keys))
	}
	seen := map[string]bool{}
	for _, k := range keys {
		seen[string(k)] = true
	}
	if !seen["1"] || !seen["2"] {
		t.Fatalf("Keys() = %v, want [1 2]", keys)
	}
}

func TestNamespaceOversizedTagPanics(t *testing.T) {
	db := openTestDB(t)

	defer func() {
		if recover() == nil {
			t.Fatal("expected Namespace to panic on a tag longer than 65535 bytes")
		}
	}()

	oversized := make([]byte, 0x10000)
	db.Namespace(string(oversized))
}

func TestNamespaceDeleteDoesNotAffectOtherNamespace(t *testing.T) {
	db := openTestDB(t)
	users := db.Namespace("users")
	orders := db.Namespace("orders")

	_ = users.Put([]byte("1"), []byte("a"))
	_ = orders.Put([]byte("1"), []byte("b"))

	if err := users.Delete([]byte("1")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if users.Contains([]byte("1")) {
		t.Fatal("expected users:1 to be gone")
	}
	if !orders.Contains([]byte("1")) {
		t.Fatal("expected orders:1 to survive users.Delete")
	}
}
