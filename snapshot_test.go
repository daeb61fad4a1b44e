package dictkv

import (
	"errors"
	"testing"
)

func TestSnapshotPinsView(t *testing.T) {
	db, _ := openTestStore(t, nil)

	if err := db.Put("k", "before"); err != nil {
		t.Fatal(err)
	}
	snap, err := db.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer snap.Close()

	if err := db.Put("k", "after"); err != nil {
		t.Fatal(err)
	}
	if err := db.Put("new", "entry"); err != nil {
		t.Fatal(err)
	}

	got, err := snap.Get("k")
	if err != nil || got != "before" {
		t.Errorf("snapshot k = %v, %v, want before", got, err)
	}
	if _, err := snap.Get("new"); !errors.Is(err, ErrNotFound) {
		t.Errorf("snapshot sees key written after creation: %v", err)
	}
	// The live head sees both writes.
	if got, err := db.Get("k"); err != nil || got != "after" {
		t.Errorf("live k = %v, %v", got, err)
	}
}

func TestSnapshotMultiGetAndContains(t *testing.T) {
	db, _ := openTestStore(t, nil)

	if err := db.Put("a", int64(1)); err != nil {
		t.Fatal(err)
	}
	snap, err := db.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	defer snap.Close()
	if err := db.Put("b", int64(2)); err != nil {
		t.Fatal(err)
	}

	vals, errs := snap.MultiGet([]any{"a", "b"})
	if errs[0] != nil || errs[1] != nil {
		t.Fatalf("snapshot multiget errs = %v", errs)
	}
	if vals[0] != int64(1) || vals[1] != nil {
		t.Errorf("snapshot multiget = %v, want [1 <nil>]", vals)
	}

	ok, err := snap.Contains("b")
	if err != nil || ok {
		t.Errorf("snapshot Contains(b) = %t, %v, want false", ok, err)
	}
}

func TestSnapshotIteration(t *testing.T) {
	db, _ := openTestStore(t, nil)
	fillSquares(t, db, 10)

	snap, err := db.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	defer snap.Close()

	// Mutate after the snapshot; the scan must not see it.
	if err := db.Delete(int64(5)); err != nil {
		t.Fatal(err)
	}
	if err := db.Put(int64(100), int64(0)); err != nil {
		t.Fatal(err)
	}

	items, err := snap.Items(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer items.Close()

	i := 0
	for items.Next() {
		if items.Key().(int64) != int64(i) {
			t.Fatalf("snapshot item %d = %v", i, items.Key())
		}
		i++
	}
	if err := items.Err(); err != nil {
		t.Fatal(err)
	}
	if i != 10 {
		t.Fatalf("snapshot scan yielded %d entries, want 10", i)
	}
}

func TestSnapshotClose(t *testing.T) {
	db, _ := openTestStore(t, nil)
	if err := db.Put("k", "v"); err != nil {
		t.Fatal(err)
	}

	snap, err := db.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if err := snap.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := snap.Get("k"); !errors.Is(err, ErrClosed) {
		t.Errorf("get on closed snapshot err = %v, want ErrClosed", err)
	}
	if _, err := snap.Iter(nil); !errors.Is(err, ErrClosed) {
		t.Errorf("iter on closed snapshot err = %v, want ErrClosed", err)
	}
	// Idempotent.
	if err := snap.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
