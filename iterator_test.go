package dictkv

import (
	"errors"
	"sort"
	"testing"
)

// fillSquares stores i -> i*i for i in [0, n).
func fillSquares(t *testing.T, db *Dict, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := db.Put(int64(i), int64(i*i)); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
}

func TestCursorForwardBackwardScan(t *testing.T) {
	db, _ := openTestStore(t, nil)
	fillSquares(t, db, 50)

	it, err := db.Iter(nil)
	if err != nil {
		t.Fatalf("Iter: %v", err)
	}
	defer it.Close()

	var got [][2]int64
	for it.SeekToFirst(); it.Valid(); it.Next() {
		got = append(got, [2]int64{it.Key().(int64), it.Value().(int64)})
	}
	if err := it.Status(); err != nil {
		t.Fatalf("forward scan status: %v", err)
	}
	if len(got) != 50 {
		t.Fatalf("forward scan yielded %d entries", len(got))
	}
	for i, kv := range got {
		if kv[0] != int64(i) || kv[1] != int64(i*i) {
			t.Fatalf("entry %d = (%d, %d), want (%d, %d)", i, kv[0], kv[1], i, i*i)
		}
	}

	// Backward from the last key yields the exact reverse.
	var back [][2]int64
	for it.SeekToLast(); it.Valid(); it.Prev() {
		back = append(back, [2]int64{it.Key().(int64), it.Value().(int64)})
	}
	if len(back) != 50 {
		t.Fatalf("backward scan yielded %d entries", len(back))
	}
	for i, kv := range back {
		want := int64(49 - i)
		if kv[0] != want || kv[1] != want*want {
			t.Fatalf("backward entry %d = (%d, %d), want (%d, %d)", i, kv[0], kv[1], want, want*want)
		}
	}
}

func TestCursorSeekMatchesReference(t *testing.T) {
	db, _ := openTestStore(t, nil)

	// Sparse, unordered inserts; the reference is a sorted slice.
	keys := []int64{-500, -3, 0, 7, 7 + 1<<20, 42, 99, 12345}
	for _, k := range keys {
		if err := db.Put(k, k); err != nil {
			t.Fatal(err)
		}
	}
	ref := append([]int64(nil), keys...)
	sort.Slice(ref, func(i, j int) bool { return ref[i] < ref[j] })

	it, err := db.Iter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	// Seek to a mid key and advance: keys must be strictly increasing
	// and match the reference tail.
	it.Seek(int64(5))
	i := sort.Search(len(ref), func(i int) bool { return ref[i] >= 5 })
	for ; it.Valid(); it.Next() {
		if i >= len(ref) {
			t.Fatalf("cursor yielded more keys than reference")
		}
		if got := it.Key().(int64); got != ref[i] {
			t.Fatalf("seek walk: got %d, want %d", got, ref[i])
		}
		i++
	}
	if i != len(ref) {
		t.Fatalf("cursor stopped early at reference index %d", i)
	}

	// SeekForPrev on a missing key lands on the nearest smaller key.
	it.SeekForPrev(int64(50))
	if !it.Valid() || it.Key().(int64) != 42 {
		t.Fatalf("SeekForPrev(50) landed on %v", it.Key())
	}
	// Exact hit.
	it.SeekForPrev(int64(7))
	if !it.Valid() || it.Key().(int64) != 7 {
		t.Fatalf("SeekForPrev(7) landed on %v", it.Key())
	}
	// Before the smallest key: exhausted.
	it.SeekForPrev(int64(-501))
	if it.Valid() {
		t.Fatalf("SeekForPrev below range is positioned at %v", it.Key())
	}
	if err := it.Status(); err != nil {
		t.Fatalf("status after exhausted seek: %v", err)
	}
}

func TestCursorStateMachine(t *testing.T) {
	db, _ := openTestStore(t, nil)
	fillSquares(t, db, 3)

	it, err := db.Iter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	// Unpositioned: reads return nil, not stale data.
	if it.Valid() {
		t.Fatal("fresh cursor is valid")
	}
	if it.Key() != nil || it.Value() != nil {
		t.Fatal("unpositioned cursor returned data")
	}

	// Walk off the end: Exhausted, no error, reads nil.
	it.SeekToFirst()
	for it.Valid() {
		it.Next()
	}
	if it.Key() != nil || it.Value() != nil {
		t.Fatal("exhausted cursor returned data")
	}
	if err := it.Status(); err != nil {
		t.Fatalf("exhausted cursor status: %v", err)
	}

	// A failed seek moves to Errored; Status reports it.
	it.Seek(make(chan int))
	if it.Valid() {
		t.Fatal("cursor valid after failed seek")
	}
	if err := it.Status(); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("status after failed seek = %v, want ErrUnsupportedType", err)
	}
	// Advancing discards the error status.
	it.Next()
	if err := it.Status(); err != nil {
		t.Fatalf("status after advance = %v, want nil", err)
	}
	// A fresh seek recovers.
	it.SeekToFirst()
	if !it.Valid() || it.Key().(int64) != 0 {
		t.Fatalf("cursor did not recover after error, key = %v", it.Key())
	}
}

func TestCursorAfterClose(t *testing.T) {
	db, _ := openTestStore(t, nil)
	fillSquares(t, db, 3)

	it, err := db.Iter(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	it.SeekToFirst()
	if it.Valid() {
		t.Fatal("closed cursor became valid")
	}
	if err := it.Status(); !errors.Is(err, ErrClosed) {
		t.Fatalf("status after seek on closed cursor = %v, want ErrClosed", err)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestCursorBounds(t *testing.T) {
	db, _ := openTestStore(t, nil)
	fillSquares(t, db, 20)

	it, err := db.Iter(&ReadOptions{LowerBound: int64(5), UpperBound: int64(10)})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	var got []int64
	for it.SeekToFirst(); it.Valid(); it.Next() {
		got = append(got, it.Key().(int64))
	}
	want := []int64{5, 6, 7, 8, 9}
	if len(got) != len(want) {
		t.Fatalf("bounded scan = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bounded scan = %v, want %v", got, want)
		}
	}
}

func TestItemsScan(t *testing.T) {
	db, _ := openTestStore(t, nil)
	fillSquares(t, db, 10)

	items, err := db.Items(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer items.Close()

	i := 0
	for items.Next() {
		if items.Key().(int64) != int64(i) || items.Value().(int64) != int64(i*i) {
			t.Fatalf("item %d = (%v, %v)", i, items.Key(), items.Value())
		}
		i++
	}
	if err := items.Err(); err != nil {
		t.Fatalf("items err: %v", err)
	}
	if i != 10 {
		t.Fatalf("items yielded %d entries", i)
	}
}

func TestItemsReverseFrom(t *testing.T) {
	db, _ := openTestStore(t, nil)
	fillSquares(t, db, 10)

	items, err := db.Items(&ScanOptions{Reverse: true, From: int64(5)})
	if err != nil {
		t.Fatal(err)
	}
	defer items.Close()

	want := int64(5)
	for items.Next() {
		if items.Key().(int64) != want {
			t.Fatalf("reverse item = %v, want %d", items.Key(), want)
		}
		want--
	}
	if want != -1 {
		t.Fatalf("reverse scan stopped at %d", want+1)
	}
}

func TestKeysAndValuesScans(t *testing.T) {
	db, _ := openTestStore(t, nil)
	fillSquares(t, db, 5)

	keys, err := db.Keys(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer keys.Close()
	var ks []int64
	for keys.Next() {
		ks = append(ks, keys.Key().(int64))
	}
	if len(ks) != 5 || ks[0] != 0 || ks[4] != 4 {
		t.Errorf("keys scan = %v", ks)
	}

	vals, err := db.Values(&ScanOptions{LowerBound: int64(2)})
	if err != nil {
		t.Fatal(err)
	}
	defer vals.Close()
	var vs []int64
	for vals.Next() {
		vs = append(vs, vals.Value().(int64))
	}
	if len(vs) != 3 || vs[0] != 4 || vs[2] != 16 {
		t.Errorf("values scan = %v", vs)
	}
}

func TestMixedTypeKeyOrdering(t *testing.T) {
	db, _ := openTestStore(t, nil)

	// Different tags never collide; relative order is by tag byte:
	// bytes < text < integer < bool.
	if err := db.Put([]byte("b"), "tag1"); err != nil {
		t.Fatal(err)
	}
	if err := db.Put("t", "tag2"); err != nil {
		t.Fatal(err)
	}
	if err := db.Put(int64(1), "tag3"); err != nil {
		t.Fatal(err)
	}
	if err := db.Put(true, "tag5"); err != nil {
		t.Fatal(err)
	}

	it, err := db.Iter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	var order []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		order = append(order, it.Value().(string))
	}
	want := []string{"tag1", "tag2", "tag3", "tag5"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("tag order = %v, want %v", order, want)
		}
	}
}
