package dictkv

import (
	"errors"
	"testing"
)

func TestWriteBatchAtomicApply(t *testing.T) {
	db, _ := openTestStore(t, nil)

	if err := db.Put("k2", "old"); err != nil {
		t.Fatal(err)
	}

	wb := db.NewWriteBatch()
	if err := wb.Put("k1", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := wb.Delete("k2"); err != nil {
		t.Fatal(err)
	}
	if err := wb.Put("k1", "v2"); err != nil {
		t.Fatal(err)
	}
	if wb.Count() != 3 {
		t.Fatalf("Count = %d, want 3", wb.Count())
	}

	// Nothing is visible before Write.
	if _, err := db.Get("k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("k1 visible before apply: %v", err)
	}

	if err := db.Write(wb, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := db.Get("k1")
	if err != nil || got != "v2" {
		t.Errorf("k1 = %v, %v, want v2", got, err)
	}
	if _, err := db.Get("k2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("k2 err = %v, want ErrNotFound", err)
	}
}

func TestWriteBatchDeleteRange(t *testing.T) {
	db, _ := openTestStore(t, nil)
	fillSquares(t, db, 10)

	wb := db.NewWriteBatch()
	if err := wb.DeleteRange(int64(2), int64(8)); err != nil {
		t.Fatal(err)
	}
	if err := wb.Put(int64(5), int64(500)); err != nil {
		t.Fatal(err)
	}
	if err := db.Write(wb, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for i := 0; i < 10; i++ {
		got, err := db.Get(int64(i))
		switch {
		case i == 5:
			if err != nil || got != int64(500) {
				t.Errorf("key 5 = %v, %v, want 500", got, err)
			}
		case i >= 2 && i < 8:
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("key %d err = %v, want ErrNotFound", i, err)
			}
		default:
			if err != nil || got != int64(i*i) {
				t.Errorf("key %d = %v, %v", i, got, err)
			}
		}
	}
}

func TestWriteBatchColumnFamilies(t *testing.T) {
	db, _ := openTestStore(t, nil)

	aux, err := db.CreateColumnFamily("aux", ColumnFamilyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer aux.Close()

	wb := db.NewWriteBatch()
	if err := wb.Put("k", "default"); err != nil {
		t.Fatal(err)
	}
	if err := wb.PutCF(aux.ColumnFamily(), "k", "aux"); err != nil {
		t.Fatal(err)
	}
	if err := db.Write(wb, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if got, err := db.Get("k"); err != nil || got != "default" {
		t.Errorf("default cf k = %v, %v", got, err)
	}
	if got, err := aux.Get("k"); err != nil || got != "aux" {
		t.Errorf("aux cf k = %v, %v", got, err)
	}
}

func TestWriteBatchEncodeFailsFast(t *testing.T) {
	db, _ := openTestStore(t, nil)

	wb := db.NewWriteBatch()
	if err := wb.Put(make(chan int), "v"); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("bad key err = %v, want ErrUnsupportedType", err)
	}
	// The failed insertion left no trace; the batch stays usable.
	if wb.Count() != 0 {
		t.Fatalf("Count after failed insert = %d", wb.Count())
	}
	if err := wb.Put("ok", "v"); err != nil {
		t.Fatal(err)
	}
	if err := db.Write(wb, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got, err := db.Get("ok"); err != nil || got != "v" {
		t.Errorf("ok = %v, %v", got, err)
	}
}

func TestWriteBatchClearAndReuse(t *testing.T) {
	db, _ := openTestStore(t, nil)

	wb := db.NewWriteBatch()
	if err := wb.Put("a", int64(1)); err != nil {
		t.Fatal(err)
	}
	if err := db.Write(wb, nil); err != nil {
		t.Fatal(err)
	}

	wb.Clear()
	if wb.Count() != 0 {
		t.Fatalf("Count after Clear = %d", wb.Count())
	}
	if err := wb.Put("b", int64(2)); err != nil {
		t.Fatal(err)
	}
	if err := db.Write(wb, &WriteOptions{Sync: true}); err != nil {
		t.Fatal(err)
	}

	if got, err := db.Get("a"); err != nil || got != int64(1) {
		t.Errorf("a = %v, %v", got, err)
	}
	if got, err := db.Get("b"); err != nil || got != int64(2) {
		t.Errorf("b = %v, %v", got, err)
	}
}

func TestWriteBatchOnClosedDict(t *testing.T) {
	db, _ := openTestStore(t, nil)

	wb := db.NewWriteBatch()
	if err := wb.Put("k", "v"); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	if err := db.Write(wb, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write after close err = %v, want ErrClosed", err)
	}
}
