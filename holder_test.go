package dictkv

import (
	"errors"
	"sync"
	"testing"

	"github.com/aalhour/dictkv/internal/engine"
)

// fakeEngine counts lifecycle calls so teardown-exactly-once is
// verifiable without a real engine.
type fakeEngine struct {
	mu        sync.Mutex
	cancelled int
	closed    int
}

func (f *fakeEngine) Get(cf uint32, key []byte) ([]byte, error) { return nil, engine.ErrNotFound }
func (f *fakeEngine) MultiGet(cf uint32, keys [][]byte) ([][]byte, []error) {
	return make([][]byte, len(keys)), make([]error, len(keys))
}
func (f *fakeEngine) Put(cf uint32, key, value []byte, sync bool) error      { return nil }
func (f *fakeEngine) Delete(cf uint32, key []byte, sync bool) error          { return nil }
func (f *fakeEngine) DeleteRange(cf uint32, start, end []byte, s bool) error { return nil }
func (f *fakeEngine) NewIterator(cf uint32, o engine.IterOptions) (engine.Iterator, error) {
	return nil, engine.ErrNotSupported
}
func (f *fakeEngine) NewSnapshot() (engine.Snapshot, error) { return nil, engine.ErrNotSupported }
func (f *fakeEngine) NewBatch() engine.Batch                { return nil }
func (f *fakeEngine) Apply(b engine.Batch, sync bool) error { return nil }
func (f *fakeEngine) DropColumnFamily(cf uint32, sync bool) error {
	return nil
}
func (f *fakeEngine) Flush(wait bool) error { return nil }
func (f *fakeEngine) CancelBackgroundWork(wait bool) {
	f.mu.Lock()
	f.cancelled++
	f.mu.Unlock()
}
func (f *fakeEngine) Compact(cf uint32, start, end []byte) error { return nil }
func (f *fakeEngine) Property(name string) (string, error)       { return "", nil }
func (f *fakeEngine) Tables() ([]engine.TableInfo, error)        { return nil, nil }
func (f *fakeEngine) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled, f.closed
}

func TestHolderTeardownExactlyOnce(t *testing.T) {
	fe := &fakeEngine{}
	h := newEngineHolder(fe)

	clones := make([]*engineHolder, 5)
	for i := range clones {
		c, err := h.clone()
		if err != nil {
			t.Fatalf("clone %d: %v", i, err)
		}
		clones[i] = c
	}

	if err := h.close(); err != nil {
		t.Fatalf("close root holder: %v", err)
	}
	if cancelled, closed := fe.counts(); cancelled != 0 || closed != 0 {
		t.Fatalf("engine torn down while %d clones remain: cancelled=%d closed=%d",
			len(clones), cancelled, closed)
	}

	for _, c := range clones {
		if err := c.close(); err != nil {
			t.Fatalf("close clone: %v", err)
		}
	}
	cancelled, closed := fe.counts()
	if cancelled != 1 || closed != 1 {
		t.Fatalf("teardown count: cancelled=%d closed=%d, want 1/1", cancelled, closed)
	}
}

func TestHolderCloseIdempotent(t *testing.T) {
	fe := &fakeEngine{}
	h := newEngineHolder(fe)

	for i := 0; i < 3; i++ {
		if err := h.close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
	if cancelled, closed := fe.counts(); cancelled != 1 || closed != 1 {
		t.Fatalf("repeated close tore down more than once: cancelled=%d closed=%d", cancelled, closed)
	}
}

func TestHolderGetAfterClose(t *testing.T) {
	fe := &fakeEngine{}
	h := newEngineHolder(fe)

	c, err := h.clone()
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if err := h.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := h.get(); !errors.Is(err, ErrClosed) {
		t.Errorf("get on closed holder: err = %v, want ErrClosed", err)
	}
	// The sibling clone is unaffected.
	if _, err := c.get(); err != nil {
		t.Errorf("get on live clone: %v", err)
	}
	if _, err := h.clone(); !errors.Is(err, ErrClosed) {
		t.Errorf("clone of closed holder: err = %v, want ErrClosed", err)
	}
	c.close()
}

func TestHolderConcurrentRelease(t *testing.T) {
	fe := &fakeEngine{}
	h := newEngineHolder(fe)

	const n = 32
	clones := make([]*engineHolder, n)
	for i := range clones {
		c, err := h.clone()
		if err != nil {
			t.Fatalf("clone: %v", err)
		}
		clones[i] = c
	}

	var wg sync.WaitGroup
	for _, c := range clones {
		wg.Add(1)
		go func(c *engineHolder) {
			defer wg.Done()
			c.close()
		}(c)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.close()
	}()
	wg.Wait()

	if cancelled, closed := fe.counts(); cancelled != 1 || closed != 1 {
		t.Fatalf("concurrent release: cancelled=%d closed=%d, want 1/1", cancelled, closed)
	}
}
