package dictkv

// holder.go implements reference-counted ownership of the native engine.
//
// Every handle in the graph (Dict, ColumnFamily, Iter, Snapshot) owns one
// engineHolder, and all holders for one store share a single engineShared.
// A holder's close is idempotent and drops exactly one reference; when the
// count reaches zero the engine's background work is cancelled and the
// engine is released, exactly once. After a holder closes, its get returns
// ErrClosed instead of the engine.

import (
	"sync"

	"github.com/aalhour/dictkv/internal/engine"
)

// engineShared is the single owner of the native engine resource.
type engineShared struct {
	mu   sync.Mutex
	eng  engine.Engine
	refs int
	down bool
}

// release drops one reference. The final drop cancels background work
// and closes the engine.
func (s *engineShared) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.refs > 0 || s.down {
		return nil
	}
	s.down = true
	s.eng.CancelBackgroundWork(true)
	return s.eng.Close()
}

// engineHolder is one countable handle on the shared engine.
type engineHolder struct {
	mu     sync.Mutex
	shared *engineShared
	closed bool
}

// newEngineHolder wraps a freshly opened engine with a single reference.
func newEngineHolder(eng engine.Engine) *engineHolder {
	return &engineHolder{shared: &engineShared{eng: eng, refs: 1}}
}

// clone returns a new holder owning one additional reference.
// Fails with ErrClosed if this holder has already been closed.
func (h *engineHolder) clone() (*engineHolder, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	s := h.shared
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
	return &engineHolder{shared: s}, nil
}

// get returns the engine if this holder is still live. A concurrent
// final close from another holder is caught by the engine's own liveness
// check, so the returned engine is never dereferenced after free.
func (h *engineHolder) get() (engine.Engine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	return h.shared.eng, nil
}

// close drops this holder's reference. Idempotent: only the first call
// has any effect. Returns the engine teardown error when this was the
// last reference.
func (h *engineHolder) close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	return h.shared.release()
}
