// Package cache implements an in-memory row cache for encoded values.
//
// The cache sits above the native engine: hits skip the engine read
// entirely. Entries are keyed by a 128-bit hash of (generation, column
// family, encoded key). The generation counter is bumped on every write,
// which invalidates all prior entries at once; stale entries age out of
// the LRU instead of being deleted eagerly.
//
// Inserts carry the generation the caller observed before reading the
// engine. A value read under generation g is only reachable under g, so
// an insert that races a concurrent write lands under the superseded
// generation and can never be served after the write.
package cache

import (
	"encoding/binary"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
)

// Rows caches encoded values read from the engine. Safe for concurrent
// use.
type Rows struct {
	lru *lru.Cache[xxh3.Uint128, []byte]
	gen atomic.Uint64
}

// NewRows creates a row cache holding up to capacity entries. Returns
// nil if capacity is not positive; a nil *Rows is a valid no-op cache.
func NewRows(capacity int) *Rows {
	if capacity <= 0 {
		return nil
	}
	c, err := lru.New[xxh3.Uint128, []byte](capacity)
	if err != nil {
		// lru.New only fails on non-positive size, guarded above.
		return nil
	}
	return &Rows{lru: c}
}

func hash(gen uint64, cf uint32, key []byte) xxh3.Uint128 {
	buf := make([]byte, 12+len(key))
	binary.BigEndian.PutUint64(buf[0:8], gen)
	binary.BigEndian.PutUint32(buf[8:12], cf)
	copy(buf[12:], key)
	return xxh3.Hash128(buf)
}

// Generation returns the current write generation. Callers capture it
// before reading the engine and hand it back to Put or PutAbsent.
func (r *Rows) Generation() uint64 {
	if r == nil {
		return 0
	}
	return r.gen.Load()
}

// Get returns the cached value for key in cf, or (nil, false).
func (r *Rows) Get(cf uint32, key []byte) ([]byte, bool) {
	if r == nil {
		return nil, false
	}
	return r.lru.Get(hash(r.gen.Load(), cf, key))
}

// Put stores a copy of value for key in cf under gen, the generation
// observed before the engine read. If a write has bumped the generation
// since, the insert is dropped: the value may predate that write.
func (r *Rows) Put(gen uint64, cf uint32, key, value []byte) {
	if r == nil || gen != r.gen.Load() {
		return
	}
	v := make([]byte, len(value))
	copy(v, value)
	r.lru.Add(hash(gen, cf, key), v)
}

// PutAbsent records under gen that key does not exist in cf. Absence is
// cached as a nil value; callers distinguish it from a present empty
// value by the returned slice being nil. Dropped like Put when gen is
// stale.
func (r *Rows) PutAbsent(gen uint64, cf uint32, key []byte) {
	if r == nil || gen != r.gen.Load() {
		return
	}
	r.lru.Add(hash(gen, cf, key), nil)
}

// Invalidate bumps the write generation, making every cached entry
// unreachable. Called after any mutation of the store.
func (r *Rows) Invalidate() {
	if r == nil {
		return
	}
	r.gen.Add(1)
}

// Len returns the number of resident entries, including unreachable
// ones from earlier generations.
func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return r.lru.Len()
}
