// pebble.go implements Engine on top of cockroachdb/pebble.
//
// Pebble has no native column families. They are emulated with a 4-byte
// big-endian column family id prefixed to every engine key; iterator
// bounds, delete-range, and drop are expressed inside that prefix span.
// Column family ids are allocated sequentially by the store, so the
// 2^32-1 id is never reached and every family has a finite upper bound.
//
// TTL follows the lazy-expiry model: an 8-byte big-endian creation
// timestamp is appended to every stored value and entries older than the
// configured duration are filtered out of gets, multi-gets, and
// iteration. Pebble exposes no compaction filter, so expired entries are
// reclaimed only by overwrite or delete.

package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

const (
	cfPrefixLen  = 4
	ttlStampSize = 8
)

// Options configures the pebble engine.
type Options struct {
	// FS is the filesystem to open the store on. Nil means the OS
	// filesystem; tests use pebble's in-memory VFS.
	FS vfs.FS

	// ReadOnly opens the engine without write capability.
	ReadOnly bool

	// CacheSize is the block cache size in bytes. Zero keeps pebble's
	// default.
	CacheSize int64

	// TTL enables lazy expiry of entries older than this duration.
	// Zero disables TTL.
	TTL time.Duration

	// Split is the prefix-extractor hook, operating on user keys. The
	// engine accounts for its own column family prefix. Nil disables
	// prefix splitting.
	Split func(key []byte) int
}

// PebbleEngine implements Engine.
type PebbleEngine struct {
	mu       sync.RWMutex
	db       *pebble.DB
	closed   bool
	readOnly bool
	ttl      time.Duration
	now      func() time.Time // swapped in TTL tests
}

var _ Engine = (*PebbleEngine)(nil)

// Open opens or creates the engine at path.
func Open(path string, o Options) (*PebbleEngine, error) {
	popts := &pebble.Options{
		FS:       o.FS,
		ReadOnly: o.ReadOnly,
	}
	if o.CacheSize > 0 {
		c := pebble.NewCache(o.CacheSize)
		defer c.Unref()
		popts.Cache = c
	}
	if o.Split != nil {
		cmp := *pebble.DefaultComparer
		cmp.Split = func(key []byte) int {
			if len(key) < cfPrefixLen {
				return len(key)
			}
			return cfPrefixLen + o.Split(key[cfPrefixLen:])
		}
		popts.Comparer = &cmp
	}

	db, err := pebble.Open(path, popts)
	if err != nil {
		return nil, fmt.Errorf("engine: open %s: %w", path, err)
	}
	return &PebbleEngine{
		db:       db,
		readOnly: o.ReadOnly,
		ttl:      o.TTL,
		now:      time.Now,
	}, nil
}

// cfKey prepends the column family prefix to a user key.
func cfKey(cf uint32, key []byte) []byte {
	out := make([]byte, cfPrefixLen+len(key))
	binary.BigEndian.PutUint32(out, cf)
	copy(out[cfPrefixLen:], key)
	return out
}

// cfSpan returns the engine-key bounds of one column family.
func cfSpan(cf uint32) (lo, hi []byte) {
	lo = make([]byte, cfPrefixLen)
	binary.BigEndian.PutUint32(lo, cf)
	hi = make([]byte, cfPrefixLen)
	binary.BigEndian.PutUint32(hi, cf+1)
	return lo, hi
}

// iterBounds maps user-key bounds into engine-key bounds.
func iterBounds(cf uint32, o IterOptions) (lo, hi []byte) {
	lo, hi = cfSpan(cf)
	if o.Lower != nil {
		lo = cfKey(cf, o.Lower)
	}
	if o.Upper != nil {
		hi = cfKey(cf, o.Upper)
	}
	return lo, hi
}

func wo(sync bool) *pebble.WriteOptions {
	if sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (e *PebbleEngine) stamp(value []byte) []byte {
	if e.ttl == 0 {
		return value
	}
	out := make([]byte, len(value)+ttlStampSize)
	copy(out, value)
	binary.BigEndian.PutUint64(out[len(value):], uint64(e.now().Unix()))
	return out
}

// strip removes the TTL stamp and reports whether the entry is live.
// Values too short to carry a stamp are kept as-is.
func (e *PebbleEngine) strip(value []byte) ([]byte, bool) {
	if e.ttl == 0 {
		return value, true
	}
	if len(value) < ttlStampSize {
		return value, true
	}
	created := int64(binary.BigEndian.Uint64(value[len(value)-ttlStampSize:]))
	if e.now().Sub(time.Unix(created, 0)) > e.ttl {
		return nil, false
	}
	return value[:len(value)-ttlStampSize], true
}

// pebbleReader abstracts *pebble.DB and *pebble.Snapshot read surfaces.
type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

func (e *PebbleEngine) get(r pebbleReader, cf uint32, key []byte) ([]byte, error) {
	val, closer, err := r.Get(cfKey(cf, key))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("engine: get: %w", err)
	}
	defer closer.Close()
	live, ok := e.strip(val)
	if !ok {
		return nil, ErrNotFound
	}
	// A present empty value must stay distinguishable from absence, which
	// callers detect as a nil slice.
	if len(live) == 0 {
		return []byte{}, nil
	}
	return bytes.Clone(live), nil
}

func (e *PebbleEngine) multiGet(r pebbleReader, cf uint32, keys [][]byte) ([][]byte, []error) {
	if len(keys) == 0 {
		return nil, nil
	}
	values := make([][]byte, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		v, err := e.get(r, cf, key)
		switch err {
		case nil:
			values[i] = v
		case ErrNotFound:
			// absent keys are a normal result: nil value, nil error
		default:
			errs[i] = err
		}
	}
	return values, errs
}

func (e *PebbleEngine) newIter(r pebbleReader, cf uint32, o IterOptions) (Iterator, error) {
	lo, hi := iterBounds(cf, o)
	it, err := r.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, fmt.Errorf("engine: new iterator: %w", err)
	}
	return &pebbleIter{i: it, cf: cf, eng: e}, nil
}

// Get implements Engine.
func (e *PebbleEngine) Get(cf uint32, key []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.get(e.db, cf, key)
}

// MultiGet implements Engine. One slot per input key, in input order;
// absent keys yield a nil value and nil error.
func (e *PebbleEngine) MultiGet(cf uint32, keys [][]byte) ([][]byte, []error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		errs := make([]error, len(keys))
		for i := range errs {
			errs[i] = ErrClosed
		}
		return make([][]byte, len(keys)), errs
	}
	return e.multiGet(e.db, cf, keys)
}

// Put implements Engine.
func (e *PebbleEngine) Put(cf uint32, key, value []byte, sync bool) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case e.closed:
		return ErrClosed
	case e.readOnly:
		return ErrReadOnly
	}
	return e.db.Set(cfKey(cf, key), e.stamp(value), wo(sync))
}

// Delete implements Engine.
func (e *PebbleEngine) Delete(cf uint32, key []byte, sync bool) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case e.closed:
		return ErrClosed
	case e.readOnly:
		return ErrReadOnly
	}
	return e.db.Delete(cfKey(cf, key), wo(sync))
}

// DeleteRange implements Engine. The range is [start, end) in user keys;
// nil bounds mean the column family edges.
func (e *PebbleEngine) DeleteRange(cf uint32, start, end []byte, sync bool) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case e.closed:
		return ErrClosed
	case e.readOnly:
		return ErrReadOnly
	}
	lo, hi := iterBounds(cf, IterOptions{Lower: start, Upper: end})
	return e.db.DeleteRange(lo, hi, wo(sync))
}

// NewIterator implements Engine.
func (e *PebbleEngine) NewIterator(cf uint32, o IterOptions) (Iterator, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.newIter(e.db, cf, o)
}

// NewSnapshot implements Engine.
func (e *PebbleEngine) NewSnapshot() (Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	return &pebbleSnap{s: e.db.NewSnapshot(), eng: e}, nil
}

// NewBatch implements Engine.
func (e *PebbleEngine) NewBatch() Batch {
	return &pebbleBatch{b: e.db.NewBatch(), eng: e}
}

// Apply implements Engine. The batch becomes visible atomically.
func (e *PebbleEngine) Apply(b Batch, sync bool) error {
	pb, ok := b.(*pebbleBatch)
	if !ok {
		return fmt.Errorf("engine: foreign batch type %T", b)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case e.closed:
		return ErrClosed
	case e.readOnly:
		return ErrReadOnly
	}
	return e.db.Apply(pb.b, wo(sync))
}

// DropColumnFamily implements Engine.
func (e *PebbleEngine) DropColumnFamily(cf uint32, sync bool) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case e.closed:
		return ErrClosed
	case e.readOnly:
		return ErrReadOnly
	}
	lo, hi := cfSpan(cf)
	return e.db.DeleteRange(lo, hi, wo(sync))
}

// Flush implements Engine.
func (e *PebbleEngine) Flush(wait bool) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case e.closed:
		return ErrClosed
	case e.readOnly:
		return nil // nothing buffered
	}
	if !wait {
		_, err := e.db.AsyncFlush()
		return err
	}
	return e.db.Flush()
}

// CancelBackgroundWork implements Engine. Pebble quiesces its background
// goroutines inside Close; a waiting cancel settles the memtable first so
// Close has nothing left to schedule.
func (e *PebbleEngine) CancelBackgroundWork(wait bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed || e.readOnly {
		return
	}
	if wait {
		_ = e.db.Flush()
	}
}

// Compact implements Engine. Nil bounds mean the column family edges.
func (e *PebbleEngine) Compact(cf uint32, start, end []byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	lo, hi := iterBounds(cf, IterOptions{Lower: start, Upper: end})
	return e.db.Compact(lo, hi, true)
}

// Property implements Engine. Supported names:
//
//	dictkv.disk-usage        total disk space used, bytes
//	dictkv.num-files         live table file count
//	dictkv.memtable-size     current memtable size, bytes
//	dictkv.wal-size          live WAL size, bytes
//	dictkv.flush-count       flushes since open
//	dictkv.compaction-count  compactions since open
//	dictkv.metrics           full human-readable metrics dump
func (e *PebbleEngine) Property(name string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return "", ErrClosed
	}
	m := e.db.Metrics()
	switch name {
	case "dictkv.disk-usage":
		return fmt.Sprintf("%d", m.DiskSpaceUsage()), nil
	case "dictkv.num-files":
		var n int64
		for i := range m.Levels {
			n += m.Levels[i].NumFiles
		}
		return fmt.Sprintf("%d", n), nil
	case "dictkv.memtable-size":
		return fmt.Sprintf("%d", m.MemTable.Size), nil
	case "dictkv.wal-size":
		return fmt.Sprintf("%d", m.WAL.Size), nil
	case "dictkv.flush-count":
		return fmt.Sprintf("%d", m.Flush.Count), nil
	case "dictkv.compaction-count":
		return fmt.Sprintf("%d", m.Compact.Count), nil
	case "dictkv.metrics":
		return m.String(), nil
	default:
		return "", fmt.Errorf("%w: property %q", ErrNotSupported, name)
	}
}

// Tables implements Engine.
func (e *PebbleEngine) Tables() ([]TableInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	levels, err := e.db.SSTables()
	if err != nil {
		return nil, fmt.Errorf("engine: sstables: %w", err)
	}
	var out []TableInfo
	for level, tables := range levels {
		for _, t := range tables {
			info := TableInfo{
				Level:   level,
				FileNum: uint64(t.FileNum),
				Size:    t.Size,
			}
			if k := t.Smallest.UserKey; len(k) >= cfPrefixLen {
				info.CF = binary.BigEndian.Uint32(k)
				info.Smallest = bytes.Clone(k[cfPrefixLen:])
			}
			if k := t.Largest.UserKey; len(k) >= cfPrefixLen {
				info.Largest = bytes.Clone(k[cfPrefixLen:])
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// Close implements Engine.
func (e *PebbleEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.closed = true
	return e.db.Close()
}

// pebbleSnap implements Snapshot.
type pebbleSnap struct {
	s   *pebble.Snapshot
	eng *PebbleEngine
}

func (s *pebbleSnap) Get(cf uint32, key []byte) ([]byte, error) {
	s.eng.mu.RLock()
	defer s.eng.mu.RUnlock()
	if s.eng.closed {
		return nil, ErrClosed
	}
	return s.eng.get(s.s, cf, key)
}

func (s *pebbleSnap) MultiGet(cf uint32, keys [][]byte) ([][]byte, []error) {
	s.eng.mu.RLock()
	defer s.eng.mu.RUnlock()
	if s.eng.closed {
		errs := make([]error, len(keys))
		for i := range errs {
			errs[i] = ErrClosed
		}
		return make([][]byte, len(keys)), errs
	}
	return s.eng.multiGet(s.s, cf, keys)
}

func (s *pebbleSnap) NewIterator(cf uint32, o IterOptions) (Iterator, error) {
	s.eng.mu.RLock()
	defer s.eng.mu.RUnlock()
	if s.eng.closed {
		return nil, ErrClosed
	}
	return s.eng.newIter(s.s, cf, o)
}

func (s *pebbleSnap) Close() error {
	return s.s.Close()
}

// pebbleBatch implements Batch.
type pebbleBatch struct {
	b   *pebble.Batch
	eng *PebbleEngine
}

func (b *pebbleBatch) Put(cf uint32, key, value []byte) error {
	return b.b.Set(cfKey(cf, key), b.eng.stamp(value), nil)
}

func (b *pebbleBatch) Delete(cf uint32, key []byte) error {
	return b.b.Delete(cfKey(cf, key), nil)
}

func (b *pebbleBatch) DeleteRange(cf uint32, start, end []byte) error {
	return b.b.DeleteRange(cfKey(cf, start), cfKey(cf, end), nil)
}

func (b *pebbleBatch) Count() uint32 { return b.b.Count() }

func (b *pebbleBatch) Close() error { return b.b.Close() }

// pebbleIter implements Iterator over one column family span. Expired
// TTL entries are skipped in the direction of travel.
type pebbleIter struct {
	i   *pebble.Iterator
	cf  uint32
	eng *PebbleEngine
}

func (it *pebbleIter) expired() bool {
	_, live := it.eng.strip(it.i.Value())
	return !live
}

func (it *pebbleIter) skipForward(ok bool) bool {
	for ok && it.expired() {
		ok = it.i.Next()
	}
	return ok
}

func (it *pebbleIter) skipBackward(ok bool) bool {
	for ok && it.expired() {
		ok = it.i.Prev()
	}
	return ok
}

func (it *pebbleIter) First() bool { return it.skipForward(it.i.First()) }
func (it *pebbleIter) Last() bool  { return it.skipBackward(it.i.Last()) }

func (it *pebbleIter) SeekGE(key []byte) bool {
	return it.skipForward(it.i.SeekGE(cfKey(it.cf, key)))
}

func (it *pebbleIter) SeekLE(key []byte) bool {
	ek := cfKey(it.cf, key)
	if it.i.SeekGE(ek) && bytes.Equal(it.i.Key(), ek) && !it.expired() {
		return true
	}
	// Overshot the target, ran off the end, or hit an expired entry:
	// the answer is the largest live key strictly below the target.
	return it.skipBackward(it.i.SeekLT(ek))
}

func (it *pebbleIter) Next() bool { return it.skipForward(it.i.Next()) }
func (it *pebbleIter) Prev() bool { return it.skipBackward(it.i.Prev()) }

func (it *pebbleIter) Valid() bool { return it.i.Valid() }

func (it *pebbleIter) Key() []byte {
	k := it.i.Key()
	if len(k) < cfPrefixLen {
		return nil
	}
	return k[cfPrefixLen:]
}

func (it *pebbleIter) Value() []byte {
	v, _ := it.eng.strip(it.i.Value())
	return v
}

func (it *pebbleIter) Error() error { return it.i.Error() }

func (it *pebbleIter) Close() error { return it.i.Close() }
