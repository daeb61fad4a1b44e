package dictkv

// iterator.go implements the cursor over one column family's ordered
// key space.
//
// An Iter is an explicit state machine: Unpositioned until the first
// seek, Positioned while on an entry, Exhausted past either end, Errored
// after an engine or codec failure. Reads while not Positioned return
// nil, never stale data. Every operation is serialized behind the
// cursor's mutex, so concurrent calls cannot interleave a seek with a
// read of a stale position. The cursor owns its engine iterator and one
// holder reference; Close releases the iterator before the reference.

import (
	"sync"

	"github.com/aalhour/dictkv/internal/codec"
	"github.com/aalhour/dictkv/internal/compression"
	"github.com/aalhour/dictkv/internal/engine"
)

type iterState int

const (
	stateUnpositioned iterState = iota
	statePositioned
	stateExhausted
	stateErrored
)

// Iter is a bidirectional cursor. It must be seeked before first use.
// Not safe for sharing across goroutines; its own operations are
// serialized.
type Iter struct {
	mu     sync.Mutex
	inner  engine.Iterator
	holder *engineHolder
	cod    *codec.Codec
	raw    bool
	state  iterState
	err    error
	closed bool
}

// Iter creates a cursor over this Dict's column family. A nil ro means
// unbounded. The cursor starts unpositioned.
func (d *Dict) Iter(ro *ReadOptions) (*Iter, error) {
	eng, err := d.holder.get()
	if err != nil {
		return nil, err
	}
	opts, err := d.encodeIterBounds(ro)
	if err != nil {
		return nil, err
	}
	inner, err := eng.NewIterator(d.cf.id, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	h, err := d.holder.clone()
	if err != nil {
		inner.Close()
		return nil, err
	}
	return &Iter{inner: inner, holder: h, cod: d.cod, raw: d.cod.Raw()}, nil
}

// encodeIterBounds turns caller-value bounds into encoded engine bounds.
// The encoded slices live as long as the engine iterator does.
func (d *Dict) encodeIterBounds(ro *ReadOptions) (engine.IterOptions, error) {
	var opts engine.IterOptions
	if ro == nil {
		return opts, nil
	}
	var err error
	if ro.LowerBound != nil {
		if opts.Lower, err = d.cod.EncodeKey(ro.LowerBound); err != nil {
			return opts, err
		}
	}
	if ro.UpperBound != nil {
		if opts.Upper, err = d.cod.EncodeKey(ro.UpperBound); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// position folds an engine validity result into the state machine.
func (it *Iter) position(valid bool) {
	if valid {
		it.state = statePositioned
		it.err = nil
		return
	}
	if err := it.inner.Error(); err != nil {
		it.state = stateErrored
		it.err = mapErr(err)
		return
	}
	it.state = stateExhausted
	it.err = nil
}

func (it *Iter) fail(err error) {
	it.state = stateErrored
	it.err = err
}

// SeekToFirst positions at the first key, or exhausts on an empty space.
func (it *Iter) SeekToFirst() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		it.fail(ErrClosed)
		return
	}
	it.position(it.inner.First())
}

// SeekToLast positions at the last key.
func (it *Iter) SeekToLast() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		it.fail(ErrClosed)
		return
	}
	it.position(it.inner.Last())
}

// Seek positions at key, or the next key greater than it. An
// unencodable key moves the cursor to the error state; check Status.
func (it *Iter) Seek(key any) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		it.fail(ErrClosed)
		return
	}
	ek, err := it.cod.EncodeKey(key)
	if err != nil {
		it.fail(err)
		return
	}
	it.position(it.inner.SeekGE(ek))
}

// SeekForPrev positions at key, or the nearest key less than it.
func (it *Iter) SeekForPrev(key any) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		it.fail(ErrClosed)
		return
	}
	ek, err := it.cod.EncodeKey(key)
	if err != nil {
		it.fail(err)
		return
	}
	it.position(it.inner.SeekLE(ek))
}

// Next advances one step. From an invalid state it clears any prior
// error and stays invalid; a fresh seek is required to reposition.
func (it *Iter) Next() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		it.fail(ErrClosed)
		return
	}
	if it.state != statePositioned {
		if it.state == stateErrored {
			it.state = stateExhausted
			it.err = nil
		}
		return
	}
	it.position(it.inner.Next())
}

// Prev retreats one step, with the same invalid-state behavior as Next.
func (it *Iter) Prev() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		it.fail(ErrClosed)
		return
	}
	if it.state != statePositioned {
		if it.state == stateErrored {
			it.state = stateExhausted
			it.err = nil
		}
		return
	}
	it.position(it.inner.Prev())
}

// Valid reports whether the cursor is positioned on an entry.
func (it *Iter) Valid() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.state == statePositioned
}

// Status surfaces the error of the last failed operation without moving
// the cursor. A positioned cursor always reports nil.
func (it *Iter) Status() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.state == stateErrored {
		return it.err
	}
	return nil
}

// Key returns the decoded key under the cursor, or nil while not
// positioned. A decode failure moves the cursor to the error state.
func (it *Iter) Key() any {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.state != statePositioned {
		return nil
	}
	v, err := it.cod.DecodeKey(it.inner.Key())
	if err != nil {
		it.fail(err)
		return nil
	}
	return v
}

// Value returns the decoded value under the cursor, or nil while not
// positioned.
func (it *Iter) Value() any {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.state != statePositioned {
		return nil
	}
	raw := it.inner.Value()
	if !it.raw {
		var err error
		if raw, err = compression.UnwrapValue(raw); err != nil {
			it.fail(err)
			return nil
		}
	}
	v, err := it.cod.DecodeValue(raw)
	if err != nil {
		it.fail(err)
		return nil
	}
	return v
}

// Close releases the engine iterator and then the cursor's engine
// reference. Idempotent.
func (it *Iter) Close() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		return nil
	}
	it.closed = true
	it.state = stateExhausted
	err := it.inner.Close()
	if herr := it.holder.close(); err == nil {
		err = herr
	}
	return mapErr(err)
}

// scanner drives a fixed-direction cursor with auto-advance after each
// yield. Direction and starting key are set at construction and cannot
// change.
type scanner struct {
	it      *Iter
	reverse bool
	started bool
}

func newScanner(it *Iter, o *ScanOptions) *scanner {
	s := &scanner{it: it}
	if o != nil {
		s.reverse = o.Reverse
	}
	switch {
	case o != nil && o.From != nil && s.reverse:
		it.SeekForPrev(o.From)
	case o != nil && o.From != nil:
		it.Seek(o.From)
	case s.reverse:
		it.SeekToLast()
	default:
		it.SeekToFirst()
	}
	return s
}

// next yields the current entry and schedules the advance for the
// following call.
func (s *scanner) next() bool {
	if !s.started {
		s.started = true
	} else if s.reverse {
		s.it.Prev()
	} else {
		s.it.Next()
	}
	return s.it.Valid()
}

// Err returns the error that stopped the scan, if any.
func (s *scanner) Err() error { return s.it.Status() }

// Close releases the underlying cursor.
func (s *scanner) Close() error { return s.it.Close() }

// Items iterates key/value pairs in a fixed direction.
type Items struct {
	scanner
}

// Next advances to the next pair. It must be called before the first
// Key/Value access.
func (s *Items) Next() bool { return s.next() }

// Key returns the current key.
func (s *Items) Key() any { return s.it.Key() }

// Value returns the current value.
func (s *Items) Value() any { return s.it.Value() }

// Keys iterates keys only.
type Keys struct {
	scanner
}

// Next advances to the next key.
func (s *Keys) Next() bool { return s.next() }

// Key returns the current key.
func (s *Keys) Key() any { return s.it.Key() }

// Values iterates values only.
type Values struct {
	scanner
}

// Next advances to the next value.
func (s *Values) Next() bool { return s.next() }

// Value returns the current value.
func (s *Values) Value() any { return s.it.Value() }

func (d *Dict) scanIter(o *ScanOptions) (*Iter, error) {
	var ro *ReadOptions
	if o != nil && (o.LowerBound != nil || o.UpperBound != nil) {
		ro = &ReadOptions{LowerBound: o.LowerBound, UpperBound: o.UpperBound}
	}
	return d.Iter(ro)
}

// Items returns an auto-advancing key/value scan.
func (d *Dict) Items(o *ScanOptions) (*Items, error) {
	it, err := d.scanIter(o)
	if err != nil {
		return nil, err
	}
	return &Items{scanner: *newScanner(it, o)}, nil
}

// Entries is an alias for Items.
func (d *Dict) Entries(o *ScanOptions) (*Items, error) {
	return d.Items(o)
}

// Keys returns an auto-advancing key scan.
func (d *Dict) Keys(o *ScanOptions) (*Keys, error) {
	it, err := d.scanIter(o)
	if err != nil {
		return nil, err
	}
	return &Keys{scanner: *newScanner(it, o)}, nil
}

// Values returns an auto-advancing value scan.
func (d *Dict) Values(o *ScanOptions) (*Values, error) {
	it, err := d.scanIter(o)
	if err != nil {
		return nil, err
	}
	return &Values{scanner: *newScanner(it, o)}, nil
}
