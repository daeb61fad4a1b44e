package dictkv

// snapshot.go implements point-in-time read views.
//
// A Snapshot pins an engine token at creation; every read through it
// sees the store as of that moment, regardless of later writes. The
// snapshot holds its own engine reference, so the store cannot be torn
// down under it. Snapshot reads bypass the row cache; the cache tracks
// the live head, not historical views.

import (
	"errors"
	"sync"

	"github.com/aalhour/dictkv/internal/codec"
	"github.com/aalhour/dictkv/internal/compression"
	"github.com/aalhour/dictkv/internal/engine"
	"github.com/aalhour/dictkv/internal/logging"
)

// Snapshot is an immutable read view of one column family. Safe for
// concurrent use.
type Snapshot struct {
	mu     sync.Mutex
	closed bool

	holder *engineHolder
	snap   engine.Snapshot
	cod    *codec.Codec
	cfID   uint32
	logger logging.Logger
}

// Snapshot creates a point-in-time view of this Dict's column family.
func (d *Dict) Snapshot() (*Snapshot, error) {
	eng, err := d.holder.get()
	if err != nil {
		return nil, err
	}
	snap, err := eng.NewSnapshot()
	if err != nil {
		return nil, mapErr(err)
	}
	h, err := d.holder.clone()
	if err != nil {
		snap.Close()
		return nil, err
	}
	d.logger.Debugf(logging.NSSnapshot+"created for %s", d.cf.name)
	return &Snapshot{
		holder: h,
		snap:   snap,
		cod:    d.cod,
		cfID:   d.cf.id,
		logger: d.logger,
	}, nil
}

func (s *Snapshot) view() (engine.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.snap, nil
}

func (s *Snapshot) decodeValue(raw []byte) (any, error) {
	if s.cod.Raw() {
		return s.cod.DecodeValue(raw)
	}
	plain, err := compression.UnwrapValue(raw)
	if err != nil {
		return nil, err
	}
	return s.cod.DecodeValue(plain)
}

// Get returns the value stored under key as of the snapshot. Absence is
// ErrNotFound.
func (s *Snapshot) Get(key any) (any, error) {
	ek, err := s.cod.EncodeKey(key)
	if err != nil {
		return nil, err
	}
	snap, err := s.view()
	if err != nil {
		return nil, err
	}
	raw, err := snap.Get(s.cfID, ek)
	if err != nil {
		return nil, mapErr(err)
	}
	return s.decodeValue(raw)
}

// Contains reports whether key was present at the snapshot.
func (s *Snapshot) Contains(key any) (bool, error) {
	_, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MultiGet mirrors Dict.MultiGet against the snapshot view: one slot
// per key in input order, absent keys yield nil/nil, failures poison
// only their own slot.
func (s *Snapshot) MultiGet(keys []any) ([]any, []error) {
	vals := make([]any, len(keys))
	errs := make([]error, len(keys))

	enc := make([][]byte, 0, len(keys))
	idx := make([]int, 0, len(keys))
	for i, k := range keys {
		ek, err := s.cod.EncodeKey(k)
		if err != nil {
			errs[i] = err
			continue
		}
		enc = append(enc, ek)
		idx = append(idx, i)
	}
	if len(enc) == 0 {
		return vals, errs
	}

	snap, err := s.view()
	if err != nil {
		for _, i := range idx {
			errs[i] = err
		}
		return vals, errs
	}
	raws, rerrs := snap.MultiGet(s.cfID, enc)
	for j, i := range idx {
		if rerrs != nil && rerrs[j] != nil {
			errs[i] = mapErr(rerrs[j])
			continue
		}
		if raws[j] == nil {
			continue
		}
		v, derr := s.decodeValue(raws[j])
		if derr != nil {
			errs[i] = derr
			continue
		}
		vals[i] = v
	}
	return vals, errs
}

// Iter creates a cursor over the snapshot view.
func (s *Snapshot) Iter(ro *ReadOptions) (*Iter, error) {
	snap, err := s.view()
	if err != nil {
		return nil, err
	}
	var opts engine.IterOptions
	if ro != nil {
		if ro.LowerBound != nil {
			if opts.Lower, err = s.cod.EncodeKey(ro.LowerBound); err != nil {
				return nil, err
			}
		}
		if ro.UpperBound != nil {
			if opts.Upper, err = s.cod.EncodeKey(ro.UpperBound); err != nil {
				return nil, err
			}
		}
	}
	inner, err := snap.NewIterator(s.cfID, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	h, err := s.holder.clone()
	if err != nil {
		inner.Close()
		return nil, err
	}
	return &Iter{inner: inner, holder: h, cod: s.cod, raw: s.cod.Raw()}, nil
}

func (s *Snapshot) scanIter(o *ScanOptions) (*Iter, error) {
	var ro *ReadOptions
	if o != nil && (o.LowerBound != nil || o.UpperBound != nil) {
		ro = &ReadOptions{LowerBound: o.LowerBound, UpperBound: o.UpperBound}
	}
	return s.Iter(ro)
}

// Items returns an auto-advancing key/value scan of the snapshot.
func (s *Snapshot) Items(o *ScanOptions) (*Items, error) {
	it, err := s.scanIter(o)
	if err != nil {
		return nil, err
	}
	return &Items{scanner: *newScanner(it, o)}, nil
}

// Keys returns an auto-advancing key scan of the snapshot.
func (s *Snapshot) Keys(o *ScanOptions) (*Keys, error) {
	it, err := s.scanIter(o)
	if err != nil {
		return nil, err
	}
	return &Keys{scanner: *newScanner(it, o)}, nil
}

// Values returns an auto-advancing value scan of the snapshot.
func (s *Snapshot) Values(o *ScanOptions) (*Values, error) {
	it, err := s.scanIter(o)
	if err != nil {
		return nil, err
	}
	return &Values{scanner: *newScanner(it, o)}, nil
}

// Close releases the engine token and then the snapshot's engine
// reference. Idempotent.
func (s *Snapshot) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.snap.Close()
	if herr := s.holder.close(); err == nil {
		err = herr
	}
	return mapErr(err)
}
