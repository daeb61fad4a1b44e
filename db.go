package dictkv

// db.go implements the public Dict API.
//
// A Dict is a typed view over one column family of the underlying
// engine. Every operation encodes caller values through the codec, calls
// the engine through the reference-counted holder, and decodes results
// on the way back. Instances scoped to different column families share
// the store state (metadata, row cache) and the engine.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble/vfs"

	"github.com/aalhour/dictkv/internal/cache"
	"github.com/aalhour/dictkv/internal/codec"
	"github.com/aalhour/dictkv/internal/compression"
	"github.com/aalhour/dictkv/internal/engine"
	"github.com/aalhour/dictkv/internal/logging"
)

// store is the state shared by every Dict scoped to the same path.
type store struct {
	mu      sync.Mutex
	fs      vfs.FS
	path    string
	cfgPath string
	cfg     *storeConfig
	ro      bool
	reg     prefixRegistry
	rows    *cache.Rows
	logger  logging.Logger
}

// cfName resolves a column family id to its name for diagnostics.
func (s *store) cfName(id uint32) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, cid := range s.cfg.ColumnFamilies {
		if cid == id {
			return name
		}
	}
	return fmt.Sprintf("cf-%d", id)
}

// Dict is a persistent, ordered, typed dictionary scoped to one column
// family. Safe for concurrent use.
type Dict struct {
	holder *engineHolder
	st     *store
	cf     *ColumnFamily
	cod    *codec.Codec
	comp   compression.Type
	logger logging.Logger

	womu  sync.RWMutex
	wopts WriteOptions
}

func (t CompressionType) internal() compression.Type {
	switch t {
	case SnappyCompression:
		return compression.Snappy
	case ZstdCompression:
		return compression.Zstd
	case LZ4Compression:
		return compression.LZ4
	default:
		return compression.None
	}
}

// Open opens or creates a store at path. A nil opts means
// DefaultOptions. The returned Dict is scoped to the default column
// family.
func Open(path string, opts *Options) (*Dict, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	logger := logging.OrDefault(opts.Logger)

	if opts.AccessType == Secondary {
		return nil, fmt.Errorf("%w: secondary access", ErrNotSupported)
	}
	if opts.RawMode && opts.Compression != NoCompression {
		return nil, errors.New("dictkv: value compression requires the typed codec, not raw mode")
	}
	readOnly := opts.AccessType == ReadOnly

	fs := opts.FS
	if fs == nil {
		fs = vfs.Default
	}
	cfgPath := fs.PathJoin(path, ConfigFileName)

	cfg, err := loadStoreConfig(fs, cfgPath)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = newStoreConfig(opts.RawMode)
	} else if cfg.RawMode != opts.RawMode {
		return nil, fmt.Errorf("%w: store raw_mode=%t, options raw_mode=%t",
			ErrRawModeMismatch, cfg.RawMode, opts.RawMode)
	}

	reg := newPrefixRegistry(opts.PrefixExtractorFactories)
	pe := opts.PrefixExtractor
	if desc, ok := cfg.PrefixExtractors[DefaultColumnFamilyName]; ok {
		if pe == nil {
			pe, err = reg.resolve(desc)
			if err != nil {
				return nil, err
			}
		} else if d, described := describeExtractor(pe); described && d != desc {
			return nil, fmt.Errorf("dictkv: prefix extractor %q differs from store metadata %q", d, desc)
		}
	}
	var split func([]byte) int
	if pe != nil {
		split = prefixSplit(pe)
	}

	var ttl time.Duration
	if opts.AccessType == WithTTL {
		ttl = opts.TTL
	}

	// The row cache has no view of expiry: a cached entry would outlive
	// its stamp. TTL stores read straight from the engine.
	rowCacheSize := opts.RowCacheSize
	if ttl > 0 && rowCacheSize > 0 {
		logger.Warnf(logging.NSDB + "row cache disabled: entries carry a ttl")
		rowCacheSize = 0
	}

	eng, err := engine.Open(path, engine.Options{
		FS:        opts.FS,
		ReadOnly:  readOnly,
		CacheSize: opts.BlockCacheSize,
		TTL:       ttl,
		Split:     split,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	holder := newEngineHolder(eng)

	if !readOnly {
		if pe != nil {
			if d, described := describeExtractor(pe); described {
				cfg.PrefixExtractors[DefaultColumnFamilyName] = d
			} else {
				logger.Warnf(logging.NSDB+"prefix extractor %s has no descriptor, not persisted", pe.Name())
			}
		}
		if err := cfg.save(fs, cfgPath); err != nil {
			holder.close()
			return nil, err
		}
	}

	st := &store{
		fs:      fs,
		path:    path,
		cfgPath: cfgPath,
		cfg:     cfg,
		ro:      readOnly,
		reg:     reg,
		rows:    cache.NewRows(rowCacheSize),
		logger:  logger,
	}

	cfHolder, err := holder.clone()
	if err != nil {
		return nil, err
	}
	var ser codec.Serializer
	if opts.Serializer != nil {
		ser = opts.Serializer
	}

	d := &Dict{
		holder: holder,
		st:     st,
		cf:     newColumnFamily(DefaultColumnFamilyName, engine.DefaultCF, cfHolder),
		cod:    codec.New(opts.RawMode, ser),
		comp:   opts.Compression.internal(),
		logger: logger,
	}
	logger.Infof(logging.NSDB+"opened %s (%s)", path, opts.AccessType)
	return d, nil
}

// Path returns the store directory.
func (d *Dict) Path() string { return d.st.path }

// ColumnFamily returns the capability token this Dict is scoped to.
func (d *Dict) ColumnFamily() *ColumnFamily { return d.cf }

// SetWriteOptions changes the durability of subsequent mutations made
// through this handle.
func (d *Dict) SetWriteOptions(wo WriteOptions) {
	d.womu.Lock()
	d.wopts = wo
	d.womu.Unlock()
}

func (d *Dict) syncWrites() bool {
	d.womu.RLock()
	defer d.womu.RUnlock()
	return d.wopts.Sync
}

// encodeValue applies the codec and then the optional compression
// envelope.
func (d *Dict) encodeValue(v any) ([]byte, error) {
	ev, err := d.cod.EncodeValue(v)
	if err != nil {
		return nil, err
	}
	if d.comp == compression.None {
		return ev, nil
	}
	return compression.WrapValue(d.comp, ev)
}

// decodeValue strips the compression envelope, if any, and decodes.
func (d *Dict) decodeValue(raw []byte) (any, error) {
	if d.cod.Raw() {
		return d.cod.DecodeValue(raw)
	}
	plain, err := compression.UnwrapValue(raw)
	if err != nil {
		return nil, err
	}
	return d.cod.DecodeValue(plain)
}

// getRaw fetches the stored bytes for an encoded key, consulting the row
// cache first. Absence is ErrNotFound.
func (d *Dict) getRaw(ek []byte) ([]byte, error) {
	if v, ok := d.st.rows.Get(d.cf.id, ek); ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return v, nil
	}
	// The generation is captured before the engine read so that a result
	// which races a concurrent write is inserted under the superseded
	// generation, never the new one.
	gen := d.st.rows.Generation()
	eng, err := d.holder.get()
	if err != nil {
		return nil, err
	}
	raw, err := eng.Get(d.cf.id, ek)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			d.st.rows.PutAbsent(gen, d.cf.id, ek)
			return nil, ErrNotFound
		}
		return nil, mapErr(err)
	}
	d.st.rows.Put(gen, d.cf.id, ek, raw)
	return raw, nil
}

// Get returns the value stored under key. Absence is ErrNotFound.
func (d *Dict) Get(key any) (any, error) {
	ek, err := d.cod.EncodeKey(key)
	if err != nil {
		return nil, err
	}
	raw, err := d.getRaw(ek)
	if err != nil {
		return nil, err
	}
	return d.decodeValue(raw)
}

// Contains reports whether key is present. Absence is not an error here.
func (d *Dict) Contains(key any) (bool, error) {
	ek, err := d.cod.EncodeKey(key)
	if err != nil {
		return false, err
	}
	_, err = d.getRaw(ek)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put stores value under key, overwriting any previous value.
func (d *Dict) Put(key, value any) error {
	ek, err := d.cod.EncodeKey(key)
	if err != nil {
		return err
	}
	ev, err := d.encodeValue(value)
	if err != nil {
		return err
	}
	eng, err := d.holder.get()
	if err != nil {
		return err
	}
	if err := eng.Put(d.cf.id, ek, ev, d.syncWrites()); err != nil {
		return mapErr(err)
	}
	d.st.rows.Invalidate()
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (d *Dict) Delete(key any) error {
	ek, err := d.cod.EncodeKey(key)
	if err != nil {
		return err
	}
	eng, err := d.holder.get()
	if err != nil {
		return err
	}
	if err := eng.Delete(d.cf.id, ek, d.syncWrites()); err != nil {
		return mapErr(err)
	}
	d.st.rows.Invalidate()
	return nil
}

// DeleteRange removes every key in [start, end).
func (d *Dict) DeleteRange(start, end any) error {
	es, err := d.cod.EncodeKey(start)
	if err != nil {
		return err
	}
	ee, err := d.cod.EncodeKey(end)
	if err != nil {
		return err
	}
	eng, err := d.holder.get()
	if err != nil {
		return err
	}
	if err := eng.DeleteRange(d.cf.id, es, ee, d.syncWrites()); err != nil {
		return mapErr(err)
	}
	d.st.rows.Invalidate()
	return nil
}

// MultiGet returns one slot per input key, in input order. Absent keys
// yield a nil value with a nil error. A key that fails to encode or a
// value that fails to decode poisons only its own slot.
func (d *Dict) MultiGet(keys []any) ([]any, []error) {
	vals := make([]any, len(keys))
	errs := make([]error, len(keys))

	enc := make([][]byte, 0, len(keys))
	idx := make([]int, 0, len(keys))
	for i, k := range keys {
		ek, err := d.cod.EncodeKey(k)
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

	eng, err := d.holder.get()
	if err != nil {
		for _, i := range idx {
			errs[i] = err
		}
		return vals, errs
	}
	raws, rerrs := eng.MultiGet(d.cf.id, enc)
	for j, i := range idx {
		if rerrs != nil && rerrs[j] != nil {
			errs[i] = mapErr(rerrs[j])
			continue
		}
		if raws[j] == nil {
			continue // absent
		}
		v, derr := d.decodeValue(raws[j])
		if derr != nil {
			errs[i] = derr
			continue
		}
		vals[i] = v
	}
	return vals, errs
}

// Write applies a write batch atomically. Either every mutation becomes
// visible or none does.
func (d *Dict) Write(wb *WriteBatch, wo *WriteOptions) error {
	eng, err := d.holder.get()
	if err != nil {
		return err
	}
	b := eng.NewBatch()
	defer b.Close()
	if err := wb.replay(b); err != nil {
		return err
	}
	sync := d.syncWrites()
	if wo != nil {
		sync = wo.Sync
	}
	if err := eng.Apply(b, sync); err != nil {
		return mapErr(err)
	}
	d.st.rows.Invalidate()
	return nil
}

// Flush persists memtable contents to disk. A nil fo waits.
func (d *Dict) Flush(fo *FlushOptions) error {
	eng, err := d.holder.get()
	if err != nil {
		return err
	}
	wait := fo == nil || fo.Wait
	return mapErr(eng.Flush(wait))
}

// CompactRange manually compacts the key range [start, end] of this
// column family. Nil bounds mean the column family edge.
func (d *Dict) CompactRange(start, end any) error {
	var es, ee []byte
	var err error
	if start != nil {
		if es, err = d.cod.EncodeKey(start); err != nil {
			return err
		}
	}
	if end != nil {
		if ee, err = d.cod.EncodeKey(end); err != nil {
			return err
		}
	}
	eng, err := d.holder.get()
	if err != nil {
		return err
	}
	return mapErr(eng.Compact(d.cf.id, es, ee))
}

// PropertyValue returns an engine metric by name.
func (d *Dict) PropertyValue(name string) (string, error) {
	eng, err := d.holder.get()
	if err != nil {
		return "", err
	}
	v, err := eng.Property(name)
	return v, mapErr(err)
}

// PropertyIntValue returns a numeric engine metric by name.
func (d *Dict) PropertyIntValue(name string) (int64, error) {
	v, err := d.PropertyValue(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("dictkv: property %s is not numeric: %w", name, err)
	}
	return n, nil
}

// LiveFile describes one on-disk table of the store.
type LiveFile struct {
	ColumnFamily string
	Level        int
	FileNumber   uint64
	Size         uint64
	SmallestKey  any
	LargestKey   any
}

// LiveFiles lists the store's on-disk tables with decoded boundary keys.
// Boundary keys that fail to decode are reported as raw bytes.
func (d *Dict) LiveFiles() ([]LiveFile, error) {
	eng, err := d.holder.get()
	if err != nil {
		return nil, err
	}
	tables, err := eng.Tables()
	if err != nil {
		return nil, mapErr(err)
	}
	files := make([]LiveFile, 0, len(tables))
	for _, t := range tables {
		files = append(files, LiveFile{
			ColumnFamily: d.st.cfName(t.CF),
			Level:        t.Level,
			FileNumber:   t.FileNum,
			Size:         t.Size,
			SmallestKey:  d.decodeKeyOrRaw(t.Smallest),
			LargestKey:   d.decodeKeyOrRaw(t.Largest),
		})
	}
	return files, nil
}

func (d *Dict) decodeKeyOrRaw(b []byte) any {
	v, err := d.cod.DecodeKey(b)
	if err != nil {
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	return v
}

// Close releases this handle's references to the engine. The engine is
// torn down when the last handle (any Dict, ColumnFamily, Iter, or
// Snapshot of this store) is closed. Close is idempotent.
func (d *Dict) Close() error {
	d.logger.Debugf(logging.NSDB+"closing handle for %s (%s)", d.st.path, d.cf.name)
	cfErr := d.cf.Close()
	err := d.holder.close()
	if err != nil {
		return err
	}
	return cfErr
}

// Destroy removes the store at path from the filesystem. The store must
// not be open. It refuses to remove a directory that does not look like
// a store.
func Destroy(path string) error {
	_, cfgErr := os.Stat(filepath.Join(path, ConfigFileName))
	_, curErr := os.Stat(filepath.Join(path, "CURRENT"))
	if cfgErr != nil && curErr != nil {
		return fmt.Errorf("dictkv: %s is not a dictkv store", path)
	}
	return os.RemoveAll(path)
}

// ListColumnFamilies returns the column family names recorded in the
// store metadata at path, without opening the store.
func ListColumnFamilies(path string) ([]string, error) {
	cfg, err := loadStoreConfig(vfs.Default, filepath.Join(path, ConfigFileName))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("dictkv: no store metadata at %s", path)
	}
	names := make([]string, 0, len(cfg.ColumnFamilies))
	for name := range cfg.ColumnFamilies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
