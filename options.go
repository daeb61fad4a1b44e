package dictkv

// options.go defines the public configuration surface.
//
// Everything here is plain pass-through configuration; the interesting
// machinery lives in the codec, the holder, and the cursor.

import (
	"time"

	"github.com/cockroachdb/pebble/vfs"

	"github.com/aalhour/dictkv/internal/codec"
)

// AccessType selects how a store is opened.
type AccessType int

const (
	// ReadWrite opens the store for reads and writes. This is the default.
	ReadWrite AccessType = iota

	// ReadOnly opens an existing store without write capability.
	ReadOnly

	// WithTTL opens the store with lazy expiry: entries older than
	// Options.TTL are invisible to reads and iteration.
	WithTTL

	// Secondary would open a read-only follower of a store owned by
	// another process. The current engine does not support it; Open
	// returns ErrNotSupported.
	Secondary
)

// String returns the access type name.
func (a AccessType) String() string {
	switch a {
	case ReadWrite:
		return "read-write"
	case ReadOnly:
		return "read-only"
	case WithTTL:
		return "with-ttl"
	case Secondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// CompressionType selects the optional value compression codec.
type CompressionType int

const (
	// NoCompression stores values uncompressed. This is the default and
	// is always readable regardless of the store's history.
	NoCompression CompressionType = iota

	// SnappyCompression compresses values with Google Snappy.
	SnappyCompression

	// ZstdCompression compresses values with Zstandard.
	ZstdCompression

	// LZ4Compression compresses values with LZ4 frames.
	LZ4Compression
)

// Serializer converts arbitrary structured values to and from bytes.
// It backs the opaque value type. The default, GobSerializer, requires
// concrete types to be registered with gob.Register.
type Serializer interface {
	Dumps(v any) ([]byte, error)
	Loads(data []byte) (any, error)
}

// GobSerializer is the default Serializer, built on encoding/gob.
type GobSerializer = codec.GobSerializer

// Logger receives diagnostic output from the store. Implementations must
// be safe for concurrent use. A nil Logger means a stderr default at
// warn level.
type Logger interface {
	Errorf(format string, args ...any)
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
}

// Options configures a store at open time.
type Options struct {
	// AccessType selects read-write, read-only, TTL, or secondary mode.
	AccessType AccessType

	// TTL is the entry lifetime when AccessType is WithTTL. Zero means
	// entries never expire.
	TTL time.Duration

	// RawMode bypasses the typed codec: keys and values must already be
	// []byte. Recorded in the store metadata at creation; reopening with
	// a different value fails with ErrRawModeMismatch.
	RawMode bool

	// Serializer encodes values that match no scalar type. Nil disables
	// the opaque fallback.
	Serializer Serializer

	// Compression selects the value compression codec for writes.
	// Reads auto-detect, so stores with mixed history stay readable.
	Compression CompressionType

	// RowCacheSize is the capacity, in entries, of the in-memory row
	// cache. Zero disables the cache. Ignored on WithTTL stores: the
	// cache has no view of expiry stamps.
	RowCacheSize int

	// BlockCacheSize is the engine block cache size in bytes. Zero keeps
	// the engine default.
	BlockCacheSize int64

	// PrefixExtractor enables prefix seek optimization in the engine.
	// Its descriptor is persisted in the store metadata so reopening
	// without one can reconstruct it.
	PrefixExtractor PrefixExtractor

	// PrefixExtractorFactories extends the per-store registry used to
	// reconstruct persisted extractor descriptors, keyed by kind.
	// "fixed" and "capped" are always registered.
	PrefixExtractorFactories map[string]func(length int) PrefixExtractor

	// Logger receives diagnostics. Nil means stderr at warn level.
	Logger Logger

	// FS is the filesystem the store lives on. Nil means the operating
	// system filesystem; tests use an in-memory one.
	FS vfs.FS
}

// DefaultOptions returns the options used when Open receives nil: a
// read-write store with the typed codec, gob opaque fallback, no
// compression, and no row cache.
func DefaultOptions() *Options {
	return &Options{
		AccessType: ReadWrite,
		Serializer: GobSerializer{},
	}
}

// ColumnFamilyOptions overrides store-level settings for one column
// family handle. Zero values inherit from the store.
type ColumnFamilyOptions struct {
	// Compression overrides the store's value compression codec.
	Compression CompressionType

	// Serializer overrides the store's opaque serializer.
	Serializer Serializer
}

// ReadOptions bounds an iteration. Bounds are caller values, encoded
// with the store's codec; Lower is inclusive, Upper exclusive. Nil
// means unbounded on that side.
type ReadOptions struct {
	LowerBound any
	UpperBound any
}

// WriteOptions controls the durability of a mutation.
type WriteOptions struct {
	// Sync forces the write-ahead log to disk before the mutation is
	// acknowledged.
	Sync bool
}

// FlushOptions controls Flush.
type FlushOptions struct {
	// Wait blocks until the flush has completed.
	Wait bool
}

// ScanOptions configures a derived cursor (Items, Keys, Values).
// Direction and starting key are fixed at construction.
type ScanOptions struct {
	// Reverse iterates from the largest key toward the smallest.
	Reverse bool

	// From positions the cursor at this key (or the nearest key in the
	// iteration direction) instead of the range edge.
	From any

	// LowerBound and UpperBound bound the scan like ReadOptions.
	LowerBound any
	UpperBound any
}
