// Package engine defines the capability surface dictkv consumes from the
// native ordered storage engine, and provides the pebble-backed
// implementation of it.
//
// The store depends only on the documented semantics of this interface:
// per-column-family CRUD and multi-get, bounded iterators, point-in-time
// snapshots, atomic batch application, flush, cancel-background-work, and
// property introspection. Engine internals (compaction, WAL, file format)
// are opaque.
package engine

import "errors"

var (
	// ErrNotFound is returned when a key is absent. Absence is a normal
	// result at the store layer; only single-key accessors surface it.
	ErrNotFound = errors.New("engine: key not found")

	// ErrClosed is returned for any operation after Close.
	ErrClosed = errors.New("engine: engine is closed")

	// ErrReadOnly is returned for mutations on a read-only engine.
	ErrReadOnly = errors.New("engine: engine is read-only")

	// ErrNotSupported is returned for capabilities the engine lacks.
	ErrNotSupported = errors.New("engine: not supported")
)

// DefaultCF is the id of the default column family.
const DefaultCF uint32 = 0

// IterOptions bounds an iterator within one column family.
// Lower is inclusive, Upper exclusive; nil means the column family edge.
type IterOptions struct {
	Lower []byte
	Upper []byte
}

// Iterator is a movable position over the ordered key space of one column
// family. It is created unpositioned; a seek is required before use.
// Iterators are not safe for concurrent use.
type Iterator interface {
	First() bool
	Last() bool

	// SeekGE positions at key, or the smallest key greater than it.
	SeekGE(key []byte) bool

	// SeekLE positions at key, or the largest key less than it.
	SeekLE(key []byte) bool

	Next() bool
	Prev() bool
	Valid() bool

	// Key and Value are only meaningful while Valid. The returned slices
	// are stable until the next positioning call.
	Key() []byte
	Value() []byte

	// Error surfaces an engine-detected failure. A valid iterator always
	// reports nil.
	Error() error

	Close() error
}

// Snapshot is a pinned point-in-time read view.
type Snapshot interface {
	Get(cf uint32, key []byte) ([]byte, error)
	MultiGet(cf uint32, keys [][]byte) ([][]byte, []error)
	NewIterator(cf uint32, o IterOptions) (Iterator, error)
	Close() error
}

// Batch accumulates mutations for atomic application via Engine.Apply.
type Batch interface {
	Put(cf uint32, key, value []byte) error
	Delete(cf uint32, key []byte) error
	DeleteRange(cf uint32, start, end []byte) error
	Count() uint32
	Close() error
}

// TableInfo describes one live on-disk table.
type TableInfo struct {
	Level    int
	FileNum  uint64
	Size     uint64
	CF       uint32
	Smallest []byte // user key, column-family prefix stripped
	Largest  []byte
}

// Engine is the full consumed capability surface.
//
// All methods are safe for concurrent use. Mutations take a sync flag
// controlling WAL durability of that write.
type Engine interface {
	Get(cf uint32, key []byte) ([]byte, error)
	MultiGet(cf uint32, keys [][]byte) ([][]byte, []error)
	Put(cf uint32, key, value []byte, sync bool) error
	Delete(cf uint32, key []byte, sync bool) error
	DeleteRange(cf uint32, start, end []byte, sync bool) error

	NewIterator(cf uint32, o IterOptions) (Iterator, error)
	NewSnapshot() (Snapshot, error)

	NewBatch() Batch
	Apply(b Batch, sync bool) error

	// DropColumnFamily removes every key of the column family.
	DropColumnFamily(cf uint32, sync bool) error

	Flush(wait bool) error

	// CancelBackgroundWork asks the engine to stop background activity.
	// With wait set it blocks until in-flight work has settled. Called at
	// most once, immediately before Close.
	CancelBackgroundWork(wait bool)

	Compact(cf uint32, start, end []byte) error

	Property(name string) (string, error)
	Tables() ([]TableInfo, error)

	// Close releases the engine. It must be called exactly once, after
	// every iterator, snapshot, and batch has been closed.
	Close() error
}
