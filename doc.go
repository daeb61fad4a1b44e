/*
Package dictkv provides a persistent, ordered, typed dictionary backed by
an embedded key/value engine.

Callers work with native Go scalars (bytes, strings, integers, floats,
booleans) plus an escape hatch for arbitrary structured values; dictkv
encodes them into tagged byte strings such that keys of the same type
sort under byte-wise comparison exactly as the values sort naturally. On
top of that sit column families, bidirectional cursors, point-in-time
snapshots, atomic write batches, multi-get, delete-range, and TTL-based
expiry.

Every entry is a single key/value pair. There is no wide-column or
entity model: the derived scans (Items, Keys, Values, Entries) project
plain pairs, and a multi-attribute record is stored as one structured
value via a Serializer.

# Usage

	db, err := dictkv.Open("/tmp/mystore", nil)
	if err != nil { ... }
	defer db.Close()

	db.Put("answer", 42)
	v, err := db.Get("answer") // v is int64(42)

For runnable examples, see the repository's examples directory.

# Concurrency

A Dict instance is safe for concurrent use by multiple goroutines.
Individual Iter instances serialize their own operations but should not
be shared; each goroutine should use its own cursor.

# Lifecycle

Every derived handle (column family, cursor, snapshot) holds its own
reference to the underlying engine. The engine's background work is
cancelled and the engine released exactly once, when the last reference
is dropped. Using any handle after its Close returns ErrClosed.
*/
package dictkv
