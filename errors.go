package dictkv

// errors.go defines the public error taxonomy and the mapping from
// engine errors.

import (
	"errors"

	"github.com/aalhour/dictkv/internal/codec"
	"github.com/aalhour/dictkv/internal/engine"
)

var (
	// ErrNotFound is returned by single-key accessors when the key is
	// absent. Batch reads report absence as a nil slot instead.
	ErrNotFound = errors.New("dictkv: key not found")

	// ErrClosed is returned for any operation on a handle whose
	// underlying engine has been torn down.
	ErrClosed = errors.New("dictkv: store is closed")

	// ErrReadOnly is returned for mutations on a read-only store.
	ErrReadOnly = errors.New("dictkv: store is read-only")

	// ErrNotSupported is returned for access types the engine lacks.
	ErrNotSupported = errors.New("dictkv: not supported")

	// ErrRawModeMismatch is returned when open-time options disagree
	// with the raw_mode the store was created with.
	ErrRawModeMismatch = errors.New("dictkv: raw mode differs from store metadata")

	// ErrColumnFamilyNotFound is returned when a column family is not found.
	ErrColumnFamilyNotFound = errors.New("dictkv: column family not found")

	// ErrColumnFamilyExists is returned when a column family already exists.
	ErrColumnFamilyExists = errors.New("dictkv: column family already exists")

	// ErrCannotDropDefaultCF is returned when trying to drop the default
	// column family.
	ErrCannotDropDefaultCF = errors.New("dictkv: cannot drop default column family")
)

// Codec errors, re-exported so callers can match them with errors.Is.
var (
	// ErrUnsupportedType is returned when a value matches no encodable type.
	ErrUnsupportedType = codec.ErrUnsupportedType

	// ErrInvalidRawInput is returned when raw mode receives a non-byte input.
	ErrInvalidRawInput = codec.ErrInvalidRawInput

	// ErrUnknownTag is returned when a stored tag byte matches no known type.
	ErrUnknownTag = codec.ErrUnknownTag

	// ErrTruncated is returned when a stored payload is shorter than its
	// tag requires.
	ErrTruncated = codec.ErrTruncated

	// ErrInvalidUTF8 is returned for a corrupt text payload.
	ErrInvalidUTF8 = codec.ErrInvalidUTF8
)

// mapErr translates engine sentinels into their public counterparts.
// Opaque engine failures pass through verbatim; the store never retries.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, engine.ErrClosed):
		return ErrClosed
	case errors.Is(err, engine.ErrReadOnly):
		return ErrReadOnly
	case errors.Is(err, engine.ErrNotSupported):
		return ErrNotSupported
	default:
		return err
	}
}
