// Package compression provides optional compression of stored values.
//
// A compressed value is one envelope byte (0xF0 | Type) followed by the
// compressed payload. Envelope bytes sit outside the codec's tag range,
// so stores written without compression remain readable byte-for-byte
// and a reader can always tell the two forms apart from the first byte.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type represents a compression algorithm.
type Type uint8

const (
	// None disables value compression.
	None Type = 0x0

	// Snappy uses Google Snappy compression.
	Snappy Type = 0x1

	// Zstd uses Zstandard compression.
	Zstd Type = 0x2

	// LZ4 uses LZ4 frame compression.
	LZ4 Type = 0x3
)

// envelopeMask marks a value as compressed; the low nibble is the Type.
const envelopeMask byte = 0xF0

// ErrCorrupt is returned when an envelope cannot be decompressed.
var ErrCorrupt = errors.New("compression: corrupt compressed value")

// String returns the human-readable name of the compression type.
func (t Type) String() string {
	switch t {
	case None:
		return "None"
	case Snappy:
		return "Snappy"
	case Zstd:
		return "ZSTD"
	case LZ4:
		return "LZ4"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// IsSupported returns true if the compression type is supported.
func (t Type) IsSupported() bool {
	switch t {
	case None, Snappy, Zstd, LZ4:
		return true
	default:
		return false
	}
}

// WrapValue compresses data and prepends the envelope byte. With type
// None the data is returned unchanged.
func WrapValue(t Type, data []byte) ([]byte, error) {
	if t == None {
		return data, nil
	}
	compressed, err := compress(t, data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+len(compressed))
	out[0] = envelopeMask | byte(t)
	copy(out[1:], compressed)
	return out, nil
}

// UnwrapValue reverses WrapValue. Values without an envelope byte pass
// through untouched, so mixed stores read correctly.
func UnwrapValue(data []byte) ([]byte, error) {
	if len(data) == 0 || data[0]&envelopeMask != envelopeMask {
		return data, nil
	}
	t := Type(data[0] &^ envelopeMask)
	if !t.IsSupported() || t == None {
		return nil, fmt.Errorf("%w: envelope byte %#x", ErrCorrupt, data[0])
	}
	out, err := decompress(t, data[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return out, nil
}

func compress(t Type, data []byte) ([]byte, error) {
	switch t {
	case Snappy:
		return snappy.Encode(nil, data), nil

	case Zstd:
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		defer encoder.Close()
		return encoder.EncodeAll(data, nil), nil

	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 close: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
}

func decompress(t Type, data []byte) ([]byte, error) {
	switch t {
	case Snappy:
		return snappy.Decode(nil, data)

	case Zstd:
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer decoder.Close()
		return decoder.DecodeAll(data, nil)

	case LZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		return io.ReadAll(r)

	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
}
