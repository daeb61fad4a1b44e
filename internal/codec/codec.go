// Package codec implements the typed key/value byte codec.
//
// Every encoded key or value is one tag byte followed by the payload.
// The tag table is persisted on disk and must never change:
//
//	1  raw bytes     verbatim
//	2  text          UTF-8 bytes
//	3  integer       order-preserving sign-split big-endian (see appendInt)
//	4  float         IEEE-754 big-endian, 8 bytes
//	5  boolean       single byte, 0 or 1
//	6  opaque        Serializer-produced bytes
//
// For two keys of the same tag (except float and opaque), lexicographic
// order of the encoded form equals the natural order of the values. Keys
// of different tags order by tag byte alone.
//
// In raw mode the codec is bypassed: inputs must already be []byte and
// encode/decode are identity functions.
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/big"
	"unicode/utf8"
)

// Tag values. Persisted on disk; append-only.
const (
	TagBytes  byte = 1
	TagText   byte = 2
	TagInt    byte = 3
	TagFloat  byte = 4
	TagBool   byte = 5
	TagOpaque byte = 6
)

var (
	// ErrUnsupportedType is returned when a value matches no encodable type.
	ErrUnsupportedType = errors.New("codec: unsupported type")

	// ErrInvalidRawInput is returned when raw mode receives a non-byte input.
	ErrInvalidRawInput = errors.New("codec: raw mode requires []byte keys and values")

	// ErrUnknownTag is returned when a stored tag byte matches no known type.
	ErrUnknownTag = errors.New("codec: unknown tag byte")

	// ErrTruncated is returned when a payload length does not match its tag.
	ErrTruncated = errors.New("codec: truncated payload")

	// ErrInvalidUTF8 is returned for a corrupt text payload.
	ErrInvalidUTF8 = errors.New("codec: invalid utf-8 in text payload")

	// ErrIntegerTooLarge is returned for integers wider than 127 bytes.
	ErrIntegerTooLarge = errors.New("codec: integer magnitude exceeds 127 bytes")
)

// Serializer converts arbitrary structured values to and from bytes.
// It backs the opaque tag. Implementations must be deterministic enough
// that Loads(Dumps(v)) reproduces v.
type Serializer interface {
	Dumps(v any) ([]byte, error)
	Loads(data []byte) (any, error)
}

// GobSerializer is the default Serializer, built on encoding/gob.
// Concrete types stored through it must be registered with gob.Register.
type GobSerializer struct{}

// Dumps implements Serializer.
func (GobSerializer) Dumps(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("codec: gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Loads implements Serializer.
func (GobSerializer) Loads(data []byte) (any, error) {
	var v any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, fmt.Errorf("codec: gob decode: %w", err)
	}
	return v, nil
}

// Codec encodes and decodes dictionary keys and values.
// A Codec is stateless and safe for concurrent use.
type Codec struct {
	raw bool
	ser Serializer
}

// New returns a Codec. In raw mode ser is unused. A nil ser disables the
// opaque fallback entirely.
func New(raw bool, ser Serializer) *Codec {
	return &Codec{raw: raw, ser: ser}
}

// Raw reports whether the codec is in raw (pass-through) mode.
func (c *Codec) Raw() bool { return c.raw }

// EncodeKey encodes a key. Keys never use the opaque fallback: a key must
// be bytes, text, integer, float, or bool so that its sort position is
// well defined.
func (c *Codec) EncodeKey(v any) ([]byte, error) {
	if c.raw {
		return encodeRaw(v)
	}
	return encode(v, nil)
}

// EncodeValue encodes a value. Values that match no scalar tag fall back
// to the opaque serializer.
func (c *Codec) EncodeValue(v any) ([]byte, error) {
	if c.raw {
		return encodeRaw(v)
	}
	return encode(v, c.ser)
}

// DecodeKey decodes a stored key.
func (c *Codec) DecodeKey(b []byte) (any, error) {
	return c.decode(b)
}

// DecodeValue decodes a stored value.
func (c *Codec) DecodeValue(b []byte) (any, error) {
	return c.decode(b)
}

func (c *Codec) decode(b []byte) (any, error) {
	if c.raw {
		return bytes.Clone(b), nil
	}
	if len(b) == 0 {
		return nil, ErrTruncated
	}
	payload := b[1:]
	switch b[0] {
	case TagBytes:
		return bytes.Clone(payload), nil

	case TagText:
		if !utf8.Valid(payload) {
			return nil, ErrInvalidUTF8
		}
		return string(payload), nil

	case TagInt:
		return decodeInt(payload)

	case TagFloat:
		if len(payload) != 8 {
			return nil, ErrTruncated
		}
		return math.Float64frombits(binary.BigEndian.Uint64(payload)), nil

	case TagBool:
		if len(payload) != 1 {
			return nil, ErrTruncated
		}
		return payload[0] != 0, nil

	case TagOpaque:
		if c.ser == nil {
			return nil, fmt.Errorf("%w: opaque payload with no serializer", ErrUnsupportedType)
		}
		return c.ser.Loads(payload)

	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnknownTag, b[0])
	}
}

func encodeRaw(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidRawInput, v)
	}
	return bytes.Clone(b), nil
}

// encode produces the tagged form. ser is the opaque fallback; nil means
// unsupported types are an error (key position).
func encode(v any, ser Serializer) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return concat(TagBytes, x), nil
	case string:
		return concat(TagText, []byte(x)), nil
	case bool:
		if x {
			return []byte{TagBool, 1}, nil
		}
		return []byte{TagBool, 0}, nil
	case int:
		return encodeInt64(int64(x)), nil
	case int8:
		return encodeInt64(int64(x)), nil
	case int16:
		return encodeInt64(int64(x)), nil
	case int32:
		return encodeInt64(int64(x)), nil
	case int64:
		return encodeInt64(x), nil
	case uint8:
		return encodeInt64(int64(x)), nil
	case uint16:
		return encodeInt64(int64(x)), nil
	case uint32:
		return encodeInt64(int64(x)), nil
	case uint:
		return encodeUint64(uint64(x))
	case uint64:
		return encodeUint64(x)
	case *big.Int:
		return appendInt([]byte{TagInt}, x)
	case float64:
		return encodeFloat(x), nil
	case float32:
		return encodeFloat(float64(x)), nil
	default:
		if ser == nil {
			return nil, fmt.Errorf("%w: %T is not a valid key type", ErrUnsupportedType, v)
		}
		payload, err := ser.Dumps(v)
		if err != nil {
			return nil, err
		}
		return concat(TagOpaque, payload), nil
	}
}

func concat(tag byte, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = tag
	copy(out[1:], payload)
	return out
}

func encodeInt64(n int64) []byte {
	out, _ := appendInt([]byte{TagInt}, big.NewInt(n))
	return out
}

func encodeUint64(n uint64) ([]byte, error) {
	return appendInt([]byte{TagInt}, new(big.Int).SetUint64(n))
}

// encodeFloat stores the raw IEEE-754 big-endian bytes. This matches the
// established on-disk format: mixed-sign float keys do not sort in
// numeric order, only round-tripping is guaranteed.
func encodeFloat(f float64) []byte {
	out := make([]byte, 9)
	out[0] = TagFloat
	binary.BigEndian.PutUint64(out[1:], math.Float64bits(f))
	return out
}

// appendInt appends the order-preserving integer payload.
//
// For n >= 0 the payload is one length byte 0x80+k followed by the k
// big-endian magnitude bytes (zero is the single byte 0x80). For n < 0
// the length byte is 0x7F-k followed by the ones-complement of the
// magnitude bytes. Longer negative magnitudes get smaller length bytes
// and complemented payloads invert magnitude order, so the full payload
// compares lexicographically in numeric order across any mix of widths
// and signs.
func appendInt(dst []byte, n *big.Int) ([]byte, error) {
	mag := n.Bytes()
	if len(mag) > 0x7F {
		return nil, ErrIntegerTooLarge
	}
	k := byte(len(mag))
	if n.Sign() >= 0 {
		dst = append(dst, 0x80+k)
		return append(dst, mag...), nil
	}
	dst = append(dst, 0x7F-k)
	for _, b := range mag {
		dst = append(dst, ^b)
	}
	return dst, nil
}

// decodeInt reverses appendInt. The result is an int64 when the value
// fits, otherwise a *big.Int.
func decodeInt(payload []byte) (any, error) {
	if len(payload) == 0 {
		return nil, ErrTruncated
	}
	lead := payload[0]
	var k int
	neg := lead < 0x80
	if neg {
		k = int(0x7F - lead)
	} else {
		k = int(lead - 0x80)
	}
	if len(payload) != 1+k {
		return nil, ErrTruncated
	}
	mag := bytes.Clone(payload[1:])
	if neg {
		for i := range mag {
			mag[i] = ^mag[i]
		}
	}
	n := new(big.Int).SetBytes(mag)
	if neg {
		n.Neg(n)
	}
	if n.IsInt64() {
		return n.Int64(), nil
	}
	return n, nil
}
