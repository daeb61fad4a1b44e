package compression

import (
	"bytes"
	"testing"
)

// TestWrapUnwrapRoundTrip checks every supported codec round-trips and
// produces a distinguishable envelope.
func TestWrapUnwrapRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 50)

	for _, ct := range []Type{None, Snappy, Zstd, LZ4} {
		t.Run(ct.String(), func(t *testing.T) {
			wrapped, err := WrapValue(ct, payload)
			if err != nil {
				t.Fatalf("WrapValue: %v", err)
			}
			if ct != None {
				if wrapped[0] != envelopeMask|byte(ct) {
					t.Errorf("envelope byte = %#x, want %#x", wrapped[0], envelopeMask|byte(ct))
				}
				if len(wrapped) >= len(payload) {
					t.Errorf("compressible payload did not shrink: %d -> %d", len(payload), len(wrapped))
				}
			}
			got, err := UnwrapValue(wrapped)
			if err != nil {
				t.Fatalf("UnwrapValue: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("round-trip mismatch")
			}
		})
	}
}

// TestUnwrapPassThrough checks values without an envelope are untouched.
func TestUnwrapPassThrough(t *testing.T) {
	for _, in := range [][]byte{nil, {}, {1, 2, 3}, {0x06, 0xAA}, {0xEF}} {
		got, err := UnwrapValue(in)
		if err != nil {
			t.Fatalf("UnwrapValue(% x): %v", in, err)
		}
		if !bytes.Equal(got, in) {
			t.Errorf("UnwrapValue(% x) = % x", in, got)
		}
	}
}

// TestUnwrapCorrupt checks bad envelopes surface ErrCorrupt.
func TestUnwrapCorrupt(t *testing.T) {
	cases := [][]byte{
		{0xFF, 1, 2},             // unknown codec nibble
		{0xF0},                   // envelope claiming None
		{0xF1, 0xDE, 0xAD, 0x01}, // not valid snappy
	}
	for _, in := range cases {
		if _, err := UnwrapValue(in); err == nil {
			t.Errorf("UnwrapValue(% x) succeeded, want ErrCorrupt", in)
		}
	}
}
