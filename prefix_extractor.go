package dictkv

// prefix_extractor.go implements prefix extractors for prefix seek
// optimization.
//
// When a prefix extractor is configured, the engine indexes keys by
// prefix so Seek(prefix) + Next() iterates a prefix efficiently. The
// extractor's descriptor is persisted in the store metadata; a per-store
// registry of factories reconstructs it at reopen. The registry is owned
// by the store instance, never process-global, so two stores can carry
// different extractor sets without interfering.

import (
	"fmt"
	"strconv"
	"strings"
)

// PrefixExtractor extracts prefixes from encoded keys.
//
// Together the extractor and byte-wise key order must satisfy: all keys
// with the same prefix are contiguous. Both built-in extractors qualify.
type PrefixExtractor interface {
	// Name returns a unique identifier for this extractor.
	Name() string

	// Transform extracts the prefix. The returned slice may reference
	// the input key's memory.
	// REQUIRES: InDomain(key) == true
	Transform(key []byte) []byte

	// InDomain reports whether the key has a valid prefix. Out-of-domain
	// keys are not prefix-indexed.
	InDomain(key []byte) bool
}

// describable extractors persist across reopens. Descriptor returns
// "kind:length" and is matched against the registry.
type describable interface {
	Descriptor() string
}

// FixedPrefixExtractor uses the first n bytes of each key as the prefix.
// Keys shorter than n bytes are out of domain.
type FixedPrefixExtractor struct {
	prefixLen int
}

// NewFixedPrefixExtractor creates a prefix extractor that uses the first
// n bytes.
func NewFixedPrefixExtractor(prefixLen int) *FixedPrefixExtractor {
	if prefixLen <= 0 {
		prefixLen = 1
	}
	return &FixedPrefixExtractor{prefixLen: prefixLen}
}

// Name returns the extractor name.
func (e *FixedPrefixExtractor) Name() string {
	return "dictkv.FixedPrefix"
}

// Transform extracts the prefix from the key.
func (e *FixedPrefixExtractor) Transform(key []byte) []byte {
	if len(key) < e.prefixLen {
		return key
	}
	return key[:e.prefixLen]
}

// InDomain returns true if the key has at least prefixLen bytes.
func (e *FixedPrefixExtractor) InDomain(key []byte) bool {
	return len(key) >= e.prefixLen
}

// Descriptor returns the persisted form.
func (e *FixedPrefixExtractor) Descriptor() string {
	return fmt.Sprintf("fixed:%d", e.prefixLen)
}

// CappedPrefixExtractor uses min(n, len(key)) bytes as the prefix.
// All keys are in domain.
type CappedPrefixExtractor struct {
	capLen int
}

// NewCappedPrefixExtractor creates a prefix extractor that uses up to
// n bytes.
func NewCappedPrefixExtractor(capLen int) *CappedPrefixExtractor {
	if capLen <= 0 {
		capLen = 1
	}
	return &CappedPrefixExtractor{capLen: capLen}
}

// Name returns the extractor name.
func (e *CappedPrefixExtractor) Name() string {
	return "dictkv.CappedPrefix"
}

// Transform extracts the prefix from the key.
func (e *CappedPrefixExtractor) Transform(key []byte) []byte {
	if len(key) <= e.capLen {
		return key
	}
	return key[:e.capLen]
}

// InDomain always returns true for capped prefix extractor.
func (e *CappedPrefixExtractor) InDomain(key []byte) bool {
	return true
}

// Descriptor returns the persisted form.
func (e *CappedPrefixExtractor) Descriptor() string {
	return fmt.Sprintf("capped:%d", e.capLen)
}

// prefixRegistry maps descriptor kinds to extractor factories. One per
// store instance.
type prefixRegistry map[string]func(length int) PrefixExtractor

func newPrefixRegistry(extra map[string]func(length int) PrefixExtractor) prefixRegistry {
	r := prefixRegistry{
		"fixed":  func(n int) PrefixExtractor { return NewFixedPrefixExtractor(n) },
		"capped": func(n int) PrefixExtractor { return NewCappedPrefixExtractor(n) },
	}
	for kind, f := range extra {
		r[kind] = f
	}
	return r
}

// resolve reconstructs an extractor from its persisted "kind:length"
// descriptor.
func (r prefixRegistry) resolve(desc string) (PrefixExtractor, error) {
	kind, lenStr, ok := strings.Cut(desc, ":")
	if !ok {
		return nil, fmt.Errorf("dictkv: malformed prefix extractor descriptor %q", desc)
	}
	factory, ok := r[kind]
	if !ok {
		return nil, fmt.Errorf("dictkv: unknown prefix extractor kind %q", kind)
	}
	n, err := strconv.Atoi(lenStr)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("dictkv: invalid prefix extractor length in %q", desc)
	}
	return factory(n), nil
}

// describeExtractor returns the persisted descriptor, if the extractor
// has one. Custom extractors without a Descriptor are used but not
// persisted.
func describeExtractor(pe PrefixExtractor) (string, bool) {
	d, ok := pe.(describable)
	if !ok {
		return "", false
	}
	return d.Descriptor(), true
}

// prefixSplit adapts an extractor to the engine's split hook.
func prefixSplit(pe PrefixExtractor) func(key []byte) int {
	return func(key []byte) int {
		if !pe.InDomain(key) {
			return len(key)
		}
		return len(pe.Transform(key))
	}
}
