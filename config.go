package dictkv

// config.go persists the store's side metadata.
//
// The metadata is a small JSON blob next to the engine files. It records
// the raw-mode flag, the column family name to id assignment (the engine
// only knows numeric ids), the next id to allocate, and the persisted
// prefix extractor descriptors. It is loaded at open to reconcile with
// caller options and rewritten on open and on column family changes.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/pebble/vfs"
)

// ConfigFileName is the metadata file name inside the store directory.
const ConfigFileName = "dictkv-config.json"

// DefaultColumnFamilyName is the name of the default column family.
const DefaultColumnFamilyName = "default"

type storeConfig struct {
	RawMode          bool              `json:"raw_mode"`
	ColumnFamilies   map[string]uint32 `json:"column_families"`
	NextCFID         uint32            `json:"next_cf_id"`
	PrefixExtractors map[string]string `json:"prefix_extractors,omitempty"`
}

func newStoreConfig(rawMode bool) *storeConfig {
	return &storeConfig{
		RawMode:          rawMode,
		ColumnFamilies:   map[string]uint32{DefaultColumnFamilyName: 0},
		NextCFID:         1,
		PrefixExtractors: map[string]string{},
	}
}

// loadStoreConfig reads the metadata file. A missing file is not an
// error: it returns (nil, nil) so the caller creates fresh metadata.
func loadStoreConfig(fs vfs.FS, path string) (*storeConfig, error) {
	f, err := fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("dictkv: open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("dictkv: read config: %w", err)
	}
	var cfg storeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("dictkv: parse config: %w", err)
	}
	if cfg.ColumnFamilies == nil {
		cfg.ColumnFamilies = map[string]uint32{DefaultColumnFamilyName: 0}
	}
	if cfg.PrefixExtractors == nil {
		cfg.PrefixExtractors = map[string]string{}
	}
	return &cfg, nil
}

// save writes the metadata file. The write is not atomic; the config
// only changes on open and on column family management, never on the
// data path.
func (c *storeConfig) save(fs vfs.FS, path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("dictkv: marshal config: %w", err)
	}
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("dictkv: create config: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("dictkv: write config: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("dictkv: sync config: %w", err)
	}
	return f.Close()
}
