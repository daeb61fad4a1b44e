package dictkv

// column_family.go implements column family management.
//
// Column families logically partition the store. The engine realizes
// them as disjoint key spans under numeric ids; the name to id
// assignment lives in the persisted store metadata. A ColumnFamily is a
// capability token: it pins the engine alive through its own holder
// reference and scopes write batch mutations.

import (
	"fmt"
	"sort"

	"github.com/aalhour/dictkv/internal/codec"
	"github.com/aalhour/dictkv/internal/logging"
)

// ColumnFamily is a reference to one column family. It keeps the engine
// alive until Close.
type ColumnFamily struct {
	name   string
	id     uint32
	holder *engineHolder
}

func newColumnFamily(name string, id uint32, holder *engineHolder) *ColumnFamily {
	return &ColumnFamily{name: name, id: id, holder: holder}
}

// Name returns the column family name.
func (cf *ColumnFamily) Name() string { return cf.name }

// ID returns the engine-level column family id.
func (cf *ColumnFamily) ID() uint32 { return cf.id }

// Close releases the token's engine reference. Idempotent.
func (cf *ColumnFamily) Close() error {
	return cf.holder.close()
}

// scoped builds a Dict bound to the given column family, sharing this
// Dict's store state but owning fresh engine references.
func (d *Dict) scoped(name string, id uint32, o ColumnFamilyOptions) (*Dict, error) {
	h, err := d.holder.clone()
	if err != nil {
		return nil, err
	}
	cfHolder, err := d.holder.clone()
	if err != nil {
		h.close()
		return nil, err
	}

	cod := d.cod
	if o.Serializer != nil {
		cod = codec.New(d.cod.Raw(), o.Serializer)
	}
	comp := d.comp
	if o.Compression != NoCompression {
		comp = o.Compression.internal()
	}

	nd := &Dict{
		holder: h,
		st:     d.st,
		cf:     newColumnFamily(name, id, cfHolder),
		cod:    cod,
		comp:   comp,
		logger: d.logger,
	}
	nd.SetWriteOptions(WriteOptions{Sync: d.syncWrites()})
	return nd, nil
}

// CreateColumnFamily creates a new column family and returns a Dict
// scoped to it. The assignment is recorded in the store metadata.
func (d *Dict) CreateColumnFamily(name string, o ColumnFamilyOptions) (*Dict, error) {
	if _, err := d.holder.get(); err != nil {
		return nil, err
	}
	st := d.st
	if st.ro {
		return nil, ErrReadOnly
	}

	st.mu.Lock()
	if _, ok := st.cfg.ColumnFamilies[name]; ok {
		st.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrColumnFamilyExists, name)
	}
	id := st.cfg.NextCFID
	st.cfg.ColumnFamilies[name] = id
	st.cfg.NextCFID = id + 1
	err := st.cfg.save(st.fs, st.cfgPath)
	if err != nil {
		delete(st.cfg.ColumnFamilies, name)
		st.cfg.NextCFID = id
		st.mu.Unlock()
		return nil, err
	}
	st.mu.Unlock()

	d.logger.Infof(logging.NSCF+"created column family %q (id %d)", name, id)
	return d.scoped(name, id, o)
}

// GetColumnFamily returns a Dict scoped to an existing column family.
func (d *Dict) GetColumnFamily(name string) (*Dict, error) {
	return d.GetColumnFamilyWithOptions(name, ColumnFamilyOptions{})
}

// GetColumnFamilyWithOptions is GetColumnFamily with per-handle
// overrides of the store's serializer and compression.
func (d *Dict) GetColumnFamilyWithOptions(name string, o ColumnFamilyOptions) (*Dict, error) {
	if _, err := d.holder.get(); err != nil {
		return nil, err
	}
	st := d.st
	st.mu.Lock()
	id, ok := st.cfg.ColumnFamilies[name]
	st.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnFamilyNotFound, name)
	}
	return d.scoped(name, id, o)
}

// DropColumnFamily removes a column family and all of its data. Handles
// already scoped to it keep working against an empty key space until
// closed; new lookups of the name fail.
func (d *Dict) DropColumnFamily(name string) error {
	if name == DefaultColumnFamilyName {
		return ErrCannotDropDefaultCF
	}
	eng, err := d.holder.get()
	if err != nil {
		return err
	}
	st := d.st
	if st.ro {
		return ErrReadOnly
	}

	st.mu.Lock()
	id, ok := st.cfg.ColumnFamilies[name]
	if !ok {
		st.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrColumnFamilyNotFound, name)
	}
	delete(st.cfg.ColumnFamilies, name)
	if err := st.cfg.save(st.fs, st.cfgPath); err != nil {
		st.cfg.ColumnFamilies[name] = id
		st.mu.Unlock()
		return err
	}
	st.mu.Unlock()

	if err := eng.DropColumnFamily(id, d.syncWrites()); err != nil {
		return mapErr(err)
	}
	st.rows.Invalidate()
	d.logger.Infof(logging.NSCF+"dropped column family %q (id %d)", name, id)
	return nil
}

// ColumnFamilies returns the names of all column families of the open
// store, sorted.
func (d *Dict) ColumnFamilies() ([]string, error) {
	if _, err := d.holder.get(); err != nil {
		return nil, err
	}
	st := d.st
	st.mu.Lock()
	names := make([]string, 0, len(st.cfg.ColumnFamilies))
	for name := range st.cfg.ColumnFamilies {
		names = append(names, name)
	}
	st.mu.Unlock()
	sort.Strings(names)
	return names, nil
}
