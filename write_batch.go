package dictkv

// write_batch.go implements the typed write batch.
//
// A WriteBatch accumulates mutations without touching the store; keys
// and values are encoded at insertion time, so a bad input fails fast
// and an applied batch can never half-encode. Dict.Write sends the whole
// batch to the engine as one atomic unit.

import (
	"github.com/aalhour/dictkv/internal/codec"
	"github.com/aalhour/dictkv/internal/compression"
	"github.com/aalhour/dictkv/internal/engine"
)

type batchOpKind int

const (
	opPut batchOpKind = iota
	opDelete
	opDeleteRange
)

type batchOp struct {
	kind  batchOpKind
	cf    uint32
	key   []byte
	value []byte
	end   []byte
}

// WriteBatch holds a collection of typed mutations to be applied
// atomically. A batch can be reused by calling Clear after Write. Not
// safe for concurrent use.
type WriteBatch struct {
	cod   *codec.Codec
	comp  compression.Type
	defCF uint32
	ops   []batchOp
}

// NewWriteBatch creates an empty batch. Mutations without an explicit
// column family target this Dict's column family and use its codec and
// compression settings.
func (d *Dict) NewWriteBatch() *WriteBatch {
	return &WriteBatch{cod: d.cod, comp: d.comp, defCF: d.cf.id}
}

func (wb *WriteBatch) target(cf *ColumnFamily) uint32 {
	if cf == nil {
		return wb.defCF
	}
	return cf.id
}

// Put adds a key/value pair to the batch.
func (wb *WriteBatch) Put(key, value any) error {
	return wb.PutCF(nil, key, value)
}

// PutCF adds a key/value pair targeting cf. A nil cf means the batch's
// default column family.
func (wb *WriteBatch) PutCF(cf *ColumnFamily, key, value any) error {
	ek, err := wb.cod.EncodeKey(key)
	if err != nil {
		return err
	}
	ev, err := wb.cod.EncodeValue(value)
	if err != nil {
		return err
	}
	if wb.comp != compression.None {
		if ev, err = compression.WrapValue(wb.comp, ev); err != nil {
			return err
		}
	}
	wb.ops = append(wb.ops, batchOp{kind: opPut, cf: wb.target(cf), key: ek, value: ev})
	return nil
}

// Delete adds a deletion to the batch.
func (wb *WriteBatch) Delete(key any) error {
	return wb.DeleteCF(nil, key)
}

// DeleteCF adds a deletion targeting cf.
func (wb *WriteBatch) DeleteCF(cf *ColumnFamily, key any) error {
	ek, err := wb.cod.EncodeKey(key)
	if err != nil {
		return err
	}
	wb.ops = append(wb.ops, batchOp{kind: opDelete, cf: wb.target(cf), key: ek})
	return nil
}

// DeleteRange adds a range deletion [start, end) to the batch.
func (wb *WriteBatch) DeleteRange(start, end any) error {
	return wb.DeleteRangeCF(nil, start, end)
}

// DeleteRangeCF adds a range deletion targeting cf.
func (wb *WriteBatch) DeleteRangeCF(cf *ColumnFamily, start, end any) error {
	es, err := wb.cod.EncodeKey(start)
	if err != nil {
		return err
	}
	ee, err := wb.cod.EncodeKey(end)
	if err != nil {
		return err
	}
	wb.ops = append(wb.ops, batchOp{kind: opDeleteRange, cf: wb.target(cf), key: es, end: ee})
	return nil
}

// Count returns the number of accumulated mutations.
func (wb *WriteBatch) Count() int {
	return len(wb.ops)
}

// Clear empties the batch for reuse.
func (wb *WriteBatch) Clear() {
	wb.ops = wb.ops[:0]
}

// replay feeds the accumulated mutations into an engine batch.
func (wb *WriteBatch) replay(b engine.Batch) error {
	for _, op := range wb.ops {
		var err error
		switch op.kind {
		case opPut:
			err = b.Put(op.cf, op.key, op.value)
		case opDelete:
			err = b.Delete(op.cf, op.key)
		case opDeleteRange:
			err = b.DeleteRange(op.cf, op.key, op.end)
		}
		if err != nil {
			return mapErr(err)
		}
	}
	return nil
}
