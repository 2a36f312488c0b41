package sstable

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/golang/snappy"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/memtable"
	"github.com/hestiadb/engine/internal/row"
	"github.com/hestiadb/engine/objstore"
)

// RowGroupTargetRows bounds how many rows a single row group holds before
// the writer seals it and starts a new one.
const RowGroupTargetRows = 8192

// Writer builds an SST from a sorted stream of memtable entries: rows are
// batched into row groups, each snappy-compressed and bloom-filtered over
// its primary keys, followed by a gob-encoded MetaData footer.
type Writer struct {
	store  objstore.Store
	schema *row.Schema
}

// NewWriter creates a Writer for the given table schema, writing through
// store.
func NewWriter(store objstore.Store, schema *row.Schema) *Writer {
	return &Writer{store: store, schema: schema}
}

// WriteFromIterator drains it, producing one SST at path.
func (w *Writer) WriteFromIterator(ctx context.Context, path string, it *memtable.Iterator) error {
	var body []byte
	var rowGroups []RowGroupInfo
	var globalMin, globalMax []byte
	var globalMinSeq = base.MaxSequenceNumber
	var globalMaxSeq base.SequenceNumber
	totalRows := 0

	var pending [][]byte
	var pendingKeys [][]byte
	var pendingMinSeq = base.MaxSequenceNumber
	var pendingMaxSeq base.SequenceNumber

	flushGroup := func() error {
		if len(pending) == 0 {
			return nil
		}
		block := encodeRowGroup(pending)
		compressed := snappy.Encode(nil, block)

		bloom := NewBloomFilter(len(pendingKeys), 0.01)
		for _, k := range pendingKeys {
			bloom.Add(k)
		}

		info := RowGroupInfo{
			Offset:  uint64(len(body)),
			Length:  uint64(len(compressed)),
			NumRows: len(pending),
			MinPK:   pendingKeys[0],
			MaxPK:   pendingKeys[len(pendingKeys)-1],
			MinSeq:  pendingMinSeq,
			MaxSeq:  pendingMaxSeq,
			PKBloom: bloom,
		}
		rowGroups = append(rowGroups, info)
		body = append(body, compressed...)
		totalRows += len(pending)

		if globalMin == nil || bytes.Compare(pendingKeys[0], globalMin) < 0 {
			globalMin = pendingKeys[0]
		}
		if globalMax == nil || bytes.Compare(pendingKeys[len(pendingKeys)-1], globalMax) > 0 {
			globalMax = pendingKeys[len(pendingKeys)-1]
		}
		if pendingMinSeq < globalMinSeq {
			globalMinSeq = pendingMinSeq
		}
		if pendingMaxSeq > globalMaxSeq {
			globalMaxSeq = pendingMaxSeq
		}

		pending = nil
		pendingKeys = nil
		pendingMinSeq = base.MaxSequenceNumber
		pendingMaxSeq = 0
		return nil
	}

	for it.Next() {
		if err := ctx.Err(); err != nil {
			return base.WithKind(err, base.KindCancelled)
		}
		e := it.Entry()
		pending = append(pending, e.Row)
		pendingKeys = append(pendingKeys, e.Key.UserKey)
		if e.Key.Seq.Sequence < pendingMinSeq {
			pendingMinSeq = e.Key.Seq.Sequence
		}
		if e.Key.Seq.Sequence > pendingMaxSeq {
			pendingMaxSeq = e.Key.Seq.Sequence
		}
		if len(pending) >= RowGroupTargetRows {
			if err := flushGroup(); err != nil {
				return err
			}
		}
	}
	if err := flushGroup(); err != nil {
		return err
	}

	meta := &MetaData{
		Schema:    w.schema,
		MinPK:     globalMin,
		MaxPK:     globalMax,
		MinSeq:    globalMinSeq,
		MaxSeq:    globalMaxSeq,
		RowGroups: rowGroups,
		NumRows:   totalRows,
	}
	footer, err := meta.Encode()
	if err != nil {
		return err
	}
	body = append(body, footer...)

	return w.store.Put(ctx, path, body)
}

// encodeRowGroup concatenates length-prefixed row payloads into one block.
func encodeRowGroup(rows [][]byte) []byte {
	var out []byte
	var lenBuf [4]byte
	for _, r := range rows {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(r)))
		out = append(out, lenBuf[:]...)
		out = append(out, r...)
	}
	return out
}

// decodeRowGroup reverses encodeRowGroup.
func decodeRowGroup(block []byte) [][]byte {
	var out [][]byte
	for off := 0; off+4 <= len(block); {
		n := binary.LittleEndian.Uint32(block[off : off+4])
		off += 4
		out = append(out, block[off:off+int(n)])
		off += int(n)
	}
	return out
}
