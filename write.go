package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/manifest"
	"github.com/hestiadb/engine/internal/row"
	"github.com/hestiadb/engine/internal/sstable"
	"github.com/hestiadb/engine/internal/wal"
)

// replayWAL restores t's mutable memtable by replaying every WAL entry past
// ts.FlushedSequence, the data-recovery phase of the shard-open state
// machine.
func (db *DB) replayWAL(ctx context.Context, t *table, ts *manifest.TableState) error {
	start := wal.Min()
	if ts != nil && ts.FlushedSequence > base.MinSequenceNumber {
		start = wal.Excluded(ts.FlushedSequence)
	}
	it, err := db.opts.WAL.Read(ctx, wal.ReadRequest{Location: t.wloc, Start: start, End: wal.Max()})
	if err != nil {
		return err
	}
	defer it.Close()

	idx := base.RowIndex(0)
	for {
		batch, err := it.NextBatch(ctx)
		if err != nil {
			return err
		}
		if batch == nil {
			return nil
		}
		for _, e := range batch {
			decoded, err := row.NewRow(e.Payload, t.schema)
			if err != nil {
				return err
			}
			userKey := primaryKeyBytes(decoded, t.schema)
			t.memtable.Put(userKey, e.Sequence, idx, e.Payload)
		}
	}
}

// WriteBatch is one set of rows passed to a single WAL Write: all rows
// receive contiguous sequence numbers. The WAL persists each row as its own
// record, so the batch is not written atomically.
type WriteBatch struct {
	TableID base.TableID
	Rows    [][]row.Datum
}

// Write encodes and durably appends batch's rows, then inserts them into
// the table's mutable memtable layer, flushing automatically if the layer
// has grown past opts.MemtableFlushThreshold.
func (db *DB) Write(ctx context.Context, batch WriteBatch) error {
	start := time.Now()
	defer func() { db.metrics.ObserveWriteLatency(time.Since(start)) }()

	db.mu.RLock()
	t, ok := db.tables[batch.TableID]
	db.mu.RUnlock()
	if !ok {
		return base.WithKind(fmt.Errorf("engine: unknown table %d", batch.TableID), base.KindInputViolation)
	}

	payloads := make([][]byte, len(batch.Rows))
	mapping := row.ForSameSchema(t.schema.NumColumns())
	for i, datums := range batch.Rows {
		buf := &row.Buffer{}
		w := row.NewWriter(buf, t.schema, mapping)
		if err := w.WriteRow(datums); err != nil {
			return err
		}
		payloads[i] = append([]byte(nil), buf.Bytes()...)
	}

	resp, err := db.opts.WAL.Write(ctx, wal.WriteRequest{Location: t.wloc, Payloads: payloads})
	if err != nil {
		return err
	}

	t.mu.Lock()
	for i, payload := range payloads {
		decoded, err := row.NewRow(payload, t.schema)
		if err != nil {
			t.mu.Unlock()
			return err
		}
		userKey := primaryKeyBytes(decoded, t.schema)
		t.memtable.Put(userKey, resp.Sequences[i], base.RowIndex(i), payload)
	}
	t.mu.Unlock()

	db.metrics.WritesTotal.WithLabelValues(fmt.Sprint(batch.TableID)).Add(float64(len(batch.Rows)))
	db.metrics.MemtableBytes.WithLabelValues(fmt.Sprint(batch.TableID)).Set(float64(t.memtable.ApproximateMemoryUsage()))

	if t.memtable.ApproximateMemoryUsage() > db.opts.MemtableFlushThreshold {
		return db.Flush(ctx, batch.TableID)
	}
	return nil
}

// Flush seals the table's mutable memtable layer and writes it out as a new
// SST, registering it (and the sequence number it covers) in the manifest.
func (db *DB) Flush(ctx context.Context, tableID base.TableID) error {
	db.mu.RLock()
	t, ok := db.tables[tableID]
	db.mu.RUnlock()
	if !ok {
		return base.WithKind(fmt.Errorf("engine: unknown table %d", tableID), base.KindInputViolation)
	}

	sealed := t.memtable.Seal()
	if sealed.Len() == 0 {
		t.memtable.DropFlushed(sealed)
		return nil
	}

	path := fmt.Sprintf("%s/tables/%d/%s.sst", db.opts.ManifestDir, tableID, newFileName())
	w := sstable.NewWriter(db.opts.Store, t.schema)
	if err := w.WriteFromIterator(ctx, path, sealed.NewIterator()); err != nil {
		return err
	}

	minSeq, maxSeq := sealed.SequenceRange()
	fileID := newFileID()
	if err := db.m.Apply(ctx, manifest.Edit{
		Kind:    manifest.EditAddFiles,
		TableID: tableID,
		AddedFiles: []manifest.FileMeta{{
			FileID:  fileID,
			Path:    path,
			MinSeq:  minSeq,
			MaxSeq:  maxSeq,
			NumRows: sealed.Len(),
		}},
	}); err != nil {
		return err
	}
	if err := db.m.Apply(ctx, manifest.Edit{
		Kind:            manifest.EditSetFlushedSequence,
		TableID:         tableID,
		FlushedSequence: maxSeq,
	}); err != nil {
		return err
	}

	t.memtable.DropFlushed(sealed)
	db.metrics.FlushesTotal.WithLabelValues(fmt.Sprint(tableID)).Inc()
	return nil
}

func primaryKeyBytes(r *row.Row, schema *row.Schema) []byte {
	var buf []byte
	for _, idx := range schema.PrimaryKeyIndexes() {
		buf = append(buf, []byte(r.At(idx).String())...)
	}
	return buf
}

var fileIDCounter uint64

func newFileID() uint64 {
	return atomic.AddUint64(&fileIDCounter, 1)
}

func newFileName() string {
	return fmt.Sprintf("%020d", newFileID())
}
