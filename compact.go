package engine

import (
	"context"
	"fmt"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/compaction"
	"github.com/hestiadb/engine/internal/manifest"
	"github.com/hestiadb/engine/internal/memtable"
	"github.com/hestiadb/engine/internal/row"
	"github.com/hestiadb/engine/internal/sstable"
)

// mergeTaskWithMetrics wraps mergeTask to count failed compaction attempts,
// the counterpart to mergeTask's own CompactionsTotal increment on success.
func (db *DB) mergeTaskWithMetrics(ctx context.Context, task compaction.Task) (manifest.FileMeta, error) {
	out, err := db.mergeTask(ctx, task)
	if err != nil {
		db.metrics.CompactionFailures.WithLabelValues(fmt.Sprint(task.TableID)).Inc()
	}
	return out, err
}

// mergeTask is the compaction.Merger that mergeTaskWithMetrics (the one Open
// registers with the DB's Scheduler) wraps: it merges task's input SSTs, keeping only the highest-sequence version of
// each primary key (the same shadowing rule the memtable applies), and
// writes the result as one new SST.
func (db *DB) mergeTask(ctx context.Context, task compaction.Task) (manifest.FileMeta, error) {
	db.mu.RLock()
	t, ok := db.tables[task.TableID]
	db.mu.RUnlock()
	if !ok {
		return manifest.FileMeta{}, fmt.Errorf("engine: unknown table %d", task.TableID)
	}

	type kept struct {
		seq     base.SequenceNumber
		payload []byte
	}
	latest := make(map[string]kept)

	for _, in := range task.Inputs {
		reader := sstable.NewReader(db.opts.Store, db.metaC, cacheAdapter(db.cache), in.Path)
		rows, err := reader.Scan(ctx, nil, nil, nil)
		if err != nil {
			return manifest.FileMeta{}, err
		}
		for _, r := range rows {
			full := r.Underlying()
			pk := primaryKeyBytes(full, t.schema)

			buf := &row.Buffer{}
			w := row.NewWriter(buf, t.schema, row.ForSameSchema(t.schema.NumColumns()))
			datums := make([]row.Datum, t.schema.NumColumns())
			for i := range datums {
				datums[i] = viewToDatum(full.At(i))
			}
			if err := w.WriteRow(datums); err != nil {
				return manifest.FileMeta{}, err
			}

			if existing, ok := latest[string(pk)]; !ok || in.MaxSeq >= existing.seq {
				latest[string(pk)] = kept{seq: in.MaxSeq, payload: append([]byte(nil), buf.Bytes()...)}
			}
		}
	}

	scratch := memtable.NewTable(t.schema)
	idx := base.RowIndex(0)
	for pk, k := range latest {
		scratch.Put([]byte(pk), k.seq, idx, k.payload)
	}

	path := fmt.Sprintf("%s/tables/%d/%s.sst", db.opts.ManifestDir, task.TableID, newFileName())
	w := sstable.NewWriter(db.opts.Store, t.schema)
	if err := w.WriteFromIterator(ctx, path, scratch.NewIterator()); err != nil {
		return manifest.FileMeta{}, err
	}

	out := sstable.NewReader(db.opts.Store, db.metaC, cacheAdapter(db.cache), path)
	meta, err := ingestLoadMeta(ctx, out)
	if err != nil {
		return manifest.FileMeta{}, err
	}

	db.metrics.CompactionsTotal.WithLabelValues(fmt.Sprint(task.TableID)).Inc()
	return manifest.FileMeta{
		FileID:  newFileID(),
		Path:    path,
		MinPK:   meta.MinPK,
		MaxPK:   meta.MaxPK,
		MinSeq:  meta.MinSeq,
		MaxSeq:  meta.MaxSeq,
		NumRows: meta.NumRows,
	}, nil
}

// viewToDatum converts a decoded read-side View back into a write-side
// Datum, used when compaction re-encodes surviving rows into a merged SST.
func viewToDatum(v row.View) row.Datum {
	if v.IsNull {
		return row.Datum{Kind: row.KindNull}
	}
	switch v.Kind {
	case row.KindString:
		return row.Datum{Kind: v.Kind, Bytes: []byte(v.Str)}
	case row.KindVarbinary:
		return row.Datum{Kind: v.Kind, Bytes: v.Bytes}
	case row.KindDouble:
		return row.Datum{Kind: v.Kind, F64: v.F64}
	case row.KindFloat:
		return row.Datum{Kind: v.Kind, F32: v.F32}
	case row.KindBoolean:
		return row.Datum{Kind: v.Kind, Bool: v.Bool}
	case row.KindUint64, row.KindUint32, row.KindUint16, row.KindUint8:
		return row.Datum{Kind: v.Kind, U64: v.U64}
	default:
		return row.Datum{Kind: v.Kind, I64: v.I64}
	}
}
