package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/memtable"
	"github.com/hestiadb/engine/internal/row"
	"github.com/hestiadb/engine/internal/sstable"
)

func buildSST(t *testing.T, opts Options, schema *row.Schema, path string, rows [][]row.Datum) {
	t.Helper()
	tbl := memtable.NewTable(schema)
	mapping := row.ForSameSchema(schema.NumColumns())
	for i, datums := range rows {
		buf := &row.Buffer{}
		w := row.NewWriter(buf, schema, mapping)
		require.NoError(t, w.WriteRow(datums))
		encoded := append([]byte(nil), buf.Bytes()...)
		key := userKeyForTest(uint64(i + 1))
		tbl.Put(key, base.SequenceNumber(i+1), 0, encoded)
	}
	writer := sstable.NewWriter(opts.Store, schema)
	require.NoError(t, writer.WriteFromIterator(context.Background(), path, tbl.NewIterator()))
}

func userKeyForTest(id uint64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(id)
		id >>= 8
	}
	return buf
}

func TestIngestFilesRegistersFilesAndAdvancesFlushedSequence(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	tableOpts := testTableOptions()
	db, _, err := Open(ctx, opts, tableOpts)
	require.NoError(t, err)

	buildSST(t, opts, tableOpts[0].Schema, "external/ingest-1.sst", [][]row.Datum{
		idRow(100, "x"),
		idRow(101, "y"),
	})

	require.NoError(t, db.IngestFiles(ctx, 1, []string{"external/ingest-1.sst"}))

	ts := db.m.TableState(1)
	require.Len(t, ts.Files, 1)
	require.Equal(t, base.SequenceNumber(2), ts.FlushedSequence)

	results, err := db.Read(ctx, ScanRequest{TableID: 1})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestIngestFilesNeverRollsBackFlushedSequence(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	tableOpts := testTableOptions()
	db, _, err := Open(ctx, opts, tableOpts)
	require.NoError(t, err)

	require.NoError(t, db.Write(ctx, WriteBatch{TableID: 1, Rows: [][]row.Datum{idRow(1, "a")}}))
	require.NoError(t, db.Flush(ctx, 1))
	before := db.m.TableState(1).FlushedSequence

	buildSST(t, opts, tableOpts[0].Schema, "external/old.sst", [][]row.Datum{idRow(2, "b")})
	require.NoError(t, db.IngestFiles(ctx, 1, []string{"external/old.sst"}))

	after := db.m.TableState(1).FlushedSequence
	require.GreaterOrEqual(t, after, before)
}
