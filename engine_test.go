package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/row"
	"github.com/hestiadb/engine/internal/wal"
	"github.com/hestiadb/engine/objstore/localfs"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	store, err := localfs.New(dir)
	require.NoError(t, err)
	return Options{
		ShardID:     base.ShardID(1),
		Store:       store,
		WAL:         wal.NewKVManager(wal.NewMemKV()),
		ManifestDir: "manifest",
	}
}

func testTableOptions() []TableOptions {
	schema := &row.Schema{
		Columns: []row.Column{
			{Name: "id", Kind: row.KindUint64},
			{Name: "name", Kind: row.KindString},
		},
		PrimaryKey: []int{0},
	}
	return []TableOptions{{TableID: 1, Schema: schema}}
}

func idRow(id uint64, name string) []row.Datum {
	return []row.Datum{
		{Kind: row.KindUint64, U64: id},
		{Kind: row.KindString, Bytes: []byte(name)},
	}
}

func TestOpenCreatesTableOnFirstRun(t *testing.T) {
	ctx := context.Background()
	db, results, err := Open(ctx, testOptions(t), testTableOptions())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, base.TableID(1), results[0].TableID)
	require.NoError(t, results[0].Err)
	require.NotNil(t, db)
}

func TestWriteThenReadReturnsRowsFromMemtable(t *testing.T) {
	ctx := context.Background()
	db, _, err := Open(ctx, testOptions(t), testTableOptions())
	require.NoError(t, err)

	require.NoError(t, db.Write(ctx, WriteBatch{TableID: 1, Rows: [][]row.Datum{
		idRow(1, "alice"),
		idRow(2, "bob"),
	}}))

	results, err := db.Read(ctx, ScanRequest{TableID: 1})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestWriteThenOverwriteShadowsOlderValue(t *testing.T) {
	ctx := context.Background()
	db, _, err := Open(ctx, testOptions(t), testTableOptions())
	require.NoError(t, err)

	require.NoError(t, db.Write(ctx, WriteBatch{TableID: 1, Rows: [][]row.Datum{idRow(1, "v1")}}))
	require.NoError(t, db.Write(ctx, WriteBatch{TableID: 1, Rows: [][]row.Datum{idRow(1, "v2")}}))

	results, err := db.Read(ctx, ScanRequest{TableID: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "v2", results[0].Row.At(1).Str)
}

func TestFlushPersistsRowsAndReadSeesThemAfterReopen(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	db, _, err := Open(ctx, opts, testTableOptions())
	require.NoError(t, err)

	require.NoError(t, db.Write(ctx, WriteBatch{TableID: 1, Rows: [][]row.Datum{idRow(1, "alice")}}))
	require.NoError(t, db.Flush(ctx, 1))

	db2, _, err := Open(ctx, opts, testTableOptions())
	require.NoError(t, err)
	results, err := db2.Read(ctx, ScanRequest{TableID: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "alice", results[0].Row.At(1).Str)
}

func TestWriteAutoFlushesPastThreshold(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	opts.MemtableFlushThreshold = 1
	db, _, err := Open(ctx, opts, testTableOptions())
	require.NoError(t, err)

	require.NoError(t, db.Write(ctx, WriteBatch{TableID: 1, Rows: [][]row.Datum{idRow(1, "alice")}}))

	ts := db.m.TableState(1)
	require.NotEmpty(t, ts.Files)
}

func TestReadAtSnapshotSeesOlderVersion(t *testing.T) {
	ctx := context.Background()
	db, _, err := Open(ctx, testOptions(t), testTableOptions())
	require.NoError(t, err)

	require.NoError(t, db.Write(ctx, WriteBatch{TableID: 1, Rows: [][]row.Datum{idRow(1, "v1")}}))
	_, s1 := db.tables[1].memtable.LayersNewestFirst()[0].SequenceRange()

	require.NoError(t, db.Write(ctx, WriteBatch{TableID: 1, Rows: [][]row.Datum{idRow(1, "v2")}}))

	atS1, err := db.Read(ctx, ScanRequest{TableID: 1, SnapshotSeq: s1})
	require.NoError(t, err)
	require.Len(t, atS1, 1)
	require.Equal(t, "v1", atS1[0].Row.At(1).Str)

	latest, err := db.Read(ctx, ScanRequest{TableID: 1})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.Equal(t, "v2", latest[0].Row.At(1).Str)
}

func TestReadUnknownTableErrors(t *testing.T) {
	ctx := context.Background()
	db, _, err := Open(ctx, testOptions(t), testTableOptions())
	require.NoError(t, err)

	_, err = db.Read(ctx, ScanRequest{TableID: 999})
	require.Error(t, err)
}

func TestChangeRoleIsNotImplemented(t *testing.T) {
	ctx := context.Background()
	db, _, err := Open(ctx, testOptions(t), testTableOptions())
	require.NoError(t, err)

	_, err = db.ChangeRole(ctx, ChangeRoleRequest{TableID: 1, To: 1})
	require.Error(t, err)
}
