package sstable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/memtable"
	"github.com/hestiadb/engine/internal/row"
	"github.com/hestiadb/engine/objstore/localfs"
)

func testSchema() *row.Schema {
	return &row.Schema{
		Columns: []row.Column{
			{Name: "id", Kind: row.KindUint64},
			{Name: "name", Kind: row.KindString},
		},
		PrimaryKey: []int{0},
	}
}

func buildTable(t *testing.T, schema *row.Schema, n int) *memtable.Table {
	tbl := memtable.NewTable(schema)
	for i := 0; i < n; i++ {
		buf := &row.Buffer{}
		w := row.NewWriter(buf, schema, row.ForSameSchema(schema.NumColumns()))
		require.NoError(t, w.WriteRow([]row.Datum{
			{Kind: row.KindUint64, U64: uint64(i)},
			{Kind: row.KindString, Bytes: []byte("name")},
		}))
		userKey := make([]byte, 8)
		for j := 0; j < 8; j++ {
			userKey[j] = byte(i >> (8 * (7 - j)))
		}
		tbl.Put(userKey, base.SequenceNumber(i+1), 0, append([]byte(nil), buf.Bytes()...))
	}
	return tbl
}

func TestWriterReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := localfs.New(dir)
	require.NoError(t, err)

	schema := testSchema()
	tbl := buildTable(t, schema, RowGroupTargetRows+10)

	w := NewWriter(store, schema)
	ctx := context.Background()
	require.NoError(t, w.WriteFromIterator(ctx, "000001.sst", tbl.NewIterator()))

	reader := NewReader(store, NewMetaCache(), nil, "000001.sst")
	rows, err := reader.Scan(ctx, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, RowGroupTargetRows+10)
}

func TestReaderPrunesByPrimaryKey(t *testing.T) {
	dir := t.TempDir()
	store, err := localfs.New(dir)
	require.NoError(t, err)

	schema := testSchema()
	tbl := buildTable(t, schema, 100)

	w := NewWriter(store, schema)
	ctx := context.Background()
	require.NoError(t, w.WriteFromIterator(ctx, "000002.sst", tbl.NewIterator()))

	reader := NewReader(store, NewMetaCache(), nil, "000002.sst")
	target := make([]byte, 8)
	target[7] = 5
	rows, err := reader.Scan(ctx, target, target, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, uint64(5), rows[0].At(0).U64)
}
