package row

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchema() *Schema {
	return &Schema{
		Columns: []Column{
			{Name: "id", Kind: KindUint64},
			{Name: "ts", Kind: KindTimestamp},
			{Name: "name", Kind: KindString},
			{Name: "score", Kind: KindDouble},
			{Name: "active", Kind: KindBoolean},
		},
		PrimaryKey: []int{0},
	}
}

func TestWriteRowNoNulls(t *testing.T) {
	schema := testSchema()
	datums := []Datum{
		{Kind: KindUint64, U64: 42},
		{Kind: KindTimestamp, I64: 1000},
		{Kind: KindString, Bytes: []byte("hello")},
		{Kind: KindDouble, F64: 3.5},
		{Kind: KindBoolean, Bool: true},
	}

	buf := &Buffer{}
	w := NewWriter(buf, schema, ForSameSchema(schema.NumColumns()))
	require.NoError(t, w.WriteRow(datums))

	rr, err := NewRow(buf.Bytes(), schema)
	require.NoError(t, err)

	require.False(t, rr.At(0).IsNull)
	require.Equal(t, uint64(42), rr.At(0).U64)
	require.Equal(t, int64(1000), rr.At(1).I64)
	require.Equal(t, "hello", rr.At(2).Str)
	require.Equal(t, 3.5, rr.At(3).F64)
	require.Equal(t, true, rr.At(4).Bool)
}

func TestWriteRowWithNulls(t *testing.T) {
	schema := testSchema()
	datums := []Datum{
		{Kind: KindUint64, U64: 7},
		{Kind: KindNull},
		{Kind: KindString, Bytes: []byte("world")},
		{Kind: KindNull},
		{Kind: KindBoolean, Bool: false},
	}

	buf := &Buffer{}
	w := NewWriter(buf, schema, ForSameSchema(schema.NumColumns()))
	require.NoError(t, w.WriteRow(datums))

	rr, err := NewRow(buf.Bytes(), schema)
	require.NoError(t, err)

	require.Equal(t, uint64(7), rr.At(0).U64)
	require.True(t, rr.At(1).IsNull)
	require.Equal(t, "world", rr.At(2).Str)
	require.True(t, rr.At(3).IsNull)
	require.Equal(t, false, rr.At(4).Bool)
}

func TestProjectedRow(t *testing.T) {
	schema := testSchema()
	datums := []Datum{
		{Kind: KindUint64, U64: 1},
		{Kind: KindTimestamp, I64: 2},
		{Kind: KindString, Bytes: []byte("x")},
		{Kind: KindDouble, F64: 9.0},
		{Kind: KindBoolean, Bool: true},
	}
	buf := &Buffer{}
	w := NewWriter(buf, schema, ForSameSchema(schema.NumColumns()))
	require.NoError(t, w.WriteRow(datums))

	rr, err := NewRow(buf.Bytes(), schema)
	require.NoError(t, err)

	proj := NewProjected(rr, []int{2, 0})
	require.Equal(t, 2, proj.NumColumns())
	require.Equal(t, "x", proj.At(0).Str)
	require.Equal(t, uint64(1), proj.At(1).U64)
}

func TestWriteRowOversizedString(t *testing.T) {
	schema := &Schema{Columns: []Column{{Name: "s", Kind: KindString}}, PrimaryKey: []int{0}}
	datums := []Datum{{Kind: KindString, Bytes: make([]byte, MaxStringLen+1)}}

	buf := &Buffer{}
	w := NewWriter(buf, schema, ForSameSchema(schema.NumColumns()))
	err := w.WriteRow(datums)
	require.Error(t, err)
}

func TestIndexInWriterSchemaSubset(t *testing.T) {
	tableSchema := testSchema()
	// writer only carries id and name, in that order.
	mapping := []int{0, -1, 1, -1, -1}
	idx := NewIndexInWriterSchema(mapping)

	writerDatums := []Datum{
		{Kind: KindUint64, U64: 99},
		{Kind: KindString, Bytes: []byte("partial")},
	}
	buf := &Buffer{}
	w := NewWriter(buf, tableSchema, idx)
	require.NoError(t, w.WriteRow(writerDatums))

	rr, err := NewRow(buf.Bytes(), tableSchema)
	require.NoError(t, err)
	require.Equal(t, uint64(99), rr.At(0).U64)
	require.True(t, rr.At(1).IsNull)
	require.Equal(t, "partial", rr.At(2).Str)
	require.True(t, rr.At(3).IsNull)
	require.True(t, rr.At(4).IsNull)
}
