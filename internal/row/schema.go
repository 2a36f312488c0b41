package row

// Column describes one column of a table schema.
type Column struct {
	Name string
	Kind Kind
}

// Schema is the minimal table-schema shape the contiguous row codec needs:
// column kinds, in encoding order, plus which columns form the primary key.
type Schema struct {
	Columns     []Column
	PrimaryKey  []int // indexes into Columns, in key order
	byteOffsets []int
}

// NumColumns returns the column count.
func (s *Schema) NumColumns() int { return len(s.Columns) }

// PrimaryKeyIndexes returns the primary-key column indexes in key order.
func (s *Schema) PrimaryKeyIndexes() []int { return s.PrimaryKey }

// Column returns column i.
func (s *Schema) Column(i int) Column { return s.Columns[i] }

// ByteOffsets returns, for each column, its byte offset within the
// no-nulls-form fixed datum area (i.e. assuming every column present),
// caching the computation the way schema.byte_offsets() does in the
// original source.
func (s *Schema) ByteOffsets() []int {
	if s.byteOffsets != nil {
		return s.byteOffsets
	}
	offsets := make([]int, len(s.Columns))
	acc := 0
	for i, c := range s.Columns {
		offsets[i] = acc
		acc += ByteSizeOf(c.Kind)
	}
	s.byteOffsets = offsets
	return offsets
}

// StringBufferOffset returns the offset at which the string heap begins in
// the no-nulls form, i.e. the end of the fixed datum area.
func (s *Schema) StringBufferOffset() int {
	offsets := s.ByteOffsets()
	if len(offsets) == 0 {
		return 0
	}
	last := s.Columns[len(s.Columns)-1]
	return offsets[len(offsets)-1] + ByteSizeOf(last.Kind)
}

// IndexInWriterSchema maps a table-schema column index to its index in the
// (possibly narrower, possibly differently-ordered) schema of the row group
// actually being written. A -1 entry means "not present, encode as null".
type IndexInWriterSchema struct {
	forTable []int // len == table schema's NumColumns; -1 = absent
}

// ForSameSchema builds an identity mapping for a writer schema identical to
// the table schema.
func ForSameSchema(numColumns int) *IndexInWriterSchema {
	m := make([]int, numColumns)
	for i := range m {
		m[i] = i
	}
	return &IndexInWriterSchema{forTable: m}
}

// NewIndexInWriterSchema builds a mapping from an explicit table_index ->
// writer_index slice (writer_index == -1 meaning absent).
func NewIndexInWriterSchema(mapping []int) *IndexInWriterSchema {
	return &IndexInWriterSchema{forTable: mapping}
}

// ColumnIndexInWriter returns the writer-schema index for table column
// indexInTable, or (-1, false) if that column is absent from the writer
// schema and should be encoded as null.
func (m *IndexInWriterSchema) ColumnIndexInWriter(indexInTable int) (int, bool) {
	idx := m.forTable[indexInTable]
	if idx < 0 {
		return -1, false
	}
	return idx, true
}
