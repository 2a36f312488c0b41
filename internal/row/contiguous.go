package row

import (
	"encoding/binary"
	"math"

	"github.com/hestiadb/engine/internal/base"
)

// MaxStringLen is the largest Varbinary/String payload a contiguous row may
// hold (spec §3: "string ≤ 16 MiB").
const MaxStringLen = 16 * 1024 * 1024

// MaxRowLen is the largest total encoded row size (spec §3: "row ≤ 1 GiB").
const MaxRowLen = 1024 * 1024 * 1024

// byteOrder is used throughout the contiguous encoding for fixed-size
// datums: the host's native endianness, so encoded rows are read back on a
// host of the same byte order.
var byteOrder = binary.NativeEndian

// Buffer is the growable byte buffer a ContiguousRowWriter writes into,
// mirroring the RowBuffer trait in contiguous.rs.
type Buffer struct {
	buf []byte
}

// Reset clears the buffer and resizes it to newLen, filling with value.
func (b *Buffer) Reset(newLen int, value byte) {
	if cap(b.buf) < newLen {
		b.buf = make([]byte, newLen)
	} else {
		b.buf = b.buf[:newLen]
	}
	for i := range b.buf {
		b.buf[i] = value
	}
}

// Bytes returns the buffer's current contents.
func (b *Buffer) Bytes() []byte { return b.buf }

// Writer builds a contiguous-encoded row into a Buffer, choosing the
// no-nulls or with-nulls form per row the way ContiguousRowWriter does.
type Writer struct {
	buf         *Buffer
	tableSchema *Schema
	indexWriter *IndexInWriterSchema
}

// NewWriter constructs a Writer for encoding rows of tableSchema, whose
// source columns are located via indexWriter.
func NewWriter(buf *Buffer, tableSchema *Schema, indexWriter *IndexInWriterSchema) *Writer {
	return &Writer{buf: buf, tableSchema: tableSchema, indexWriter: indexWriter}
}

// WriteRow encodes datums (indexed by writer-schema column index) into the
// buffer, choosing the nulls-free fast path when no column is null.
func (w *Writer) WriteRow(datums []Datum) error {
	numNull := 0
	for i := 0; i < w.tableSchema.NumColumns(); i++ {
		if wi, ok := w.indexWriter.ColumnIndexInWriter(i); ok {
			if datums[wi].IsNull() {
				numNull++
			}
		} else {
			numNull++
		}
	}
	if numNull > 0 {
		return w.writeWithNulls(datums)
	}
	return w.writeNoNulls(datums)
}

func (w *Writer) writeNoNulls(datums []Datum) error {
	datumBufLen := w.tableSchema.StringBufferOffset() + 4
	encodedLen := datumBufLen
	for i := 0; i < w.tableSchema.NumColumns(); i++ {
		if wi, ok := w.indexWriter.ColumnIndexInWriter(i); ok {
			d := datums[wi]
			if !d.IsFixedSized() {
				encodedLen += d.Size() + 4
			}
		}
	}
	if encodedLen > MaxRowLen {
		return base.WithKind(base.ErrRowTooLong, base.KindInputViolation)
	}

	w.buf.Reset(encodedLen, byte(KindNull))
	nextString := datumBufLen
	offset := 4
	for i := 0; i < w.tableSchema.NumColumns(); i++ {
		wi, ok := w.indexWriter.ColumnIndexInWriter(i)
		if !ok {
			continue
		}
		if err := writeDatum(w.buf.buf, &datums[wi], &offset, &nextString); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeWithNulls(datums []Datum) error {
	var encodedLen, numStringBytes int
	for i := 0; i < w.tableSchema.NumColumns(); i++ {
		if wi, ok := w.indexWriter.ColumnIndexInWriter(i); ok {
			d := datums[wi]
			if !d.IsNull() {
				encodedLen += ByteSizeOf(d.Kind)
			}
			if !d.IsFixedSized() {
				numStringBytes += d.Size() + 4
			}
		}
	}

	numBits := w.tableSchema.NumColumns()
	nulls := NewBitSet(numBits)
	encodedLen += 4 + len(nulls.AsBytes()) + numStringBytes
	if encodedLen > MaxRowLen {
		return base.WithKind(base.ErrRowTooLong, base.KindInputViolation)
	}

	w.buf.Reset(encodedLen, 0)
	nextString := encodedLen - numStringBytes
	offset := 4 + len(nulls.AsBytes())
	for i := 0; i < w.tableSchema.NumColumns(); i++ {
		wi, ok := w.indexWriter.ColumnIndexInWriter(i)
		if !ok {
			continue
		}
		d := datums[wi]
		if err := writeDatum(w.buf.buf, &d, &offset, &nextString); err != nil {
			return err
		}
		if !d.IsNull() {
			nulls.Set(i)
		}
	}

	byteOrder.PutUint32(w.buf.buf[0:4], uint32(numBits))
	copy(w.buf.buf[4:4+len(nulls.AsBytes())], nulls.AsBytes())
	return nil
}

func writeDatum(buf []byte, d *Datum, offset *int, nextString *int) error {
	if d.IsNull() {
		return nil
	}
	buf[*offset] = byte(d.Kind)
	*offset++
	switch d.Kind {
	case KindTimestamp, KindTime, KindInt64:
		byteOrder.PutUint64(buf[*offset:], uint64(d.I64))
		*offset += 8
	case KindUint64:
		byteOrder.PutUint64(buf[*offset:], d.U64)
		*offset += 8
	case KindDouble:
		byteOrder.PutUint64(buf[*offset:], math.Float64bits(d.F64))
		*offset += 8
	case KindFloat:
		byteOrder.PutUint32(buf[*offset:], math.Float32bits(d.F32))
		*offset += 4
	case KindDate, KindInt32:
		byteOrder.PutUint32(buf[*offset:], uint32(d.I64))
		*offset += 4
	case KindUint32:
		byteOrder.PutUint32(buf[*offset:], d.U64)
		*offset += 4
	case KindInt16:
		byteOrder.PutUint16(buf[*offset:], uint16(d.I64))
		*offset += 2
	case KindUint16:
		byteOrder.PutUint16(buf[*offset:], uint16(d.U64))
		*offset += 2
	case KindInt8:
		buf[*offset] = byte(int8(d.I64))
		*offset++
	case KindUint8:
		buf[*offset] = byte(d.U64)
		*offset++
	case KindBoolean:
		if d.Bool {
			buf[*offset] = 1
		} else {
			buf[*offset] = 0
		}
		*offset++
	case KindVarbinary, KindString:
		if len(d.Bytes) > MaxStringLen {
			return base.WithKind(base.ErrStringTooLong, base.KindInputViolation)
		}
		byteOrder.PutUint32(buf[*offset:], uint32(*nextString))
		*offset += 4
		byteOrder.PutUint32(buf[*nextString:], uint32(len(d.Bytes)))
		*nextString += 4
		copy(buf[*nextString:], d.Bytes)
		*nextString += len(d.Bytes)
	}
	return nil
}

// Row is the read-side view of a contiguous-encoded row, ported from
// ContiguousRowReader. It lazily distinguishes the no-nulls and with-nulls
// forms by inspecting the leading 4 bytes, exactly as contiguous.rs does.
type Row struct {
	buf    []byte
	schema *Schema
	nulls  *BitSet // nil in the no-nulls form
}

// NewRow wraps buf as a row encoded against schema, validating the header.
func NewRow(buf []byte, schema *Schema) (*Row, error) {
	if len(buf) < 4 {
		return nil, base.WithKind(base.ErrRowTooLong, base.KindCorruption)
	}
	numBits := int(byteOrder.Uint32(buf[0:4]))
	if numBits == 0 {
		return &Row{buf: buf, schema: schema}, nil
	}
	if numBits != schema.NumColumns() {
		return nil, base.WithKind(base.ErrBitsetMismatch, base.KindCorruption)
	}
	nb := NumBytes(numBits)
	if len(buf) < 4+nb {
		return nil, base.WithKind(base.ErrBitsetMismatch, base.KindCorruption)
	}
	return &Row{buf: buf, schema: schema, nulls: TryFromRaw(buf[4:4+nb], numBits)}, nil
}

// At returns the decoded view of column i (an index into schema.Columns).
func (r *Row) At(i int) View {
	if r.nulls != nil && !r.nulls.IsSet(i) {
		return View{IsNull: true}
	}
	offsets := r.schema.ByteOffsets()
	var offset int
	if r.nulls != nil {
		offset = 4 + len(r.nulls.AsBytes())
		for j := 0; j < i; j++ {
			if r.nulls.IsSet(j) {
				offset += ByteSizeOf(r.schema.Columns[j].Kind)
			}
		}
	} else {
		offset = 4 + offsets[i]
	}
	kind := Kind(r.buf[offset])
	offset++
	if kind == KindNull {
		return View{IsNull: true}
	}
	return decodeDatum(r.buf, kind, offset)
}

func decodeDatum(buf []byte, kind Kind, offset int) View {
	switch kind {
	case KindTimestamp, KindTime, KindInt64:
		return View{Kind: kind, I64: int64(byteOrder.Uint64(buf[offset:]))}
	case KindUint64:
		return View{Kind: kind, U64: byteOrder.Uint64(buf[offset:])}
	case KindDouble:
		return View{Kind: kind, F64: math.Float64frombits(byteOrder.Uint64(buf[offset:]))}
	case KindFloat:
		return View{Kind: kind, F32: math.Float32frombits(byteOrder.Uint32(buf[offset:]))}
	case KindDate, KindInt32:
		return View{Kind: kind, I64: int64(int32(byteOrder.Uint32(buf[offset:])))}
	case KindUint32:
		return View{Kind: kind, U64: uint64(byteOrder.Uint32(buf[offset:]))}
	case KindInt16:
		return View{Kind: kind, I64: int64(int16(byteOrder.Uint16(buf[offset:])))}
	case KindUint16:
		return View{Kind: kind, U64: uint64(byteOrder.Uint16(buf[offset:]))}
	case KindInt8:
		return View{Kind: kind, I64: int64(int8(buf[offset]))}
	case KindUint8:
		return View{Kind: kind, U64: uint64(buf[offset])}
	case KindBoolean:
		return View{Kind: kind, Bool: buf[offset] != 0}
	case KindVarbinary, KindString:
		strOff := byteOrder.Uint32(buf[offset:])
		length := byteOrder.Uint32(buf[strOff:])
		data := buf[strOff+4 : strOff+4+length]
		if kind == KindString {
			return View{Kind: kind, Str: string(data)}
		}
		return View{Kind: kind, Bytes: data}
	default:
		return View{IsNull: true}
	}
}

// Projected wraps a Row together with a projection: a list of table-schema
// column indexes to expose, in projection order, mirroring
// ProjectedContiguousRow.
type Projected struct {
	row        *Row
	projection []int
}

// NewProjected builds a Projected row exposing only the given column
// indexes, in that order.
func NewProjected(row *Row, projection []int) *Projected {
	return &Projected{row: row, projection: projection}
}

// NumColumns returns the number of projected columns.
func (p *Projected) NumColumns() int { return len(p.projection) }

// Underlying returns the full (unprojected) Row backing p, letting a caller
// re-project or inspect columns outside p's projection (e.g. to compute a
// primary key that wasn't part of the original projection).
func (p *Projected) Underlying() *Row { return p.row }

// At returns the decoded view of the i-th projected column.
func (p *Projected) At(i int) View {
	return p.row.At(p.projection[i])
}
