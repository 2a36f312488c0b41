// Package row implements the contiguous row encoding described in spec §3:
// a single byte buffer holding either a no-nulls or a with-nulls row, ported
// from common_types/src/row/contiguous.rs.
package row

import "fmt"

// Kind tags the type of a single column value. The zero value is unknown and
// decodes to a null view, matching contiguous.rs's behaviour for an unknown
// datum kind byte.
type Kind uint8

const (
	KindNull Kind = iota
	KindTimestamp
	KindDouble
	KindFloat
	KindVarbinary
	KindString
	KindUint64
	KindUint32
	KindUint16
	KindUint8
	KindInt64
	KindInt32
	KindInt16
	KindInt8
	KindBoolean
	KindDate
	KindTime
)

// ByteSizeOf returns the in-memory datum size for kind, including the
// 1-byte kind tag, matching contiguous.rs's byte_size_of_datum.
func ByteSizeOf(k Kind) int {
	switch k {
	case KindNull:
		return 1 + 1
	case KindTimestamp, KindTime, KindInt64, KindUint64:
		return 1 + 8
	case KindDouble:
		return 1 + 8
	case KindFloat, KindDate, KindInt32, KindUint32:
		return 1 + 4
	case KindVarbinary, KindString:
		return 1 + 4 // 4-byte offset into the string heap
	case KindInt16, KindUint16:
		return 1 + 2
	case KindInt8, KindUint8, KindBoolean:
		return 1 + 1
	default:
		return 1 + 1
	}
}

// Datum is a single column value the writer consumes.
type Datum struct {
	Kind  Kind
	I64   int64
	U64   uint64
	F64   float64
	F32   float32
	Bytes []byte // Varbinary or String payload
	Bool  bool
}

// IsNull reports whether the datum represents SQL NULL.
func (d Datum) IsNull() bool { return d.Kind == KindNull }

// IsFixedSized reports whether the datum's value is stored inline (as
// opposed to a 4-byte offset into the string heap).
func (d Datum) IsFixedSized() bool {
	return d.Kind != KindVarbinary && d.Kind != KindString
}

// Size returns the length, in bytes, of the datum's variable payload (0 for
// fixed-size kinds).
func (d Datum) Size() int {
	if d.IsFixedSized() {
		return 0
	}
	return len(d.Bytes)
}

// View is the zero-copy read-side counterpart of Datum, referencing bytes
// owned by the row/string buffer it was read from.
type View struct {
	Kind   Kind
	I64    int64
	U64    uint64
	F64    float64
	F32    float32
	Str    string
	Bytes  []byte
	Bool   bool
	IsNull bool
}

func (v View) String() string {
	if v.IsNull {
		return "NULL"
	}
	switch v.Kind {
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindVarbinary:
		return fmt.Sprintf("%x", v.Bytes)
	case KindInt64, KindInt32, KindInt16, KindInt8, KindTimestamp, KindTime, KindDate:
		return fmt.Sprintf("%d", v.I64)
	case KindUint64, KindUint32, KindUint16, KindUint8:
		return fmt.Sprintf("%d", v.U64)
	case KindDouble:
		return fmt.Sprintf("%v", v.F64)
	case KindFloat:
		return fmt.Sprintf("%v", v.F32)
	case KindBoolean:
		return fmt.Sprintf("%v", v.Bool)
	default:
		return "NULL"
	}
}

// Equal reports whether two views carry the same logical value.
func (v View) Equal(o View) bool {
	if v.IsNull || o.IsNull {
		return v.IsNull == o.IsNull
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindVarbinary:
		return string(v.Bytes) == string(o.Bytes)
	case KindDouble:
		return v.F64 == o.F64
	case KindFloat:
		return v.F32 == o.F32
	case KindBoolean:
		return v.Bool == o.Bool
	case KindUint64, KindUint32, KindUint16, KindUint8:
		return v.U64 == o.U64
	default:
		return v.I64 == o.I64
	}
}
