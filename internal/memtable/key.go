// Package memtable implements the in-memory write buffer described in spec
// §4.2: a skiplist keyed by user key plus a descending (sequence, row index)
// tail, ported from analytic_engine/src/memtable/key.rs.
package memtable

import (
	"bytes"
	"encoding/binary"

	"github.com/hestiadb/engine/internal/base"
)

// KeySequenceLen is the encoded length of a KeySequence tail (spec §2:
// "12-byte fixed tail").
const KeySequenceLen = base.KeySequenceByteLen

// KeySequence pairs a write sequence number with the row's position within
// its write batch, the memtable's internal ordering key alongside the user
// key (ported from KeySequence in key.rs).
type KeySequence struct {
	Sequence base.SequenceNumber
	Index    base.RowIndex
}

// Encode writes the descending big-endian encoding of ks into dst, which
// must be at least KeySequenceLen bytes: (MaxSequenceNumber-Sequence) then
// (MaxUint32-Index), so byte-wise comparison orders newer writes first.
func (ks KeySequence) Encode(dst []byte) {
	binary.BigEndian.PutUint64(dst[0:8], uint64(base.MaxSequenceNumber-ks.Sequence))
	binary.BigEndian.PutUint32(dst[8:12], ^uint32(ks.Index))
}

// DecodeKeySequence parses the tail produced by Encode.
func DecodeKeySequence(src []byte) (KeySequence, error) {
	if len(src) < KeySequenceLen {
		return KeySequence{}, base.WithKind(base.ErrBitsetMismatch, base.KindCorruption)
	}
	seqPart := binary.BigEndian.Uint64(src[0:8])
	idxPart := binary.BigEndian.Uint32(src[8:12])
	return KeySequence{
		Sequence: base.MaxSequenceNumber - base.SequenceNumber(seqPart),
		Index:    base.RowIndex(^idxPart),
	}, nil
}

// InternalKey is the full memtable key: the caller-supplied row key followed
// by the KeySequence tail, matching ComparableInternalKey's on-wire layout.
type InternalKey struct {
	UserKey []byte
	Seq     KeySequence
}

// Encode returns UserKey || EncodedKeySequence.
func (k InternalKey) Encode() []byte {
	buf := make([]byte, len(k.UserKey)+KeySequenceLen)
	copy(buf, k.UserKey)
	k.Seq.Encode(buf[len(k.UserKey):])
	return buf
}

// DecodeInternalKey splits an encoded key back into its user-key and
// KeySequence parts.
func DecodeInternalKey(buf []byte) (InternalKey, error) {
	if len(buf) < KeySequenceLen {
		return InternalKey{}, base.WithKind(base.ErrBitsetMismatch, base.KindCorruption)
	}
	split := len(buf) - KeySequenceLen
	seq, err := DecodeKeySequence(buf[split:])
	if err != nil {
		return InternalKey{}, err
	}
	return InternalKey{UserKey: buf[:split], Seq: seq}, nil
}

// Compare orders two encoded internal keys: ascending by user key, then by
// the already-descending KeySequence tail, matching the comparer the
// skiplist table is built with.
func Compare(a, b []byte) int {
	splitA, splitB := len(a)-KeySequenceLen, len(b)-KeySequenceLen
	if splitA < 0 || splitB < 0 {
		return bytes.Compare(a, b)
	}
	if c := bytes.Compare(a[:splitA], b[:splitB]); c != 0 {
		return c
	}
	return bytes.Compare(a[splitA:], b[splitB:])
}
