package memtable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hestiadb/engine/internal/base"
)

func TestKeySequenceRoundTrip(t *testing.T) {
	ks := KeySequence{Sequence: 42, Index: 7}
	buf := make([]byte, KeySequenceLen)
	ks.Encode(buf)

	got, err := DecodeKeySequence(buf)
	require.NoError(t, err)
	require.Equal(t, ks, got)
}

func TestKeySequenceOrdersNewestFirst(t *testing.T) {
	older := KeySequence{Sequence: 1, Index: 0}
	newer := KeySequence{Sequence: 2, Index: 0}

	bufOlder := make([]byte, KeySequenceLen)
	bufNewer := make([]byte, KeySequenceLen)
	older.Encode(bufOlder)
	newer.Encode(bufNewer)

	// Descending encoding: the newer sequence number sorts first.
	require.True(t, compareBytes(bufNewer, bufOlder) < 0)
}

func TestInternalKeyRoundTrip(t *testing.T) {
	k := InternalKey{UserKey: []byte("row-key"), Seq: KeySequence{Sequence: 100, Index: 3}}
	enc := k.Encode()

	got, err := DecodeInternalKey(enc)
	require.NoError(t, err)
	require.Equal(t, k.UserKey, got.UserKey)
	require.Equal(t, k.Seq, got.Seq)
}

func TestCompareOrdersByUserKeyThenDescendingSequence(t *testing.T) {
	a := InternalKey{UserKey: []byte("a"), Seq: KeySequence{Sequence: 1, Index: 0}}
	b := InternalKey{UserKey: []byte("b"), Seq: KeySequence{Sequence: 1, Index: 0}}
	require.True(t, Compare(a.Encode(), b.Encode()) < 0)

	newer := InternalKey{UserKey: []byte("a"), Seq: KeySequence{Sequence: 5, Index: 0}}
	older := InternalKey{UserKey: []byte("a"), Seq: KeySequence{Sequence: 1, Index: 0}}
	require.True(t, Compare(newer.Encode(), older.Encode()) < 0)
}

func TestDecodeKeySequenceTooShort(t *testing.T) {
	_, err := DecodeKeySequence([]byte{1, 2, 3})
	require.ErrorIs(t, err, base.ErrBitsetMismatch)
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}
