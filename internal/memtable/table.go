package memtable

import (
	"bytes"
	"sync"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/row"
)

// Entry is a single memtable record: an encoded internal key plus its row
// payload (spec §3's contiguous encoding).
type Entry struct {
	Key InternalKey
	Row []byte
}

// Table is the mutable write buffer for one table/shard: an ordered index
// over Entry, keyed by InternalKey.Encode() and compared with Compare, plus
// byte-size accounting for flush triggering (spec §4.2 "flush when the
// active memtable exceeds its configured size").
//
// The original source builds this on an arena skiplist; no skiplist
// implementation is present anywhere in the retrieved examples, so this
// keeps the same external shape (ordered iteration, approximate size
// tracking) over a sorted slice guarded by a RWMutex, documented in
// DESIGN.md as a stdlib-only component.
type Table struct {
	mu        sync.RWMutex
	entries   []Entry
	approxLen int64
	minSeq    base.SequenceNumber
	maxSeq    base.SequenceNumber
	schema    *row.Schema
}

// NewTable creates an empty memtable for rows of the given schema.
func NewTable(schema *row.Schema) *Table {
	return &Table{schema: schema, minSeq: base.MaxSequenceNumber}
}

// Put inserts one row at the given sequence/row-index, keeping entries
// sorted by InternalKey so range scans can binary-search.
func (t *Table) Put(userKey []byte, seq base.SequenceNumber, idx base.RowIndex, encodedRow []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := InternalKey{UserKey: userKey, Seq: KeySequence{Sequence: seq, Index: idx}}
	entry := Entry{Key: key, Row: encodedRow}
	enc := key.Encode()

	i := t.search(enc)
	t.entries = append(t.entries, Entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = entry

	t.approxLen += int64(len(enc) + len(encodedRow))
	if seq < t.minSeq {
		t.minSeq = seq
	}
	if seq > t.maxSeq {
		t.maxSeq = seq
	}
}

func (t *Table) search(encKey []byte) int {
	lo, hi := 0, len(t.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if Compare(t.entries[mid].Key.Encode(), encKey) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// probeFloor builds the lexicographically smallest encoded key possible for
// userKey: no real entry can carry a Sequence above MaxSequenceNumber, so
// every actual entry for userKey sorts at or after this, making it useful to
// binary-search to the start of userKey's group.
func probeFloor(userKey []byte) []byte {
	return InternalKey{UserKey: userKey, Seq: KeySequence{Sequence: base.MaxSequenceNumber, Index: ^base.RowIndex(0)}}.Encode()
}

// Get implements spec §4.2's point_get primitive: the newest entry for
// userKey whose sequence is <= snapshotSeq, or false if none qualifies
// (either the key is absent, or every version of it postdates the
// snapshot). Entries for one user key are stored newest-sequence-first, so
// the first qualifying entry encountered is the answer.
func (t *Table) Get(userKey []byte, snapshotSeq base.SequenceNumber) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i := t.search(probeFloor(userKey))
	for ; i < len(t.entries); i++ {
		e := t.entries[i]
		if !bytes.Equal(e.Key.UserKey, userKey) {
			break
		}
		if e.Key.Seq.Sequence <= snapshotSeq {
			return e, true
		}
	}
	return Entry{}, false
}

// Scan implements spec §4.2's range_scan primitive: the newest entry
// visible at snapshotSeq for every distinct user key in
// [minUserKey, maxUserKey] (nil bound = unbounded), in ascending user-key
// order.
func (t *Table) Scan(minUserKey, maxUserKey []byte, snapshotSeq base.SequenceNumber) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	start := 0
	if minUserKey != nil {
		start = t.search(probeFloor(minUserKey))
	}

	var out []Entry
	var curKey []byte
	resolved := false
	for i := start; i < len(t.entries); i++ {
		e := t.entries[i]
		if maxUserKey != nil && bytes.Compare(e.Key.UserKey, maxUserKey) > 0 {
			break
		}
		if curKey == nil || !bytes.Equal(e.Key.UserKey, curKey) {
			curKey = e.Key.UserKey
			resolved = false
		}
		if resolved {
			continue
		}
		if e.Key.Seq.Sequence <= snapshotSeq {
			out = append(out, e)
			resolved = true
		}
	}
	return out
}

// ApproximateMemoryUsage returns the running byte estimate used to decide
// when the active memtable should be sealed.
func (t *Table) ApproximateMemoryUsage() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.approxLen
}

// SequenceRange returns the [min, max] sequence numbers observed, used when
// building an SST's metadata during flush.
func (t *Table) SequenceRange() (base.SequenceNumber, base.SequenceNumber) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.minSeq, t.maxSeq
}

// Len returns the number of entries currently held.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Iterator walks entries in InternalKey order, the same order a flush walks
// them in to build an SST's row groups.
type Iterator struct {
	entries []Entry
	pos     int
}

// NewIterator returns an iterator positioned before the first entry.
func (t *Table) NewIterator() *Iterator {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snapshot := make([]Entry, len(t.entries))
	copy(snapshot, t.entries)
	return &Iterator{entries: snapshot, pos: -1}
}

// Next advances the iterator, returning false once exhausted.
func (it *Iterator) Next() bool {
	it.pos++
	return it.pos < len(it.entries)
}

// Entry returns the entry at the iterator's current position.
func (it *Iterator) Entry() Entry { return it.entries[it.pos] }

// Layered composes a single mutable Table with a sequence of sealed,
// read-only tables awaiting flush, mirroring the original source's
// "mutable + sealed layers" memtable policy: writes only ever land in the
// mutable layer; a seal operation freezes it and starts a fresh one.
type Layered struct {
	mu      sync.Mutex
	mutable *Table
	sealed  []*Table
	schema  *row.Schema
}

// NewLayered creates a Layered memtable with a single empty mutable layer.
func NewLayered(schema *row.Schema) *Layered {
	return &Layered{mutable: NewTable(schema), schema: schema}
}

// Put writes to the current mutable layer.
func (l *Layered) Put(userKey []byte, seq base.SequenceNumber, idx base.RowIndex, encodedRow []byte) {
	l.mu.Lock()
	mutable := l.mutable
	l.mu.Unlock()
	mutable.Put(userKey, seq, idx, encodedRow)
}

// Seal freezes the current mutable layer (appending it to the sealed list)
// and installs a fresh empty mutable layer, returning the just-sealed table
// so the caller can schedule it for flush.
func (l *Layered) Seal() *Table {
	l.mu.Lock()
	defer l.mu.Unlock()
	sealed := l.mutable
	l.sealed = append(l.sealed, sealed)
	l.mutable = NewTable(l.schema)
	return sealed
}

// SealedTables returns the layers awaiting flush, oldest first.
func (l *Layered) SealedTables() []*Table {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Table, len(l.sealed))
	copy(out, l.sealed)
	return out
}

// DropFlushed removes table from the sealed list once its flush has been
// durably recorded in the manifest.
func (l *Layered) DropFlushed(table *Table) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.sealed {
		if s == table {
			l.sealed = append(l.sealed[:i], l.sealed[i+1:]...)
			return
		}
	}
}

// LayersNewestFirst returns every layer (mutable, then sealed layers from
// most to least recently sealed) so a caller merging memtable state with
// on-disk data can take the first occurrence of a key as its newest value.
func (l *Layered) LayersNewestFirst() []*Table {
	l.mu.Lock()
	mutable := l.mutable
	sealed := append([]*Table(nil), l.sealed...)
	l.mu.Unlock()

	out := make([]*Table, 0, len(sealed)+1)
	out = append(out, mutable)
	for i := len(sealed) - 1; i >= 0; i-- {
		out = append(out, sealed[i])
	}
	return out
}

// Get implements spec §4.2's point_get primitive across every layer,
// newest first: the mutable layer's data is always at least as new as any
// sealed layer's, so the first layer to produce a qualifying entry wins.
func (l *Layered) Get(userKey []byte, snapshotSeq base.SequenceNumber) (Entry, bool) {
	for _, t := range l.LayersNewestFirst() {
		if e, ok := t.Get(userKey, snapshotSeq); ok {
			return e, true
		}
	}
	return Entry{}, false
}

// Scan implements spec §4.2's range_scan primitive across every layer: the
// newest entry visible at snapshotSeq for each distinct user key in range,
// taking the first (newest-layer) occurrence of a key as authoritative.
func (l *Layered) Scan(minUserKey, maxUserKey []byte, snapshotSeq base.SequenceNumber) []Entry {
	seen := make(map[string]bool)
	var out []Entry
	for _, t := range l.LayersNewestFirst() {
		for _, e := range t.Scan(minUserKey, maxUserKey, snapshotSeq) {
			if seen[string(e.Key.UserKey)] {
				continue
			}
			seen[string(e.Key.UserKey)] = true
			out = append(out, e)
		}
	}
	return out
}

// ApproximateMemoryUsage sums the mutable and sealed layers' sizes.
func (l *Layered) ApproximateMemoryUsage() int64 {
	l.mu.Lock()
	mutable := l.mutable
	sealed := append([]*Table(nil), l.sealed...)
	l.mu.Unlock()

	total := mutable.ApproximateMemoryUsage()
	for _, s := range sealed {
		total += s.ApproximateMemoryUsage()
	}
	return total
}
