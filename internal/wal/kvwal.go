package wal

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"

	"github.com/DataDog/zstd"

	"github.com/hestiadb/engine/internal/base"
)

// CompressionThreshold is the payload size above which KVManager compresses
// a WAL entry with zstd before persisting it, matching the original
// source's "compress large WAL payloads" policy.
const CompressionThreshold = 4 * 1024

// MaxBytesPerWriteBatch is the per-batch byte cap of the WAL configuration.
// KVManager.Write does not consult it: every payload of a batch is persisted
// with its own KV write and its own sequence number, whatever the batch's
// total size.
const MaxBytesPerWriteBatch = 8 * 1024 * 1024

// chunkPayloadLimit bounds a single KV value; an encoded entry larger than
// this is split across multiple KV records sharing the same sequence number,
// each key ending in a 4-byte "remaining-bytes suffix": the number of
// encoded bytes that follow that chunk.
const chunkPayloadLimit = 1 * 1024 * 1024

const (
	flagPlain      byte = 0
	flagCompressed byte = 1
)

// KVManager implements Manager over a KV, encoding keys as
// region||table||seq and, for oversized entries, region||table||seq||remaining.
type KVManager struct {
	kv KV

	mu       sync.Mutex
	lastSeq  map[Location]base.SequenceNumber
}

// NewKVManager wraps kv as a Manager.
func NewKVManager(kv KV) *KVManager {
	return &KVManager{kv: kv, lastSeq: make(map[Location]base.SequenceNumber)}
}

func (m *KVManager) nextSequences(loc Location, n int) []base.SequenceNumber {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := m.lastSeq[loc] + 1
	out := make([]base.SequenceNumber, n)
	for i := 0; i < n; i++ {
		out[i] = start + base.SequenceNumber(i)
	}
	m.lastSeq[loc] = start + base.SequenceNumber(n) - 1
	return out
}

// Write assigns strictly increasing sequence numbers to req.Payloads and
// persists each payload with its own KV write (several, for a payload split
// into chunks), so the batch as a whole is not written atomically.
func (m *KVManager) Write(ctx context.Context, req WriteRequest) (WriteResponse, error) {
	if err := ctx.Err(); err != nil {
		return WriteResponse{}, base.WithKind(err, base.KindCancelled)
	}
	seqs := m.nextSequences(req.Location, len(req.Payloads))

	for i, payload := range req.Payloads {
		if err := m.putEntry(req.Location, seqs[i], payload); err != nil {
			return WriteResponse{}, err
		}
	}
	return WriteResponse{Sequences: seqs}, nil
}

func (m *KVManager) putEntry(loc Location, seq base.SequenceNumber, payload []byte) error {
	encoded := payload
	flag := flagPlain
	if len(payload) > CompressionThreshold {
		compressed, err := zstd.Compress(nil, payload)
		if err != nil {
			return base.WithKind(err, base.KindTransientIO)
		}
		encoded = compressed
		flag = flagCompressed
	}

	if len(encoded)+1 <= chunkPayloadLimit {
		key := encodeKey(loc, uint64(seq))
		value := append([]byte{flag}, encoded...)
		m.kv.Set(key, value)
		return nil
	}

	total := uint32(len(encoded))
	for off := 0; off < len(encoded); off += chunkPayloadLimit - 9 {
		end := off + (chunkPayloadLimit - 9)
		if end > len(encoded) {
			end = len(encoded)
		}
		remaining := uint32(len(encoded) - end)
		key := chunkKey(loc, uint64(seq), remaining)
		value := make([]byte, 0, 9+(end-off))
		value = append(value, flag)
		var totalBuf, remBuf [4]byte
		binary.BigEndian.PutUint32(totalBuf[:], total)
		binary.BigEndian.PutUint32(remBuf[:], remaining)
		value = append(value, totalBuf[:]...)
		value = append(value, remBuf[:]...)
		value = append(value, encoded[off:end]...)
		m.kv.Set(key, value)
	}
	return nil
}

// chunkKey appends remaining to the entry key; the 4-byte suffix alone keeps
// chunk keys distinct from the 24-byte single-entry key.
func chunkKey(loc Location, seq uint64, remaining uint32) []byte {
	prefix := encodeKey(loc, seq)
	out := make([]byte, len(prefix)+4)
	copy(out, prefix)
	binary.BigEndian.PutUint32(out[len(prefix):], remaining)
	return out
}

// SequenceNum returns the highest sequence number assigned to loc so far, or
// zero if loc has never been written to.
func (m *KVManager) SequenceNum(loc Location) base.SequenceNumber {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeq[loc]
}

// Read opens a BatchLogIterator over [req.Start, req.End] for req.Location.
func (m *KVManager) Read(ctx context.Context, req ReadRequest) (BatchLogIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, base.WithKind(err, base.KindCancelled)
	}
	prefix := encodeLocationPrefix(req.Location)

	var entries []LogEntry
	chunks := make(map[uint64][][]byte)
	m.kv.ScanPrefix(prefix, func(key, value []byte) bool {
		seq := decodeSeqFromKey(key)
		if len(key) == 24 {
			entries = appendIfInRange(entries, seq, decodeEntry(value))
			return true
		}
		// chunked entry: accumulate, reassemble once all chunks seen.
		chunks[seq] = append(chunks[seq], value)
		return true
	})

	for seq, parts := range chunks {
		payload, ok := reassemble(parts)
		if !ok {
			continue
		}
		entries = appendIfInRange(entries, seq, payload)
	}

	entries = filterBoundary(entries, req.Start, req.End)
	return newSliceIterator(entries), nil
}

func decodeEntry(value []byte) []byte {
	if len(value) == 0 {
		return nil
	}
	flag, body := value[0], value[1:]
	if flag == flagCompressed {
		decompressed, err := zstd.Decompress(nil, body)
		if err != nil {
			return nil
		}
		return decompressed
	}
	return body
}

func reassemble(parts [][]byte) ([]byte, bool) {
	// parts are unordered chunk values of the same (seq); each carries its
	// own 4-byte total length so we can sort by remaining-bytes descending.
	type part struct {
		remaining uint32
		data      []byte
		flag      byte
	}
	ps := make([]part, 0, len(parts))
	var total uint32
	for _, v := range parts {
		if len(v) < 9 {
			return nil, false
		}
		total = binary.BigEndian.Uint32(v[1:5])
		remaining := binary.BigEndian.Uint32(v[5:9])
		ps = append(ps, part{remaining: remaining, data: v[9:], flag: v[0]})
	}
	// sort descending by remaining bytes: the first chunk written has the
	// most bytes still to come.
	for i := 0; i < len(ps); i++ {
		for j := i + 1; j < len(ps); j++ {
			if ps[j].remaining > ps[i].remaining {
				ps[i], ps[j] = ps[j], ps[i]
			}
		}
	}
	var buf bytes.Buffer
	for _, p := range ps {
		buf.Write(p.data)
	}
	if uint32(buf.Len()) != total {
		return nil, false
	}
	if len(ps) > 0 && ps[0].flag == flagCompressed {
		decompressed, err := zstd.Decompress(nil, buf.Bytes())
		if err != nil {
			return nil, false
		}
		return decompressed, true
	}
	return buf.Bytes(), true
}

func appendIfInRange(entries []LogEntry, seq uint64, payload []byte) []LogEntry {
	return append(entries, LogEntry{Sequence: base.SequenceNumber(seq), Payload: payload})
}

func filterBoundary(entries []LogEntry, start, end ReadBoundary) []LogEntry {
	out := entries[:0]
	for _, e := range entries {
		if !boundaryAllowsLower(start, e.Sequence) || !boundaryAllowsUpper(end, e.Sequence) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func boundaryAllowsLower(b ReadBoundary, seq base.SequenceNumber) bool {
	switch b.Kind {
	case BoundaryMin:
		return true
	case BoundaryIncluded:
		return seq >= b.Seq
	case BoundaryExcluded:
		return seq > b.Seq
	default:
		return false
	}
}

func boundaryAllowsUpper(b ReadBoundary, seq base.SequenceNumber) bool {
	switch b.Kind {
	case BoundaryMax:
		return true
	case BoundaryIncluded:
		return seq <= b.Seq
	case BoundaryExcluded:
		return seq < b.Seq
	default:
		return false
	}
}

// MarkDeleteTo removes persisted entries at or before seq for loc.
func (m *KVManager) MarkDeleteTo(ctx context.Context, loc Location, seq base.SequenceNumber) error {
	prefix := encodeLocationPrefix(loc)
	var toDelete [][]byte
	m.kv.ScanPrefix(prefix, func(key, value []byte) bool {
		if decodeSeqFromKey(key) <= uint64(seq) {
			toDelete = append(toDelete, append([]byte(nil), key...))
		}
		return true
	})
	for _, k := range toDelete {
		m.kv.Delete(k)
	}
	return nil
}

// Close is a no-op for the in-process KV backend.
func (m *KVManager) Close() error { return nil }
