// Package wal implements the write-ahead log contract of spec §4.3: a
// per-region/table append log with strictly increasing sequence numbers,
// ported from wal/src/manager.rs.
package wal

import (
	"context"

	"github.com/hestiadb/engine/internal/base"
)

// Location identifies one WAL stream: a region (shard) and the table within
// it, matching manager.rs's Location.
type Location struct {
	Region base.ShardID
	Table  base.TableID
}

// BoundaryKind selects which edge ReadBoundary refers to.
type BoundaryKind int

const (
	BoundaryMin BoundaryKind = iota
	BoundaryMax
	BoundaryIncluded
	BoundaryExcluded
)

// ReadBoundary names the start or end of a WAL scan, mirroring
// ReadBoundary::{Min,Max,Included,Excluded} in the original source.
type ReadBoundary struct {
	Kind BoundaryKind
	Seq  base.SequenceNumber
}

// Min is the open-ended start-of-log boundary.
func Min() ReadBoundary { return ReadBoundary{Kind: BoundaryMin} }

// Max is the open-ended end-of-log boundary.
func Max() ReadBoundary { return ReadBoundary{Kind: BoundaryMax} }

// Included returns a boundary at, and including, seq.
func Included(seq base.SequenceNumber) ReadBoundary { return ReadBoundary{Kind: BoundaryIncluded, Seq: seq} }

// Excluded returns a boundary at seq that leaves seq itself out: as a start
// it admits sequences after seq, as an end sequences before it.
func Excluded(seq base.SequenceNumber) ReadBoundary { return ReadBoundary{Kind: BoundaryExcluded, Seq: seq} }

// LogEntry is one WAL record: the encoded row payload at Sequence.
type LogEntry struct {
	Sequence base.SequenceNumber
	Payload  []byte
}

// ReadRequest scopes a WAL scan to one Location and [Start, End] boundaries.
type ReadRequest struct {
	Location Location
	Start    ReadBoundary
	End      ReadBoundary
}

// WriteRequest is one append call, carrying all rows of a single write
// batch; the manager assigns them contiguous sequence numbers.
type WriteRequest struct {
	Location Location
	Payloads [][]byte
}

// WriteResponse reports the sequence numbers assigned to a WriteRequest's
// payloads, in order.
type WriteResponse struct {
	Sequences []base.SequenceNumber
}

// BatchLogIterator is a blocking cursor over a WAL scan, matched by
// BatchLogIteratorAdapter to the channel-based consumer API the rest of the
// engine uses.
type BatchLogIterator interface {
	// NextBatch blocks until entries are available, returns (nil, nil) at
	// end of stream.
	NextBatch(ctx context.Context) ([]LogEntry, error)
	Close() error
}

// Manager is the WAL capability the rest of the engine depends on: per
// Location append, scan and sequence-range queries, and region lifecycle
// management. Implementations must serialize concurrent Write calls to the
// same Location so sequence numbers are strictly increasing.
type Manager interface {
	Write(ctx context.Context, req WriteRequest) (WriteResponse, error)
	Read(ctx context.Context, req ReadRequest) (BatchLogIterator, error)

	// SequenceNum returns the highest sequence number assigned so far to loc,
	// or zero if nothing has been written to it yet (spec §4.1's
	// sequence_num(loc) accessor).
	SequenceNum(loc Location) base.SequenceNumber

	// MarkDeleteTo allows the manager to reclaim log segments before and
	// including seq once the caller has durably flushed past it.
	MarkDeleteTo(ctx context.Context, loc Location, seq base.SequenceNumber) error

	// Close releases resources held by the manager.
	Close() error
}
