package sstable

import (
	"context"

	"github.com/hestiadb/engine/internal/row"
)

// threadedChannelCapacity matches async_reader.rs's channel-based async
// wrapper: a bounded channel of 1024 decoded row batches between the
// blocking scan goroutine and the consumer.
const threadedChannelCapacity = 1024

// RowBatch is one unit handed to a ThreadedReader consumer.
type RowBatch struct {
	Rows []*row.Projected
	Err  error
}

// ThreadedReader wraps a Reader's Scan in a background goroutine, streaming
// results over a channel so the caller never blocks synchronously on I/O,
// mirroring the optional threaded/async wrapper around AsyncReader.
type ThreadedReader struct {
	reader *Reader
	out    chan RowBatch
}

// NewThreadedReader starts a goroutine that runs Scan(minPK, maxPK,
// projection) and streams its rows over a channel in page-sized batches.
func NewThreadedReader(ctx context.Context, reader *Reader, minPK, maxPK []byte, projection *Projection, pageSize int) *ThreadedReader {
	t := &ThreadedReader{reader: reader, out: make(chan RowBatch, threadedChannelCapacity)}
	if pageSize <= 0 {
		pageSize = 1024
	}
	go t.run(ctx, minPK, maxPK, projection, pageSize)
	return t
}

func (t *ThreadedReader) run(ctx context.Context, minPK, maxPK []byte, projection *Projection, pageSize int) {
	defer close(t.out)

	rows, err := t.reader.Scan(ctx, minPK, maxPK, projection)
	if err != nil {
		select {
		case t.out <- RowBatch{Err: err}:
		case <-ctx.Done():
		}
		return
	}

	for off := 0; off < len(rows); off += pageSize {
		end := off + pageSize
		if end > len(rows) {
			end = len(rows)
		}
		select {
		case t.out <- RowBatch{Rows: rows[off:end]}:
		case <-ctx.Done():
			return
		}
	}
}

// Batches returns the channel of row batches.
func (t *ThreadedReader) Batches() <-chan RowBatch { return t.out }
