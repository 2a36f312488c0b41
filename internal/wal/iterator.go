package wal

import (
	"context"
	"sort"
)

// sliceIterator is the in-memory BatchLogIterator KVManager.Read returns: a
// pre-materialized, sequence-sorted slice handed out one batch at a time.
type sliceIterator struct {
	entries   []LogEntry
	pos       int
	batchSize int
}

func newSliceIterator(entries []LogEntry) *sliceIterator {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })
	return &sliceIterator{entries: entries, batchSize: 256}
}

func (it *sliceIterator) NextBatch(ctx context.Context) ([]LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.entries) {
		return nil, nil
	}
	end := it.pos + it.batchSize
	if end > len(it.entries) {
		end = len(it.entries)
	}
	batch := it.entries[it.pos:end]
	it.pos = end
	return batch, nil
}

func (it *sliceIterator) Close() error { return nil }

// BatchLogIteratorAdapter drives a blocking BatchLogIterator on a dedicated
// goroutine and republishes its batches over a channel, letting callers use
// ordinary `for batch := range` consumption instead of repeated blocking
// calls — ported from manager.rs's BatchLogIteratorAdapter.
type BatchLogIteratorAdapter struct {
	it     BatchLogIterator
	batchC chan []LogEntry
	errC   chan error
}

// NewBatchLogIteratorAdapter starts the background pump goroutine.
func NewBatchLogIteratorAdapter(ctx context.Context, it BatchLogIterator) *BatchLogIteratorAdapter {
	a := &BatchLogIteratorAdapter{
		it:     it,
		batchC: make(chan []LogEntry),
		errC:   make(chan error, 1),
	}
	go a.run(ctx)
	return a
}

func (a *BatchLogIteratorAdapter) run(ctx context.Context) {
	defer close(a.batchC)
	for {
		batch, err := a.it.NextBatch(ctx)
		if err != nil {
			a.errC <- err
			return
		}
		if batch == nil {
			return
		}
		select {
		case a.batchC <- batch:
		case <-ctx.Done():
			a.errC <- ctx.Err()
			return
		}
	}
}

// Batches returns the channel of WAL batches; it closes once the scan
// completes or fails. Callers should check Err after the channel closes.
func (a *BatchLogIteratorAdapter) Batches() <-chan []LogEntry { return a.batchC }

// Err returns the terminal error, if any, once Batches has closed.
func (a *BatchLogIteratorAdapter) Err() error {
	select {
	case err := <-a.errC:
		return err
	default:
		return nil
	}
}

// Close releases the underlying iterator.
func (a *BatchLogIteratorAdapter) Close() error { return a.it.Close() }
