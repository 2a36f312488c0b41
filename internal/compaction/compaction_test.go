package compaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/manifest"
	"github.com/hestiadb/engine/internal/wal"
	"github.com/hestiadb/engine/objstore/localfs"
)

func newTestManifest(t *testing.T, dir string) *manifest.Manifest {
	t.Helper()
	store, err := localfs.New(dir)
	require.NoError(t, err)
	wm := wal.NewKVManager(wal.NewMemKV())
	m, err := manifest.Open(context.Background(), wm, store, base.ShardID(1), "manifest")
	require.NoError(t, err)
	return m
}

func tableStateWithFiles(id base.TableID, n int) *manifest.TableState {
	ts := &manifest.TableState{TableID: id, Files: make(map[uint64]manifest.FileMeta)}
	for i := 0; i < n; i++ {
		ts.Files[uint64(i+1)] = manifest.FileMeta{FileID: uint64(i + 1), NumRows: 100, MinSeq: base.SequenceNumber(i), MaxSeq: base.SequenceNumber(i + 1)}
	}
	return ts
}

func TestSizeTieredPickerRequiresMinFiles(t *testing.T) {
	p := &SizeTieredPicker{MinFilesToCompact: 4}
	_, ok := p.Pick(tableStateWithFiles(1, 3))
	require.False(t, ok)

	task, ok := p.Pick(tableStateWithFiles(1, 4))
	require.True(t, ok)
	require.Len(t, task.Inputs, 4)
}

func TestSizeTieredPickerDeterministicSelection(t *testing.T) {
	p := &SizeTieredPicker{MinFilesToCompact: 2}
	ts := tableStateWithFiles(1, 5)

	first, ok := p.Pick(ts)
	require.True(t, ok)
	second, ok := p.Pick(ts)
	require.True(t, ok)
	require.Equal(t, first.Inputs, second.Inputs)
}

func TestTimeWindowPickerGroupsBySequenceBucket(t *testing.T) {
	ts := &manifest.TableState{TableID: 1, Files: map[uint64]manifest.FileMeta{
		1: {FileID: 1, MinSeq: 0},
		2: {FileID: 2, MinSeq: 1},
		3: {FileID: 3, MinSeq: 1000},
	}}
	p := &TimeWindowPicker{WindowSize: 10}
	task, ok := p.Pick(ts)
	require.True(t, ok)
	require.Len(t, task.Inputs, 2)
}

func TestSchedulerTryStartRefusesConcurrentCompactionPerTable(t *testing.T) {
	s := &Scheduler{
		running:  make(map[base.TableID]bool),
		failures: make(map[base.TableID]int),
	}

	require.True(t, s.tryStart(1))
	require.False(t, s.tryStart(1))
	require.True(t, s.tryStart(2))
	s.finish(1)
	require.True(t, s.tryStart(1))
}

func TestMaybeCompactAppliesEditsOnSuccess(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := newTestManifest(t, dir)
	require.NoError(t, m.Apply(ctx, manifest.Edit{Kind: manifest.EditAddTable, TableID: 1}))
	require.NoError(t, m.Apply(ctx, manifest.Edit{Kind: manifest.EditAddFiles, TableID: 1, AddedFiles: []manifest.FileMeta{
		{FileID: 1, NumRows: 10},
		{FileID: 2, NumRows: 10},
	}}))

	merged := manifest.FileMeta{FileID: 3, Path: "merged.sst", NumRows: 20}
	s := NewScheduler(m, &SizeTieredPicker{MinFilesToCompact: 2}, func(ctx context.Context, task Task) (manifest.FileMeta, error) {
		return merged, nil
	})

	ok, err := s.MaybeCompact(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ts := m.TableState(1)
	require.Len(t, ts.Files, 1)
	require.Contains(t, ts.Files, uint64(3))
}

func TestMaybeCompactLeavesManifestUntouchedOnFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := newTestManifest(t, dir)
	require.NoError(t, m.Apply(ctx, manifest.Edit{Kind: manifest.EditAddTable, TableID: 1}))
	require.NoError(t, m.Apply(ctx, manifest.Edit{Kind: manifest.EditAddFiles, TableID: 1, AddedFiles: []manifest.FileMeta{
		{FileID: 1, NumRows: 10},
		{FileID: 2, NumRows: 10},
	}}))

	s := NewScheduler(m, &SizeTieredPicker{MinFilesToCompact: 2}, func(ctx context.Context, task Task) (manifest.FileMeta, error) {
		return manifest.FileMeta{}, errors.New("merge failed")
	})
	s.backoff = func(int) time.Duration { return 0 }

	ok, err := s.MaybeCompact(ctx, 1)
	require.Error(t, err)
	require.False(t, ok)

	ts := m.TableState(1)
	require.Len(t, ts.Files, 2)
}

func TestRunOnceIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := newTestManifest(t, dir)
	require.NoError(t, m.Apply(ctx, manifest.Edit{Kind: manifest.EditAddTable, TableID: 1}))
	require.NoError(t, m.Apply(ctx, manifest.Edit{Kind: manifest.EditAddTable, TableID: 2}))
	require.NoError(t, m.Apply(ctx, manifest.Edit{Kind: manifest.EditAddFiles, TableID: 1, AddedFiles: []manifest.FileMeta{
		{FileID: 1, NumRows: 10}, {FileID: 2, NumRows: 10},
	}}))
	require.NoError(t, m.Apply(ctx, manifest.Edit{Kind: manifest.EditAddFiles, TableID: 2, AddedFiles: []manifest.FileMeta{
		{FileID: 3, NumRows: 10}, {FileID: 4, NumRows: 10},
	}}))

	var mu sync.Mutex
	ran := map[base.TableID]bool{}
	s := NewScheduler(m, &SizeTieredPicker{MinFilesToCompact: 2}, func(ctx context.Context, task Task) (manifest.FileMeta, error) {
		mu.Lock()
		ran[task.TableID] = true
		mu.Unlock()
		if task.TableID == 1 {
			return manifest.FileMeta{}, errors.New("boom")
		}
		return manifest.FileMeta{FileID: 100, NumRows: 20}, nil
	})
	s.backoff = func(int) time.Duration { return 0 }

	require.NoError(t, s.RunOnce(ctx, []base.TableID{1, 2}))
	require.True(t, ran[1])
	require.True(t, ran[2])
	require.Len(t, m.TableState(2).Files, 1)
	require.Len(t, m.TableState(1).Files, 2)
}
