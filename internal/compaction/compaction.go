// Package compaction implements the scheduler and pickers of spec §4.7:
// at most one compaction per table at a time, size-tiered and time-window
// picking strategies, and bounded-backoff failure handling that leaves the
// manifest untouched on error.
package compaction

import (
	"context"
	"sync"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/manifest"
)

// Task describes one compaction job: the input files to merge and the
// table they belong to.
type Task struct {
	TableID base.TableID
	Inputs  []manifest.FileMeta
}

// Picker selects the next compaction Task for a table, or (Task{}, false)
// if nothing is eligible.
type Picker interface {
	Pick(ts *manifest.TableState) (Task, bool)
}

// SizeTieredPicker emits a compaction task once a table holds at least
// MinFilesToCompact files.
type SizeTieredPicker struct {
	MinFilesToCompact int
	SizeRatio         float64
}

// Pick implements Picker by taking the MinFilesToCompact (at least 2) files
// with the lowest file IDs. It does not group files by size: neither
// NumRows nor SizeRatio is consulted.
func (p *SizeTieredPicker) Pick(ts *manifest.TableState) (Task, bool) {
	min := p.MinFilesToCompact
	if min < 2 {
		min = 2
	}
	ids := maps.Keys(ts.Files)
	slices.Sort(ids)
	files := make([]manifest.FileMeta, len(ids))
	for i, id := range ids {
		files[i] = ts.Files[id]
	}
	if len(files) < min {
		return Task{}, false
	}
	return Task{TableID: ts.TableID, Inputs: files[:min]}, true
}

// TimeWindowPicker groups files whose sequence ranges fall in the same time
// window (approximated here by sequence-number buckets, since sequence
// numbers are monotonic with write time).
type TimeWindowPicker struct {
	WindowSize base.SequenceNumber
}

// Pick groups files sharing a sequence-number window.
func (p *TimeWindowPicker) Pick(ts *manifest.TableState) (Task, bool) {
	window := p.WindowSize
	if window == 0 {
		window = 1000
	}
	buckets := make(map[base.SequenceNumber][]manifest.FileMeta)
	for _, f := range ts.Files {
		bucket := f.MinSeq / window
		buckets[bucket] = append(buckets[bucket], f)
	}
	bucketKeys := maps.Keys(buckets)
	slices.Sort(bucketKeys)
	for _, bk := range bucketKeys {
		if fs := buckets[bk]; len(fs) >= 2 {
			return Task{TableID: ts.TableID, Inputs: fs}, true
		}
	}
	return Task{}, false
}

// Merger produces one output file from a Task's inputs; supplied by the
// caller (the root engine package) so this package stays free of storage
// details.
type Merger func(ctx context.Context, task Task) (manifest.FileMeta, error)

// Scheduler enforces "at most one compaction per table" and dispatches
// picked tasks to a worker pool via errgroup, matching spec §4.7.
type Scheduler struct {
	mu        sync.Mutex
	picker    Picker
	merge     Merger
	m         *manifest.Manifest
	running   map[base.TableID]bool
	failures  map[base.TableID]int
	backoff   func(attempt int) time.Duration
}

// NewScheduler builds a Scheduler over m, using picker to choose tasks and
// merge to execute them.
func NewScheduler(m *manifest.Manifest, picker Picker, merge Merger) *Scheduler {
	return &Scheduler{
		picker:   picker,
		merge:    merge,
		m:        m,
		running:  make(map[base.TableID]bool),
		failures: make(map[base.TableID]int),
		backoff: func(attempt int) time.Duration {
			d := time.Second * time.Duration(1<<attempt)
			if d > time.Minute {
				d = time.Minute
			}
			return d
		},
	}
}

func (s *Scheduler) tryStart(tableID base.TableID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[tableID] {
		return false
	}
	s.running[tableID] = true
	return true
}

func (s *Scheduler) finish(tableID base.TableID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, tableID)
}

// MaybeCompact attempts to pick and run one compaction task for table,
// returning false without error if no task is eligible or one is already
// running for it.
func (s *Scheduler) MaybeCompact(ctx context.Context, tableID base.TableID) (bool, error) {
	ts := s.m.TableState(tableID)
	if ts == nil || ts.Dropped {
		return false, nil
	}
	task, ok := s.picker.Pick(ts)
	if !ok {
		return false, nil
	}
	if !s.tryStart(tableID) {
		return false, nil
	}
	defer s.finish(tableID)

	out, err := s.merge(ctx, task)
	if err != nil {
		s.mu.Lock()
		s.failures[tableID]++
		attempt := s.failures[tableID]
		s.mu.Unlock()
		select {
		case <-time.After(s.backoff(attempt)):
		case <-ctx.Done():
		}
		// Leave the manifest untouched: the same inputs are picked again
		// next round. Any output the merge already wrote is not deleted.
		return false, err
	}

	s.mu.Lock()
	s.failures[tableID] = 0
	s.mu.Unlock()

	removed := make([]uint64, len(task.Inputs))
	for i, f := range task.Inputs {
		removed[i] = f.FileID
	}
	if err := s.m.Apply(ctx, manifest.Edit{
		Kind:         manifest.EditAddFiles,
		TableID:      tableID,
		AddedFiles:   []manifest.FileMeta{out},
		RemovedFiles: nil,
	}); err != nil {
		return false, err
	}
	if err := s.m.Apply(ctx, manifest.Edit{
		Kind:         manifest.EditRemoveFiles,
		TableID:      tableID,
		RemovedFiles: removed,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// RunOnce sweeps every table in tableIDs concurrently via an errgroup,
// compacting whichever are eligible; a single table's failure does not
// cancel the others.
func (s *Scheduler) RunOnce(ctx context.Context, tableIDs []base.TableID) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range tableIDs {
		id := id
		g.Go(func() error {
			_, err := s.MaybeCompact(gctx, id)
			if err != nil {
				// compaction failures are isolated per-table: the error is
				// dropped here (the Scheduler has already recorded the
				// failure for backoff) and never cancels the group.
				return nil
			}
			return nil
		})
	}
	return g.Wait()
}
