package engine

import (
	"context"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/cache"
	"github.com/hestiadb/engine/internal/compaction"
	"github.com/hestiadb/engine/internal/manifest"
	"github.com/hestiadb/engine/internal/memtable"
	"github.com/hestiadb/engine/internal/row"
	"github.com/hestiadb/engine/internal/shard"
	"github.com/hestiadb/engine/internal/sstable"
)

// Open recovers (or creates) the manifest for opts.ShardID, then runs the
// shard-open state machine (spec §4, §9) across tableOpts: every table's
// metadata is recovered before any table's WAL data is replayed, and one
// table's failure does not block the others from opening.
func Open(ctx context.Context, opts Options, tableOpts []TableOptions) (*DB, []shard.TableOpenResult, error) {
	if err := validate(&opts); err != nil {
		return nil, nil, err
	}

	m, err := manifest.Open(ctx, opts.WAL, opts.Store, opts.ShardID, opts.ManifestDir)
	if err != nil {
		return nil, nil, err
	}

	db := &DB{
		opts:    opts,
		m:       m,
		cache:   cache.New(opts.CacheBytes, 16),
		metaC:   sstable.NewMetaCache(),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tables:  make(map[base.TableID]*table),
	}
	db.scheduler = compaction.NewScheduler(m, &compaction.SizeTieredPicker{MinFilesToCompact: 4}, db.mergeTaskWithMetrics)

	tableIDs := make([]base.TableID, 0, len(tableOpts))
	for _, to := range tableOpts {
		tableIDs = append(tableIDs, to.TableID)
	}

	schemaLookup := make(map[base.TableID]*row.Schema, len(tableOpts))
	for _, to := range tableOpts {
		schemaLookup[to.TableID] = to.Schema
	}

	opener := shard.NewOpener(
		func(ctx context.Context, id base.TableID) (*manifest.TableState, error) {
			ts := m.TableState(id)
			if ts == nil {
				if err := m.Apply(ctx, manifest.Edit{Kind: manifest.EditAddTable, TableID: id}); err != nil {
					return nil, err
				}
				ts = m.TableState(id)
			}
			return ts, nil
		},
		func(ctx context.Context, id base.TableID, ts *manifest.TableState) error {
			schema := schemaLookup[id]
			t := &table{
				id:       id,
				schema:   schema,
				memtable: memtable.NewLayered(schema),
				wloc:     walLocationFor(opts.ShardID, id),
			}
			if err := db.replayWAL(ctx, t, ts); err != nil {
				return err
			}
			db.mu.Lock()
			db.tables[id] = t
			db.mu.Unlock()
			return nil
		},
	)

	results := opener.Open(ctx, tableIDs)
	return db, results, nil
}
