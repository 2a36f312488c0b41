// Package engine implements the analytic, columnar table storage engine
// described in SPEC_FULL.md: a WAL-backed memtable, periodically flushed to
// immutable SSTs, and recovered through a manifest catalog and a per-table
// open state machine. Open builds a compaction scheduler, but DB does not
// run it on its own: SSTs are not compacted in the background. The architecture and
// idiom (explicit error kinds, context-scoped blocking calls, interfaces for
// external collaborators) follow this repo's teacher, cockroachdb/pebble;
// the domain semantics follow the original source this spec distills.
package engine

import (
	"fmt"
	"sync"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/cache"
	"github.com/hestiadb/engine/internal/compaction"
	"github.com/hestiadb/engine/internal/logutil"
	"github.com/hestiadb/engine/internal/manifest"
	"github.com/hestiadb/engine/internal/memtable"
	"github.com/hestiadb/engine/internal/metrics"
	"github.com/hestiadb/engine/internal/row"
	"github.com/hestiadb/engine/internal/sstable"
	"github.com/hestiadb/engine/internal/wal"
	"github.com/hestiadb/engine/objstore"
)

// Options configures an Open call.
type Options struct {
	ShardID base.ShardID
	Store   objstore.Store
	WAL     wal.Manager
	Logger  logutil.Logger
	Metrics *metrics.Registry

	// ManifestDir is the object-store path prefix the shard's manifest
	// snapshots and the SST files it references are written under.
	ManifestDir string

	// MemtableFlushThreshold triggers an automatic Flush once a table's
	// mutable layer's approximate byte usage exceeds it.
	MemtableFlushThreshold int64

	// CacheBytes sizes the shared SST byte-range cache (spec §4.4).
	CacheBytes int64
}

// TableOptions registers one table with Open.
type TableOptions struct {
	TableID base.TableID
	Schema  *row.Schema
}

// table bundles one table's runtime state.
type table struct {
	id       base.TableID
	schema   *row.Schema
	memtable *memtable.Layered
	wloc     wal.Location
	mu       sync.Mutex
}

// DB is an open shard: a set of tables sharing one manifest, one WAL
// region, and one SST byte cache.
type DB struct {
	opts    Options
	m       *manifest.Manifest
	cache   *cache.Cache
	metaC   *sstable.MetaCache
	logger  logutil.Logger
	metrics *metrics.Registry

	mu     sync.RWMutex
	tables map[base.TableID]*table

	scheduler *compaction.Scheduler
}

func cacheAdapter(c *cache.Cache) sstable.ByteRangeCache { return byteCacheAdapter{c} }

type byteCacheAdapter struct{ c *cache.Cache }

func (a byteCacheAdapter) Get(key sstable.CacheKey) ([]byte, bool) {
	return a.c.Get(cache.Key{Path: key.Path, Start: key.Start, End: key.End})
}

func (a byteCacheAdapter) Put(key sstable.CacheKey, value []byte) {
	a.c.Put(cache.Key{Path: key.Path, Start: key.Start, End: key.End}, value)
}

// walLocationFor maps a (shard, table) pair onto the WAL Location the
// table's log entries and its manifest edit log share a region with,
// distinguishing the two by reserving table id 0 for manifest edits.
func walLocationFor(shardID base.ShardID, tableID base.TableID) wal.Location {
	return wal.Location{Region: shardID, Table: tableID + 1}
}

func validate(opts *Options) error {
	if opts.Store == nil || opts.WAL == nil {
		return base.WithKind(fmt.Errorf("engine: Store and WAL are required"), base.KindInputViolation)
	}
	if opts.Logger == nil {
		opts.Logger = logutil.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default()
	}
	if opts.MemtableFlushThreshold == 0 {
		opts.MemtableFlushThreshold = 64 * 1024 * 1024
	}
	if opts.CacheBytes == 0 {
		opts.CacheBytes = 256 * 1024 * 1024
	}
	return nil
}
