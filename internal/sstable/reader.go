package sstable

import (
	"bytes"
	"context"
	"sync"

	"github.com/golang/snappy"
	"golang.org/x/sync/singleflight"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/row"
	"github.com/hestiadb/engine/objstore"
)

// metaProbeSize is how many trailing bytes Reader.init fetches speculatively
// to try to capture the whole footer in one round trip, mirroring
// async_reader.rs's HEAD+footer fetch heuristic.
const metaProbeSize = 64 * 1024

// MetaCache caches a path's decoded MetaData across Reader instances, the
// "metadata cache" init's fast path checks before falling back to a
// HEAD+footer fetch.
type MetaCache struct {
	mu    sync.RWMutex
	items map[string]*MetaData
	sf    singleflight.Group
}

// NewMetaCache creates an empty cache.
func NewMetaCache() *MetaCache { return &MetaCache{items: make(map[string]*MetaData)} }

func (c *MetaCache) get(path string) (*MetaData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.items[path]
	return m, ok
}

func (c *MetaCache) put(path string, m *MetaData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[path] = m
}

// Reader implements the SST read pipeline of spec §4.5: init (metadata
// cache or HEAD+footer fetch) -> project -> prune (stats + bloom) -> scan
// (cached byte-range fetch) -> decode, ported from async_reader.rs's
// ParquetFilePathAdapter/AsyncReader flow.
type Reader struct {
	store     objstore.Store
	cache     *MetaCache
	byteCache ByteRangeCache
	path      string

	meta *MetaData
}

// ByteRangeCache is the subset of internal/cache.Cache the scan stage uses;
// declared narrowly here so sstable does not import internal/cache directly
// and tests can substitute a trivial fake.
type ByteRangeCache interface {
	Get(key CacheKey) ([]byte, bool)
	Put(key CacheKey, value []byte)
}

// CacheKey identifies one cached byte range, matching internal/cache.Key's
// shape so a concrete adapter can convert 1:1.
type CacheKey struct {
	Path  string
	Start uint64
	End   uint64
}

// NewReader constructs a Reader for the SST at path.
func NewReader(store objstore.Store, cache *MetaCache, byteCache ByteRangeCache, path string) *Reader {
	return &Reader{store: store, cache: cache, byteCache: byteCache, path: path}
}

// init resolves r.meta, consulting the metadata cache before falling back to
// an object HEAD followed by a footer fetch. Concurrent misses for the same
// path are coalesced through r.cache's singleflight.Group so N readers
// opening the same freshly-written SST issue one HEAD+footer fetch, not N.
func (r *Reader) init(ctx context.Context) error {
	if r.meta != nil {
		return nil
	}
	if cached, ok := r.cache.get(r.path); ok {
		r.meta = cached
		return nil
	}

	v, err, _ := r.cache.sf.Do(r.path, func() (interface{}, error) {
		if cached, ok := r.cache.get(r.path); ok {
			return cached, nil
		}
		meta, err := r.fetchMeta(ctx)
		if err != nil {
			return nil, err
		}
		r.cache.put(r.path, meta)
		return meta, nil
	})
	if err != nil {
		return err
	}

	r.meta = v.(*MetaData)
	return nil
}

// fetchMeta performs the HEAD+footer (or whole-object) fetch that resolves a
// path's MetaData when it isn't already cached.
func (r *Reader) fetchMeta(ctx context.Context) (*MetaData, error) {
	info, err := r.store.Head(ctx, r.path)
	if err != nil {
		return nil, err
	}

	probe := int64(metaProbeSize)
	if probe > info.Size {
		probe = info.Size
	}
	tail, err := r.store.GetRange(ctx, r.path, info.Size-probe, probe)
	if err != nil {
		return nil, err
	}

	meta, err := DecodeMetaData(tail)
	if err != nil && probe < info.Size {
		// The footer's gob blob was larger than our speculative probe;
		// fall back to fetching the whole object.
		full, getErr := r.store.Get(ctx, r.path)
		if getErr != nil {
			return nil, getErr
		}
		meta, err = DecodeMetaData(full)
	}
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// Meta returns the reader's resolved MetaData, populated once any Scan (or
// a direct call from a caller that only needs the footer) has run init.
func (r *Reader) Meta() *MetaData { return r.meta }

// Projection narrows the columns to be decoded; nil means all columns.
type Projection struct {
	ColumnIndexes []int
}

// Scan reads and decodes rows whose primary key falls within
// [minPK, maxPK] (nil bound = unbounded), applying projection if non-nil.
func (r *Reader) Scan(ctx context.Context, minPK, maxPK []byte, projection *Projection) ([]*row.Projected, error) {
	if err := r.init(ctx); err != nil {
		return nil, err
	}

	var out []*row.Projected
	for _, rg := range r.meta.RowGroups {
		if err := ctx.Err(); err != nil {
			return nil, base.WithKind(err, base.KindCancelled)
		}
		if !r.prune(rg, minPK, maxPK) {
			continue
		}
		block, err := r.fetchRowGroup(ctx, rg)
		if err != nil {
			return nil, err
		}
		rows := decodeRowGroup(block)
		for _, encoded := range rows {
			decoded, err := row.NewRow(encoded, r.meta.Schema)
			if err != nil {
				return nil, err
			}
			pk := primaryKeyOf(decoded, r.meta.Schema)
			if minPK != nil && bytes.Compare(pk, minPK) < 0 {
				continue
			}
			if maxPK != nil && bytes.Compare(pk, maxPK) > 0 {
				continue
			}
			proj := projection
			var idxs []int
			if proj != nil {
				idxs = proj.ColumnIndexes
			} else {
				idxs = identityProjection(r.meta.Schema.NumColumns())
			}
			out = append(out, row.NewProjected(decoded, idxs))
		}
	}
	return out, nil
}

// prune decides whether rg can possibly contain a key in [minPK, maxPK]
// using its min/max stats first, then its bloom filter for point lookups.
func (r *Reader) prune(rg RowGroupInfo, minPK, maxPK []byte) bool {
	if maxPK != nil && bytes.Compare(rg.MinPK, maxPK) > 0 {
		return false
	}
	if minPK != nil && bytes.Compare(rg.MaxPK, minPK) < 0 {
		return false
	}
	if minPK != nil && maxPK != nil && bytes.Equal(minPK, maxPK) && rg.PKBloom != nil {
		return rg.PKBloom.MayContain(minPK)
	}
	return true
}

func (r *Reader) fetchRowGroup(ctx context.Context, rg RowGroupInfo) ([]byte, error) {
	key := CacheKey{Path: r.path, Start: rg.Offset, End: rg.Offset + rg.Length}
	if r.byteCache != nil {
		if cached, ok := r.byteCache.Get(key); ok {
			return snappy.Decode(nil, cached)
		}
	}
	compressed, err := r.store.GetRange(ctx, r.path, int64(rg.Offset), int64(rg.Length))
	if err != nil {
		return nil, err
	}
	if r.byteCache != nil {
		r.byteCache.Put(key, compressed)
	}
	return snappy.Decode(nil, compressed)
}

// primaryKeyOf builds an order-preserving byte encoding of a row's primary
// key columns, concatenating each in big-endian (for fixed-width kinds) or
// raw bytes (for string/varbinary), so lexicographic comparison of the
// result matches the columns' natural ordering.
func primaryKeyOf(decoded *row.Row, schema *row.Schema) []byte {
	var buf []byte
	for _, idx := range schema.PrimaryKeyIndexes() {
		buf = append(buf, encodeOrderedKeyPart(decoded.At(idx))...)
	}
	return buf
}

func encodeOrderedKeyPart(v row.View) []byte {
	var out [8]byte
	switch v.Kind {
	case row.KindUint64, row.KindUint32, row.KindUint16, row.KindUint8:
		putUint64BE(out[:], v.U64)
		return out[:]
	case row.KindInt64, row.KindInt32, row.KindInt16, row.KindInt8,
		row.KindTimestamp, row.KindTime, row.KindDate:
		// Flip the sign bit so signed integers compare correctly as
		// unsigned big-endian bytes.
		putUint64BE(out[:], uint64(v.I64)^(1<<63))
		return out[:]
	case row.KindString:
		return []byte(v.Str)
	case row.KindVarbinary:
		return v.Bytes
	default:
		return nil
	}
}

func putUint64BE(dst []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}

func identityProjection(n int) []int {
	idxs := make([]int, n)
	for i := range idxs {
		idxs[i] = i
	}
	return idxs
}
