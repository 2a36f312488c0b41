// Package cache implements the partitioned, size-weighted byte-range cache
// described in spec §4.4, ported from components/object_store/src/mem_cache.rs:
// object keys route to a partition via a hash, and each partition runs its
// own independent LRU eviction with no cross-partition ordering.
package cache

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Key identifies one cached byte range of one object.
type Key struct {
	Path  string
	Start uint64
	End   uint64 // exclusive
}

type entry struct {
	key   Key
	value []byte
}

// partition is one independently-locked, independently-evicted LRU shard.
type partition struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	ll        *list.List
	items     map[Key]*list.Element
}

func newPartition(capacity int64) *partition {
	return &partition{capacity: capacity, ll: list.New(), items: make(map[Key]*list.Element)}
}

func (p *partition) get(key Key) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.items[key]
	if !ok {
		return nil, false
	}
	p.ll.MoveToFront(el)
	return el.Value.(*entry).value, true
}

func (p *partition) put(key Key, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if el, ok := p.items[key]; ok {
		p.size -= int64(len(el.Value.(*entry).value))
		el.Value.(*entry).value = value
		p.size += int64(len(value))
		p.ll.MoveToFront(el)
	} else {
		el := p.ll.PushFront(&entry{key: key, value: value})
		p.items[key] = el
		p.size += int64(len(value))
	}

	for p.size > p.capacity && p.ll.Len() > 0 {
		back := p.ll.Back()
		evicted := back.Value.(*entry)
		p.size -= int64(len(evicted.value))
		delete(p.items, evicted.key)
		p.ll.Remove(back)
	}
}

func (p *partition) remove(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.items[key]; ok {
		p.size -= int64(len(el.Value.(*entry).value))
		delete(p.items, key)
		p.ll.Remove(el)
	}
}

// Cache is a byte-range cache split into a fixed number of independently
// evicted partitions, each capacity/numPartitions bytes, routed by
// xxhash(path) so a single hot object cannot starve the others' eviction
// state.
type Cache struct {
	partitions []*partition
}

// New creates a Cache with the given total capacity spread evenly across
// numPartitions shards.
func New(totalCapacity int64, numPartitions int) *Cache {
	if numPartitions < 1 {
		numPartitions = 1
	}
	perPartition := totalCapacity / int64(numPartitions)
	c := &Cache{partitions: make([]*partition, numPartitions)}
	for i := range c.partitions {
		c.partitions[i] = newPartition(perPartition)
	}
	return c
}

func (c *Cache) partitionFor(path string) *partition {
	h := xxhash.Sum64String(path)
	return c.partitions[h%uint64(len(c.partitions))]
}

// Get returns the cached bytes for key, if present.
func (c *Cache) Get(key Key) ([]byte, bool) {
	return c.partitionFor(key.Path).get(key)
}

// Put inserts or replaces the cached bytes for key, evicting the
// least-recently-used entries of key's partition until it fits back under
// capacity.
func (c *Cache) Put(key Key, value []byte) {
	c.partitionFor(key.Path).put(key, value)
}

// Remove evicts key if present, used when an object is deleted or
// overwritten.
func (c *Cache) Remove(key Key) {
	c.partitionFor(key.Path).remove(key)
}

// Len returns the total number of cached entries across all partitions,
// used by tests to assert on eviction behavior.
func (c *Cache) Len() int {
	total := 0
	for _, p := range c.partitions {
		p.mu.Lock()
		total += p.ll.Len()
		p.mu.Unlock()
	}
	return total
}
