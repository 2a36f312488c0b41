package wal

import (
	"bytes"
	"encoding/binary"
	"sort"
	"sync"
)

// KV is the minimal ordered key-value capability the WAL backend persists
// records through. KVManager is written against this interface rather than a
// specific store so it can run over an in-process map in tests or, in a
// fuller deployment, a durable embedded store.
type KV interface {
	Set(key, value []byte)
	Get(key []byte) ([]byte, bool)
	Delete(key []byte)
	// ScanPrefix calls fn for every key with the given prefix, in ascending
	// key order, until fn returns false.
	ScanPrefix(prefix []byte, fn func(key, value []byte) bool)
}

// MemKV is a process-local, sorted in-memory KV, the default KV backing the
// WAL manager.
type MemKV struct {
	mu   sync.RWMutex
	keys [][]byte
	vals map[string][]byte
}

// NewMemKV creates an empty MemKV.
func NewMemKV() *MemKV {
	return &MemKV{vals: make(map[string][]byte)}
}

func (m *MemKV) Set(key, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := string(key)
	if _, ok := m.vals[k]; !ok {
		i := sort.Search(len(m.keys), func(i int) bool { return bytes.Compare(m.keys[i], key) >= 0 })
		m.keys = append(m.keys, nil)
		copy(m.keys[i+1:], m.keys[i:])
		m.keys[i] = append([]byte(nil), key...)
	}
	m.vals[k] = value
}

func (m *MemKV) Get(key []byte) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[string(key)]
	return v, ok
}

func (m *MemKV) Delete(key []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := string(key)
	if _, ok := m.vals[k]; !ok {
		return
	}
	delete(m.vals, k)
	i := sort.Search(len(m.keys), func(i int) bool { return bytes.Compare(m.keys[i], key) >= 0 })
	if i < len(m.keys) && bytes.Equal(m.keys[i], key) {
		m.keys = append(m.keys[:i], m.keys[i+1:]...)
	}
}

func (m *MemKV) ScanPrefix(prefix []byte, fn func(key, value []byte) bool) {
	m.mu.RLock()
	keys := make([][]byte, len(m.keys))
	copy(keys, m.keys)
	m.mu.RUnlock()

	start := sort.Search(len(keys), func(i int) bool { return bytes.Compare(keys[i], prefix) >= 0 })
	for i := start; i < len(keys); i++ {
		if !bytes.HasPrefix(keys[i], prefix) {
			break
		}
		v, ok := m.Get(keys[i])
		if !ok {
			continue
		}
		if !fn(keys[i], v) {
			return
		}
	}
}

// encodeKey builds the region||table||seq key layout spec §4.3 describes.
func encodeKey(loc Location, seq uint64) []byte {
	buf := make([]byte, 8+8+8)
	binary.BigEndian.PutUint64(buf[0:8], uint64(loc.Region))
	binary.BigEndian.PutUint64(buf[8:16], uint64(loc.Table))
	binary.BigEndian.PutUint64(buf[16:24], seq)
	return buf
}

// encodeLocationPrefix builds the region||table prefix used to scope scans
// and deletions to one Location.
func encodeLocationPrefix(loc Location) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(loc.Region))
	binary.BigEndian.PutUint64(buf[8:16], uint64(loc.Table))
	return buf
}

func decodeSeqFromKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[16:24])
}
