package sstable

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// BloomFilter is a fixed-size Bloom filter over primary-key bytes, used by
// Reader.prune to skip row groups that cannot contain a requested key
// without reading their data blocks. Fields are exported so the filter
// round-trips through MetaData's gob encoding (spec §4.5's SST footer).
type BloomFilter struct {
	Bits    []byte
	NumBits uint64
	NumHash int
}

// NewBloomFilter sizes a filter for expectedKeys entries at the given false
// positive rate, following the standard m = -n*ln(p)/(ln2)^2 sizing.
func NewBloomFilter(expectedKeys int, falsePositiveRate float64) *BloomFilter {
	if expectedKeys < 1 {
		expectedKeys = 1
	}
	m := optimalBits(expectedKeys, falsePositiveRate)
	k := optimalHashes(expectedKeys, m)
	return &BloomFilter{Bits: make([]byte, (m+7)/8), NumBits: uint64(m), NumHash: k}
}

func optimalBits(n int, p float64) int {
	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	return int(math.Ceil(m))
}

func optimalHashes(n, m int) int {
	if n == 0 {
		return 1
	}
	k := int(math.Round(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return k
}

func (f *BloomFilter) hashes(key []byte) (uint64, uint64) {
	h1 := xxhash.Sum64(key)
	h2 := xxhash.Sum64(append(append([]byte(nil), key...), 0))
	return h1, h2
}

// Add inserts key into the filter.
func (f *BloomFilter) Add(key []byte) {
	h1, h2 := f.hashes(key)
	for i := 0; i < f.NumHash; i++ {
		bit := (h1 + uint64(i)*h2) % f.NumBits
		f.Bits[bit/8] |= 1 << (bit % 8)
	}
}

// MayContain reports whether key could be present: false means definitely
// absent, true means maybe present.
func (f *BloomFilter) MayContain(key []byte) bool {
	h1, h2 := f.hashes(key)
	for i := 0; i < f.NumHash; i++ {
		bit := (h1 + uint64(i)*h2) % f.NumBits
		if f.Bits[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}
