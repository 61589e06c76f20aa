// Package dedup implements a bounded-memory filter of recently seen messages.
//
// The Filter is a cuckoo filter with 4-slot buckets and 16-bit fingerprints.
// An item that was added and is still resident is always reported by
// Contains. Items that were never added are reported with a small false
// positive probability. When the filter is full, Add still succeeds but drops
// an unrelated resident fingerprint, which is the only way an added item can
// stop being reported.
package dedup

import (
	"math/rand"

	"github.com/spaolacci/murmur3"
)

const (
	bucketSize = 4
	maxKicks   = 500

	// DefaultCapacity is the number of items a filter created with
	// capacity 0 can hold.
	DefaultCapacity = 1 << 16
)

type fingerprint uint16

type bucket [bucketSize]fingerprint

func (b *bucket) insert(fp fingerprint) bool {
	for i, f := range b {
		if f == 0 {
			b[i] = fp
			return true
		}
	}
	return false
}

func (b *bucket) contains(fp fingerprint) bool {
	for _, f := range b {
		if f == fp {
			return true
		}
	}
	return false
}

// Filter is a cuckoo filter. It is not safe for concurrent use.
type Filter struct {
	buckets []bucket
	mask    uint64
	count   int
	rnd     *rand.Rand
}

// NewFilter returns a Filter able to hold at least capacity items. The
// number of buckets is rounded up to a power of two.
func NewFilter(capacity int) *Filter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	n := nextPowerOfTwo(uint64((capacity + bucketSize - 1) / bucketSize))

	return &Filter{
		buckets: make([]bucket, n),
		mask:    n - 1,
		rnd:     rand.New(rand.NewSource(rand.Int63())),
	}
}

// Contains reports whether data was probably added to the filter.
func (f *Filter) Contains(data []byte) bool {
	i1, i2, fp := f.locate(data)
	return f.buckets[i1].contains(fp) || f.buckets[i2].contains(fp)
}

// Add inserts data into the filter. Insertion always succeeds. The returned
// value is true when room had to be made by dropping an unrelated
// fingerprint.
func (f *Filter) Add(data []byte) (evictedOther bool) {
	i1, i2, fp := f.locate(data)

	if f.buckets[i1].insert(fp) || f.buckets[i2].insert(fp) {
		f.count++
		return false
	}

	i := i1
	if f.rnd.Intn(2) == 1 {
		i = i2
	}

	orig := fp
	for k := 0; k < maxKicks; k++ {
		slot := f.victim(i, orig)
		if slot < 0 {
			// every slot already holds orig, so data is reported as present
			return fp != orig
		}
		fp, f.buckets[i][slot] = f.buckets[i][slot], fp

		i = f.altIndex(i, fp)
		if f.buckets[i].insert(fp) {
			f.count++
			return false
		}
	}

	// fp now holds a displaced fingerprint with no home. It is dropped and the
	// count is unchanged.
	return true
}

// victim picks a random slot of bucket i whose fingerprint differs from keep,
// so that the item being added is never the one displaced. It returns -1 if
// there is no such slot.
func (f *Filter) victim(i uint64, keep fingerprint) int {
	start := f.rnd.Intn(bucketSize)
	for j := 0; j < bucketSize; j++ {
		slot := (start + j) % bucketSize
		if f.buckets[i][slot] != keep {
			return slot
		}
	}
	return -1
}

// Len returns the number of resident fingerprints.
func (f *Filter) Len() int {
	return f.count
}

// Capacity returns the number of slots in the filter.
func (f *Filter) Capacity() int {
	return len(f.buckets) * bucketSize
}

// LoadFactor returns the fraction of occupied slots.
func (f *Filter) LoadFactor() float64 {
	return float64(f.count) / float64(f.Capacity())
}

// Reset empties the filter.
func (f *Filter) Reset() {
	for i := range f.buckets {
		f.buckets[i] = bucket{}
	}
	f.count = 0
}

func (f *Filter) locate(data []byte) (uint64, uint64, fingerprint) {
	h := murmur3.Sum64(data)

	fp := fingerprint(h >> 48)
	if fp == 0 {
		fp = 1
	}

	i1 := h & f.mask
	return i1, f.altIndex(i1, fp), fp
}

// altIndex is its own inverse: altIndex(altIndex(i, fp), fp) == i.
func (f *Filter) altIndex(i uint64, fp fingerprint) uint64 {
	var b [2]byte
	b[0] = byte(fp >> 8)
	b[1] = byte(fp)
	return (i ^ murmur3.Sum64(b[:])) & f.mask
}

func nextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	p := uint64(1)
	for p < n {
		p <<= 1
	}
	return p
}
