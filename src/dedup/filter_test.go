package dedup

import (
	"encoding/binary"
	"testing"
)

func item(i int) []byte {
	var b [16]byte
	binary.BigEndian.PutUint32(b[0:], uint32(i))
	binary.BigEndian.PutUint32(b[4:], uint32(i*31))
	return b[:]
}

func TestCapacityRounding(t *testing.T) {
	cases := []struct {
		capacity, want int
	}{
		{1, 4},
		{4, 4},
		{5, 8},
		{1000, 1024},
		{0, DefaultCapacity},
	}
	for _, c := range cases {
		if got := NewFilter(c.capacity).Capacity(); got != c.want {
			t.Errorf("NewFilter(%d).Capacity() = %d, want %d", c.capacity, got, c.want)
		}
	}
}

func TestNoFalseNegatives(t *testing.T) {
	f := NewFilter(4096)

	// stay well under the load where relocations can fail
	n := 3000
	for i := 0; i < n; i++ {
		if f.Add(item(i)) {
			t.Fatalf("unexpected eviction at item %d, load %.2f", i, f.LoadFactor())
		}
	}

	for i := 0; i < n; i++ {
		if !f.Contains(item(i)) {
			t.Fatalf("item %d should be resident", i)
		}
	}

	if f.Len() != n {
		t.Fatalf("Len() = %d, want %d", f.Len(), n)
	}
}

func TestFalsePositiveRate(t *testing.T) {
	f := NewFilter(4096)
	for i := 0; i < 3000; i++ {
		f.Add(item(i))
	}

	fp := 0
	trials := 100000
	for i := 0; i < trials; i++ {
		if f.Contains(item(1000000 + i)) {
			fp++
		}
	}

	// 8 candidate slots and 16-bit fingerprints bound the rate near 8/65536
	if rate := float64(fp) / float64(trials); rate > 0.005 {
		t.Fatalf("false positive rate %.4f too high", rate)
	}
}

func TestAddWhenFull(t *testing.T) {
	f := NewFilter(16)

	evictions := 0
	for i := 0; i < 200; i++ {
		if f.Add(item(i)) {
			evictions++
		}
		if f.Len() > f.Capacity() {
			t.Fatalf("Len %d exceeds capacity %d", f.Len(), f.Capacity())
		}
	}

	if evictions == 0 {
		t.Fatalf("expected evictions once the filter is saturated")
	}

	// the most recent insertion is resident even when it displaced another
	last := item(1000)
	f.Add(last)
	if !f.Contains(last) {
		t.Fatalf("last added item should be resident")
	}
}

func TestReset(t *testing.T) {
	f := NewFilter(64)
	f.Add([]byte("vote"))
	f.Reset()

	if f.Len() != 0 || f.Contains([]byte("vote")) {
		t.Fatalf("filter should be empty after Reset")
	}
}
