// Package bloom implements the probabilistic negative-lookup filter that
// sits in front of the record store.
//
// A Filter answers "is this name certainly absent?" without touching the
// store. It never reports a present name as absent; it may occasionally
// fail to rule out an absent one.
package bloom

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// DefaultFalsePositiveRate is used when no rate, or a rate looser than
// MaxFalsePositiveRate, is requested.
const (
	DefaultFalsePositiveRate = 1e-6
	MaxFalsePositiveRate     = 1e-5
)

// murmur3 fmix32 constants
const (
	m1 uint32 = 0x85ebca6b
	m2 uint32 = 0xc2b2ae35
)

// Filter is a fixed-size Bloom filter over domain-name strings.
// It is not safe for concurrent use; the owner must serialize writers.
type Filter struct {
	words     []uint64
	numBits   uint32
	numHashes int
	capacity  int
	count     int
}

// Optimal sizes a filter for expected names at the given false-positive rate.
//
//	k = round(-ln p / ln 2)
//	m = round(n * (-ln p / ln 2) / ln 2)
//
// n is raised to at least 2.
func Optimal(expected int, rate float64) *Filter {
	if rate <= 0 || rate > MaxFalsePositiveRate || math.IsNaN(rate) {
		rate = DefaultFalsePositiveRate
	}
	expected = max(expected, 2)

	hashes := -math.Log(rate) / math.Ln2
	bitsPerElement := hashes / math.Ln2
	numBits := uint32(min(bitsPerElement*float64(expected)+0.5, math.MaxUint32-63))
	numHashes := max(int(hashes+0.5), 1)

	return &Filter{
		words:     make([]uint64, (numBits+63)/64),
		numBits:   numBits,
		numHashes: numHashes,
		capacity:  expected,
	}
}

// smear is the murmur3 32-bit finalizer; consecutive inputs land on
// unrelated bits.
func smear(h uint32) uint32 {
	h ^= h >> 16
	h *= m1
	h ^= h >> 13
	h *= m2
	h ^= h >> 16
	return h
}

func baseHash(name string) uint32 {
	h := xxhash.Sum64String(name)
	return uint32(h) ^ uint32(h>>32)
}

func (f *Filter) indexFor(base uint32, i int) uint32 {
	return smear(base*31+uint32(i)) % f.numBits
}

// Add records name as present. A name whose bits are all set already, such
// as one added before, leaves Count unchanged.
func (f *Filter) Add(name string) {
	base := baseHash(name)
	fresh := false
	for i := range f.numHashes {
		idx := f.indexFor(base, i)
		bit := uint64(1) << (idx % 64)
		if f.words[idx/64]&bit == 0 {
			f.words[idx/64] |= bit
			fresh = true
		}
	}
	if fresh {
		f.count++
	}
}

// NeverContains reports true when name was certainly never added.
func (f *Filter) NeverContains(name string) bool {
	base := baseHash(name)
	for i := range f.numHashes {
		idx := f.indexFor(base, i)
		if f.words[idx/64]&(1<<(idx%64)) == 0 {
			return true
		}
	}
	return false
}

// Clear removes every name.
func (f *Filter) Clear() {
	clear(f.words)
	f.count = 0
}

// Count returns the number of names added since the last Clear that set at
// least one new bit.
func (f *Filter) Count() int { return f.count }

// Capacity returns the number of names the filter was sized for.
func (f *Filter) Capacity() int { return f.capacity }

// Saturated reports whether more names were added than the filter was
// sized for, so the false-positive rate is above its target.
func (f *Filter) Saturated() bool { return f.count > f.capacity }

// NumBits returns the size of the bit array.
func (f *Filter) NumBits() uint32 { return f.numBits }

// NumHashes returns the number of probes per name.
func (f *Filter) NumHashes() int { return f.numHashes }

// EstimatedFalsePositiveRate returns (1 - e^(-k*n/m))^k for the current count.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	k := float64(f.numHashes)
	return math.Pow(1-math.Exp(-k*float64(f.count)/float64(f.numBits)), k)
}
